// Package recon implements the reconciliation engine: it decides, for each
// incoming normalized event, whether it is new, a duplicate, or a correction
// of an event already in the log, and applies the decision atomically.
package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/groblegark/wealthd/internal/canonical"
	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/idgen"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// Recomputer refreshes a user's projection snapshots after the event log
// changes. The projection engine satisfies this; the reconciler never imports
// it directly.
type Recomputer interface {
	RecomputeUser(ctx context.Context, userID string) error
}

// Reconciler applies incoming normalized events to the versioned event log.
type Reconciler struct {
	store      store.Store
	publisher  events.Publisher
	recomputer Recomputer
	logger     *slog.Logger
}

// New returns a Reconciler backed by the given store and publisher.
// The publisher may be a NoopPublisher; recompute wiring is optional and
// attached with SetRecomputer.
func New(s store.Store, p events.Publisher, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: s, publisher: p, logger: logger}
}

// SetRecomputer attaches the projection engine. Called once during wiring,
// before any Reconcile call.
func (r *Reconciler) SetRecomputer(rc Recomputer) {
	r.recomputer = rc
}

// Reconcile applies one normalized event to the log and returns the decision.
//
// A duplicate (same canonical key, same fingerprint as the current head)
// writes nothing. A correction supersedes the previous version, inserts the
// next version, and moves the head inside a single transaction. A brand-new
// key, or a head pointing at a missing event row, inserts version 1.
func (r *Reconciler) Reconcile(ctx context.Context, data model.NormalizedEventData) (*model.ReconciliationResult, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	key := canonical.Key(data.Source, data.UserID, data.SourceEventID, data.AccountID)
	fingerprint := canonical.Fingerprint(data)

	head, err := r.store.GetEventHead(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up event head %s: %w", key, err)
	}

	var current *model.NormalizedEvent
	if head != nil {
		current, err = r.store.GetEvent(ctx, head.LatestEventID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("loading head event %s: %w", head.LatestEventID, err)
		}
	}

	if current == nil {
		return r.applyNew(ctx, data, key, fingerprint)
	}
	if current.Fingerprint == fingerprint {
		return r.ignoreDuplicate(ctx, current)
	}
	return r.applyCorrection(ctx, data, key, fingerprint, current)
}

// applyNew inserts version 1 for a canonical key with no usable head.
func (r *Reconciler) applyNew(ctx context.Context, data model.NormalizedEventData, key, fingerprint string) (*model.ReconciliationResult, error) {
	event, err := newEvent(data, key, fingerprint, 1)
	if err != nil {
		return nil, err
	}

	err = r.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateEvent(ctx, event); err != nil {
			return fmt.Errorf("creating event: %w", err)
		}
		return tx.UpsertEventHead(ctx, &model.EventHead{
			CanonicalKey:  key,
			UserID:        event.UserID,
			LatestEventID: event.ID,
			LatestVersion: event.Version,
		})
	})
	if err != nil {
		return nil, err
	}

	r.afterMutation(ctx, event, events.TopicEventApplied, events.EventApplied{Event: event})

	return &model.ReconciliationResult{
		EventID: event.ID,
		Status:  model.EventApplied,
		Action:  model.ActionApplied,
		Version: event.Version,
	}, nil
}

// ignoreDuplicate reports a duplicate without touching the log.
func (r *Reconciler) ignoreDuplicate(ctx context.Context, current *model.NormalizedEvent) (*model.ReconciliationResult, error) {
	r.publish(ctx, events.TopicEventIgnored, events.EventIgnored{
		CanonicalKey: current.CanonicalKey,
		EventID:      current.ID,
	})
	return &model.ReconciliationResult{
		EventID: current.ID,
		Status:  model.EventIgnored,
		Action:  model.ActionIgnored,
		Version: current.Version,
	}, nil
}

// applyCorrection supersedes the current version and installs the next one.
// The supersede, insert, and head move happen in one transaction so that two
// concurrent corrections of the same key cannot fork the chain.
func (r *Reconciler) applyCorrection(ctx context.Context, data model.NormalizedEventData, key, fingerprint string, previous *model.NormalizedEvent) (*model.ReconciliationResult, error) {
	event, err := newEvent(data, key, fingerprint, previous.Version+1)
	if err != nil {
		return nil, err
	}

	err = r.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.SupersedeEvent(ctx, previous.ID, event.ID); err != nil {
			return fmt.Errorf("superseding event %s: %w", previous.ID, err)
		}
		if err := tx.CreateEvent(ctx, event); err != nil {
			return fmt.Errorf("creating correction: %w", err)
		}
		return tx.UpsertEventHead(ctx, &model.EventHead{
			CanonicalKey:  key,
			UserID:        event.UserID,
			LatestEventID: event.ID,
			LatestVersion: event.Version,
		})
	})
	if err != nil {
		return nil, err
	}

	r.afterMutation(ctx, event, events.TopicEventCorrected, events.EventCorrected{
		Event:        event,
		SupersededID: previous.ID,
	})

	return &model.ReconciliationResult{
		EventID:         event.ID,
		Status:          model.EventApplied,
		Action:          model.ActionCorrection,
		Version:         event.Version,
		PreviousEventID: previous.ID,
	}, nil
}

// afterMutation runs the shared follow-up for a log change: enqueue valuation
// enrichment when needed, publish the outcome, and kick a projection
// recompute. None of these may fail the reconciliation decision itself.
func (r *Reconciler) afterMutation(ctx context.Context, event *model.NormalizedEvent, topic string, busEvent any) {
	if needsValuation(event) {
		if err := r.enqueueEnrichment(ctx, event.ID); err != nil {
			r.logger.Warn("failed to enqueue valuation enrichment", "event_id", event.ID, "error", err)
		}
	}
	r.publish(ctx, topic, busEvent)
	r.triggerRecompute(ctx, event.UserID)
}

func (r *Reconciler) enqueueEnrichment(ctx context.Context, eventID string) error {
	payload, err := json.Marshal(model.EnrichValuationPayload{EventID: eventID})
	if err != nil {
		return fmt.Errorf("marshaling enrichment payload: %w", err)
	}
	return r.store.CreateJob(ctx, &model.Job{
		ID:      uuid.NewString(),
		Type:    model.JobEnrichValuation,
		Payload: payload,
		Status:  model.JobPending,
	})
}

func (r *Reconciler) triggerRecompute(ctx context.Context, userID string) {
	if r.recomputer == nil {
		return
	}
	if err := r.recomputer.RecomputeUser(ctx, userID); err != nil {
		r.logger.Warn("projection recompute failed", "user_id", userID, "error", err)
	}
}

// publish emits a bus event best-effort.
func (r *Reconciler) publish(ctx context.Context, topic string, event any) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, topic, event); err != nil {
		r.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func needsValuation(event *model.NormalizedEvent) bool {
	return event.AssetSymbol != "" && event.ValuationState == model.ValuationPending
}

func newEvent(data model.NormalizedEventData, key, fingerprint string, version int) (*model.NormalizedEvent, error) {
	id, err := idgen.NewEventID()
	if err != nil {
		return nil, err
	}
	return &model.NormalizedEvent{
		ID:              id,
		UserID:          data.UserID,
		Source:          data.Source,
		SourceEventID:   data.SourceEventID,
		AccountID:       data.AccountID,
		OccurredAt:      data.OccurredAt.UTC(),
		Kind:            data.Kind,
		Description:     data.Description,
		FiatCurrency:    data.FiatCurrency,
		FiatAmountMinor: data.FiatAmountMinor,
		AssetSymbol:     data.AssetSymbol,
		AssetAmount:     data.AssetAmount,
		ValuationState:  data.ValuationState,
		CanonicalKey:    key,
		Fingerprint:     fingerprint,
		Version:         version,
		Status:          model.EventApplied,
		IngestedAt:      time.Now().UTC(),
	}, nil
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/pricing"
	"github.com/groblegark/wealthd/internal/recon"
	"github.com/groblegark/wealthd/internal/store"
)

// EventReconciler applies a normalized event to the log. Satisfied by
// *recon.Reconciler.
type EventReconciler interface {
	Reconcile(ctx context.Context, data model.NormalizedEventData) (*model.ReconciliationResult, error)
}

// Handlers bundles the job handlers and their collaborators.
type Handlers struct {
	store      store.Store
	reconciler EventReconciler
	static     *pricing.StaticSource
	recomputer recon.Recomputer
	publisher  events.Publisher
	currency   string
	logger     *slog.Logger
}

// NewHandlers wires the handler set. currency is the fiat currency valuations
// are resolved in.
func NewHandlers(s store.Store, r EventReconciler, static *pricing.StaticSource, rc recon.Recomputer, p events.Publisher, currency string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if currency == "" {
		currency = "EUR"
	}
	return &Handlers{
		store:      s,
		reconciler: r,
		static:     static,
		recomputer: rc,
		publisher:  p,
		currency:   currency,
		logger:     logger,
	}
}

// RegisterAll installs every handler on the executor.
func (h *Handlers) RegisterAll(e *Executor) {
	e.Register(model.JobReconcileEvent, h.ReconcileEvent)
	e.Register(model.JobEnrichValuation, h.EnrichValuation)
	e.Register(model.JobRefreshRates, h.RefreshRates)
}

// ReconcileEvent loads the referenced raw event, decodes the normalized
// payload, and runs it through the reconciliation engine.
func (h *Handlers) ReconcileEvent(ctx context.Context, job *model.Job) error {
	var payload model.ReconcileEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	raw, err := h.store.GetRawEvent(ctx, payload.RawEventID)
	if err != nil {
		return fmt.Errorf("loading raw event %s: %w", payload.RawEventID, err)
	}

	var data model.NormalizedEventData
	if err := json.Unmarshal(raw.Payload, &data); err != nil {
		return fmt.Errorf("decoding raw event %s: %w", raw.ID, err)
	}

	result, err := h.reconciler.Reconcile(ctx, data)
	if err != nil {
		return err
	}
	h.logger.Info("raw event reconciled",
		"raw_event_id", raw.ID, "event_id", result.EventID,
		"action", result.Action, "version", result.Version)
	return nil
}

// EnrichValuation resolves the fiat value of a pending asset leg. Re-runs are
// harmless: an already VALUED event is skipped, which keeps the handler safe
// under at-least-once delivery.
func (h *Handlers) EnrichValuation(ctx context.Context, job *model.Job) error {
	var payload model.EnrichValuationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	event, err := h.store.GetEvent(ctx, payload.EventID)
	if err != nil {
		return fmt.Errorf("loading event %s: %w", payload.EventID, err)
	}
	if event.ValuationState == model.ValuationValued {
		h.logger.Debug("event already valued, skipping", "event_id", event.ID)
		return nil
	}
	if event.AssetSymbol == "" {
		return fmt.Errorf("event %s has no asset leg to value", event.ID)
	}

	price, err := h.lookupPrice(ctx, event.AssetSymbol, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("pricing %s: %w", event.AssetSymbol, err)
	}

	amount, err := decimal.NewFromString(event.AssetAmount)
	if err != nil {
		return fmt.Errorf("parsing asset amount %q: %w", event.AssetAmount, err)
	}
	valueMinor := amount.Mul(decimal.NewFromInt(price.PriceMinor)).Round(0).IntPart()

	if err := h.store.SetEventValuation(ctx, event.ID, price.FiatCurrency, valueMinor, model.ValuationValued); err != nil {
		return fmt.Errorf("writing valuation for %s: %w", event.ID, err)
	}

	if h.publisher != nil {
		pubErr := h.publisher.Publish(ctx, events.TopicEventValued, events.EventValued{
			EventID:         event.ID,
			FiatCurrency:    price.FiatCurrency,
			FiatAmountMinor: valueMinor,
		})
		if pubErr != nil {
			h.logger.Warn("failed to publish valuation", "event_id", event.ID, "error", pubErr)
		}
	}
	if h.recomputer != nil {
		if err := h.recomputer.RecomputeUser(ctx, event.UserID); err != nil {
			h.logger.Warn("projection recompute failed", "user_id", event.UserID, "error", err)
		}
	}
	return nil
}

// lookupPrice prefers the newest stored price at or before the event instant
// and falls back to the static quote table.
func (h *Handlers) lookupPrice(ctx context.Context, assetSymbol string, asOf time.Time) (*model.AssetPrice, error) {
	price, err := h.store.LatestAssetPrice(ctx, assetSymbol, h.currency, asOf)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return h.static.Price(ctx, assetSymbol, h.currency, asOf)
}

// RefreshRates upserts the static quote table into the price store.
func (h *Handlers) RefreshRates(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()
	for _, quote := range h.static.Quotes(now) {
		if err := h.store.UpsertAssetPrice(ctx, quote); err != nil {
			return fmt.Errorf("upserting %s/%s: %w", quote.AssetSymbol, quote.FiatCurrency, err)
		}
	}
	h.logger.Info("asset prices refreshed", "as_of", now)
	return nil
}

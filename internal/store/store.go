// Package store defines the persistence interface for the reconciliation
// core: the versioned event log, the durable job queue, and the derived
// read views.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/groblegark/wealthd/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// TimelineCursor is the keyset position of the last timeline entry returned.
// Subsequent pages select entries strictly below it under the ordering
// (occurred_at DESC, event id DESC).
type TimelineCursor struct {
	OccurredAt time.Time
	EventID    string
}

// Store is the persistence interface for wealthd.
type Store interface {
	// Event log
	CreateEvent(ctx context.Context, event *model.NormalizedEvent) error
	GetEvent(ctx context.Context, id string) (*model.NormalizedEvent, error)
	SupersedeEvent(ctx context.Context, id, supersededByID string) error
	SetEventValuation(ctx context.Context, id, fiatCurrency string, fiatAmountMinor int64, state model.ValuationState) error
	ListEvents(ctx context.Context) ([]*model.NormalizedEvent, error) // snapshot export, version order

	// Event heads
	GetEventHead(ctx context.Context, canonicalKey string) (*model.EventHead, error)
	UpsertEventHead(ctx context.Context, head *model.EventHead) error
	ListEventHeads(ctx context.Context) ([]*model.EventHead, error)
	ListLatestAppliedEvents(ctx context.Context, userID string) ([]*model.NormalizedEvent, error)

	// Raw events
	CreateRawEvent(ctx context.Context, raw *model.RawEvent) error
	GetRawEvent(ctx context.Context, id string) (*model.RawEvent, error)
	FindRawEvent(ctx context.Context, source model.Source, userID string, payload []byte) (*model.RawEvent, error)

	// Job queue
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter model.JobFilter) ([]*model.Job, error)
	// ClaimJob atomically claims the oldest PENDING job whose lock is absent
	// or older than lockedBefore: it transitions the job to RUNNING, stamps a
	// fresh lock and increments the attempt counter, all conditioned on the
	// row still matching the claim predicate. Returns (nil, nil) when no job
	// is claimable or the race was lost.
	ClaimJob(ctx context.Context, lockedBefore time.Time) (*model.Job, error)
	CompleteJob(ctx context.Context, id string) error
	ReleaseJob(ctx context.Context, id, lastError string) error
	FailJob(ctx context.Context, id, lastError string) error
	ResetFailedJobs(ctx context.Context) (int, error)

	// Asset prices
	UpsertAssetPrice(ctx context.Context, price *model.AssetPrice) error
	LatestAssetPrice(ctx context.Context, assetSymbol, fiatCurrency string, asOf time.Time) (*model.AssetPrice, error)

	// Projections
	UpsertUserSummary(ctx context.Context, summary *model.UserSummary) error
	GetUserSummary(ctx context.Context, userID string) (*model.UserSummary, error)
	UpsertAccountView(ctx context.Context, view *model.AccountView) error
	ListAccountViews(ctx context.Context, userID string) ([]*model.AccountView, error)
	ReplaceTimeline(ctx context.Context, userID string, entries []*model.TimelineEntry) error
	ListTimeline(ctx context.Context, userID string, limit int, cursor *TimelineCursor) ([]*model.TimelineEntry, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

package events

import (
	"context"

	"github.com/groblegark/wealthd/internal/model"
)

// Event topic constants
const (
	TopicRawEventReceived = "wealth.rawevent.received"

	TopicEventApplied   = "wealth.event.applied"
	TopicEventCorrected = "wealth.event.corrected"
	TopicEventIgnored   = "wealth.event.ignored"
	TopicEventValued    = "wealth.event.valued"

	TopicJobCompleted = "wealth.job.completed"
	TopicJobFailed    = "wealth.job.failed"

	TopicProjectionRecomputed = "wealth.projection.recomputed"
	TopicSnapshotExported     = "wealth.snapshot.exported"
)

// Event types

type RawEventReceived struct {
	RawEventID string       `json:"raw_event_id"`
	Source     model.Source `json:"source"`
	UserID     string       `json:"user_id"`
}

type EventApplied struct {
	Event *model.NormalizedEvent `json:"event"`
}

type EventCorrected struct {
	Event        *model.NormalizedEvent `json:"event"`
	SupersededID string                 `json:"superseded_id"`
}

type EventIgnored struct {
	CanonicalKey string `json:"canonical_key"`
	EventID      string `json:"event_id"` // the surviving event the duplicate matched
}

type EventValued struct {
	EventID         string `json:"event_id"`
	FiatCurrency    string `json:"fiat_currency"`
	FiatAmountMinor int64  `json:"fiat_amount_minor"`
}

type JobCompleted struct {
	JobID    string        `json:"job_id"`
	Type     model.JobType `json:"type"`
	Attempts int           `json:"attempts"`
}

type JobFailed struct {
	JobID    string        `json:"job_id"`
	Type     model.JobType `json:"type"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error"`
}

type ProjectionRecomputed struct {
	UserID     string `json:"user_id"`
	EventCount int    `json:"event_count"`
}

type SnapshotExported struct {
	Destination string `json:"destination"`
	EventCount  int    `json:"event_count"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

package model

import (
	"encoding/json"
	"time"
)

// JobType enumerates the kinds of background work the executor dispatches.
type JobType string

const (
	JobReconcileEvent  JobType = "RECONCILE_EVENT"
	JobEnrichValuation JobType = "ENRICH_VALUATION"
	JobRefreshRates    JobType = "REFRESH_RATES"
)

// String returns the string representation of the job type.
func (t JobType) String() string {
	return string(t)
}

// JobStatus represents the lifecycle state of a queue entry.
type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// Job is one durable queue entry. PENDING jobs whose lock timestamp is absent
// or older than the lease timeout are claimable; RUNNING is only meaningful
// while the lock is fresh. DONE and FAILED are terminal; FAILED jobs require
// an external reset before they run again.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    JobStatus       `json:"status"`
	Attempts  int             `json:"attempts"`
	LockedAt  *time.Time      `json:"locked_at,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// JobFilter selects jobs for operational listings.
type JobFilter struct {
	Status JobStatus
	Type   JobType
	Limit  int
}

// ReconcileEventPayload is the payload of a RECONCILE_EVENT job.
type ReconcileEventPayload struct {
	RawEventID string `json:"raw_event_id"`
}

// EnrichValuationPayload is the payload of an ENRICH_VALUATION job.
type EnrichValuationPayload struct {
	EventID string `json:"event_id"`
}

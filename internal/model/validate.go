package model

import "fmt"

// ValidationError indicates a malformed or incomplete event payload.
// It is surfaced synchronously to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// Validate checks the required identity fields of a normalized event payload.
// It fails before any storage lookup so that bad payloads never reach the
// reconciliation path.
func (d *NormalizedEventData) Validate() error {
	if d.Source == "" {
		return &ValidationError{Field: "source", Reason: "is required"}
	}
	if !d.Source.IsValid() {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("%q is not a known source", d.Source)}
	}
	if d.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if d.SourceEventID == "" {
		return &ValidationError{Field: "source_event_id", Reason: "is required"}
	}
	if d.AccountID == "" {
		return &ValidationError{Field: "account_id", Reason: "is required"}
	}
	if d.Kind == "" {
		return &ValidationError{Field: "kind", Reason: "is required"}
	}
	if !d.Kind.IsValid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("%q is not a known kind", d.Kind)}
	}
	if d.OccurredAt.IsZero() {
		return &ValidationError{Field: "occurred_at", Reason: "is required"}
	}
	return nil
}

// Package snapshot exports the versioned event log as JSONL for audit and
// backup, on a fixed schedule, to one or more destinations.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/groblegark/wealthd/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
	HeadCount  int       `json:"head_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ExportJSONL writes the full event log and head set from the store as JSONL
// to w. Events come out ordered by canonical key then version, so an export
// is reproducible for a fixed log.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) (int, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	heads, err := s.ListEventHeads(ctx)
	if err != nil {
		return 0, fmt.Errorf("list event heads: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EventCount: len(events),
		HeadCount:  len(heads),
	}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}

	for _, ev := range events {
		if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
			return 0, fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
	}
	for _, h := range heads {
		if err := enc.Encode(record{Type: "head", Data: h}); err != nil {
			return 0, fmt.Errorf("encode head %s: %w", h.CanonicalKey, err)
		}
	}
	return len(events), nil
}

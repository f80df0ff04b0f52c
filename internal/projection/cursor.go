package projection

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/groblegark/wealthd/internal/store"
)

// Timeline cursors encode the (occurredAt, eventId) boundary of the last
// entry returned, as base64 of "<RFC3339Nano instant>|<event id>". The
// encoded form is opaque to clients.

// EncodeCursor returns the wire form of a timeline cursor.
func EncodeCursor(c store.TimelineCursor) string {
	raw := c.OccurredAt.UTC().Format(time.RFC3339Nano) + "|" + c.EventID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a wire-form cursor. An empty string decodes to nil,
// meaning the first page.
func DecodeCursor(s string) (*store.TimelineCursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	instant, eventID, ok := strings.Cut(string(raw), "|")
	if !ok || eventID == "" {
		return nil, fmt.Errorf("invalid cursor %q", raw)
	}
	occurredAt, err := time.Parse(time.RFC3339Nano, instant)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor instant: %w", err)
	}
	return &store.TimelineCursor{OccurredAt: occurredAt, EventID: eventID}, nil
}

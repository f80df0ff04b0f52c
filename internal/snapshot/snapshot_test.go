package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store/memory"
)

func nonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func seedLog(t *testing.T, st *memory.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	amount := int64(100000)
	ev := &model.NormalizedEvent{
		ID: "evt-1", UserID: "u-1", Source: model.SourceBank,
		SourceEventID: "txn-1", AccountID: "acct-1",
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:       model.KindCashCredit, FiatCurrency: "EUR", FiatAmountMinor: &amount,
		CanonicalKey: "BANK:u-1:txn-1:acct-1", Version: 1, Status: model.EventApplied,
	}
	if err := st.CreateEvent(ctx, ev); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	err := st.UpsertEventHead(ctx, &model.EventHead{
		CanonicalKey: ev.CanonicalKey, UserID: "u-1",
		LatestEventID: ev.ID, LatestVersion: 1,
	})
	if err != nil {
		t.Fatalf("UpsertEventHead: %v", err)
	}
}

func TestExportJSONL_Empty(t *testing.T) {
	st := memory.New()
	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), st, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	if n != 0 {
		t.Errorf("event count = %d, want 0", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}
	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.EventCount != 0 || h.HeadCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_WithEventsAndHeads(t *testing.T) {
	st := memory.New()
	seedLog(t, st)

	var buf bytes.Buffer
	n, err := ExportJSONL(context.Background(), st, &buf)
	if err != nil {
		t.Fatalf("ExportJSONL: %v", err)
	}
	if n != 1 {
		t.Errorf("event count = %d, want 1", n)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want 3 (header, event, head)", len(lines))
	}

	var rec record
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("unmarshal event line: %v", err)
	}
	if rec.Type != "event" {
		t.Errorf("line 2 type = %q, want event", rec.Type)
	}
	if err := json.Unmarshal([]byte(lines[2]), &rec); err != nil {
		t.Fatalf("unmarshal head line: %v", err)
	}
	if rec.Type != "head" {
		t.Errorf("line 3 type = %q, want head", rec.Type)
	}
}

// memDestination collects writes for assertions.
type memDestination struct {
	mu     sync.Mutex
	writes [][]byte
}

func (d *memDestination) Write(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, append([]byte(nil), data...))
	return nil
}

func (d *memDestination) Name() string { return "mem" }

func (d *memDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func TestScheduler_ExportOnce(t *testing.T) {
	st := memory.New()
	seedLog(t, st)
	dest := &memDestination{}

	sched := NewScheduler(st, []Destination{dest}, &events.NoopPublisher{}, time.Hour, slog.Default())
	sched.ExportOnce(context.Background())

	if dest.count() != 1 {
		t.Fatalf("write count = %d, want 1", dest.count())
	}
	lines := nonEmptyLines(string(dest.writes[0]))
	if len(lines) != 3 {
		t.Errorf("exported line count = %d, want 3", len(lines))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	st := memory.New()
	dest := &memDestination{}

	sched := NewScheduler(st, []Destination{dest}, &events.NoopPublisher{}, 10*time.Millisecond, slog.Default())
	sched.Start()

	deadline := time.After(2 * time.Second)
	for dest.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("expected at least two exports before deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
	sched.Stop()
}

package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/store"
)

// Destination is the interface for an export target (S3, local file, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
	// Name identifies the destination in logs and bus events.
	Name() string
}

// Scheduler runs periodic snapshot exports to one or more destinations.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	publisher    events.Publisher
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports from the store to the given
// destinations at the specified interval.
func NewScheduler(s store.Store, destinations []Destination, p events.Publisher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		destinations: destinations,
		publisher:    p,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.ExportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ExportOnce(ctx)
		}
	}
}

// ExportOnce builds one snapshot and writes it to every destination.
func (s *Scheduler) ExportOnce(ctx context.Context) {
	var buf bytes.Buffer
	eventCount, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		s.logger.Error("snapshot export failed", "error", err)
		return
	}
	data := buf.Bytes()

	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("snapshot destination write failed", "destination", dest.Name(), "error", err)
			continue
		}
		if s.publisher != nil {
			pubErr := s.publisher.Publish(ctx, events.TopicSnapshotExported, events.SnapshotExported{
				Destination: dest.Name(),
				EventCount:  eventCount,
			})
			if pubErr != nil {
				s.logger.Warn("failed to publish snapshot event", "error", pubErr)
			}
		}
	}

	s.logger.Info("snapshot exported",
		"destinations", len(s.destinations),
		"events", eventCount,
		"bytes", fmt.Sprintf("%d", len(data)))
}

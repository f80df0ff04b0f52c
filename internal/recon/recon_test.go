package recon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/groblegark/wealthd/internal/canonical"
	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store/memory"
)

func int64Ptr(v int64) *int64 { return &v }

func bankCredit(amountMinor int64) model.NormalizedEventData {
	return model.NormalizedEventData{
		UserID:          "u-1",
		Source:          model.SourceBank,
		SourceEventID:   "txn-100",
		AccountID:       "acct-1",
		OccurredAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:            model.KindCashCredit,
		Description:     "salary",
		FiatCurrency:    "EUR",
		FiatAmountMinor: int64Ptr(amountMinor),
	}
}

func cryptoDeposit() model.NormalizedEventData {
	return model.NormalizedEventData{
		UserID:         "u-1",
		Source:         model.SourceCrypto,
		SourceEventID:  "dep-7",
		AccountID:      "wallet-1",
		OccurredAt:     time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		Kind:           model.KindCryptoDeposit,
		AssetSymbol:    "BTC",
		AssetAmount:    "0.5",
		ValuationState: model.ValuationPending,
	}
}

type recordingRecomputer struct {
	userIDs []string
	err     error
}

func (r *recordingRecomputer) RecomputeUser(ctx context.Context, userID string) error {
	r.userIDs = append(r.userIDs, userID)
	return r.err
}

func newTestReconciler(t *testing.T) (*Reconciler, *memory.MemoryStore) {
	t.Helper()
	st := memory.New()
	return New(st, &events.NoopPublisher{}, slog.Default()), st
}

func TestReconcile_NewEvent(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, bankCredit(100000))
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if res.Action != model.ActionApplied {
		t.Errorf("action = %s, want APPLIED", res.Action)
	}
	if res.Version != 1 {
		t.Errorf("version = %d, want 1", res.Version)
	}
	if res.Status != model.EventApplied {
		t.Errorf("status = %s, want APPLIED", res.Status)
	}

	event, err := st.GetEvent(ctx, res.EventID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if event.Status != model.EventApplied {
		t.Errorf("stored status = %s, want APPLIED", event.Status)
	}

	key := canonical.Key(model.SourceBank, "u-1", "txn-100", "acct-1")
	head, err := st.GetEventHead(ctx, key)
	if err != nil {
		t.Fatalf("GetEventHead: %v", err)
	}
	if head.LatestEventID != res.EventID || head.LatestVersion != 1 {
		t.Errorf("head = %+v, want latest %s v1", head, res.EventID)
	}
}

func TestReconcile_DuplicateIsIdempotent(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, bankCredit(100000))
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	// Arbitrary repetition of the identical event never writes.
	for i := 0; i < 3; i++ {
		res, err := r.Reconcile(ctx, bankCredit(100000))
		if err != nil {
			t.Fatalf("duplicate Reconcile #%d: %v", i+1, err)
		}
		if res.Action != model.ActionIgnored {
			t.Errorf("action = %s, want IGNORED", res.Action)
		}
		if res.Version != 1 {
			t.Errorf("version = %d, want 1", res.Version)
		}
		if res.EventID != first.EventID {
			t.Errorf("event ID = %s, want surviving %s", res.EventID, first.EventID)
		}
	}

	all, err := st.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("event count = %d, want 1", len(all))
	}
	if all[0].Status != model.EventApplied {
		t.Errorf("surviving event status = %s, want APPLIED", all[0].Status)
	}
}

func TestReconcile_Correction(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	first, err := r.Reconcile(ctx, bankCredit(100000))
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	res, err := r.Reconcile(ctx, bankCredit(200000))
	if err != nil {
		t.Fatalf("correction Reconcile: %v", err)
	}
	if res.Action != model.ActionCorrection {
		t.Errorf("action = %s, want CORRECTION", res.Action)
	}
	if res.Version != 2 {
		t.Errorf("version = %d, want 2", res.Version)
	}
	if res.PreviousEventID != first.EventID {
		t.Errorf("previous event ID = %s, want %s", res.PreviousEventID, first.EventID)
	}

	prev, err := st.GetEvent(ctx, first.EventID)
	if err != nil {
		t.Fatalf("GetEvent(previous): %v", err)
	}
	if prev.Status != model.EventSuperseded {
		t.Errorf("previous status = %s, want SUPERSEDED", prev.Status)
	}
	if prev.SupersededByID != res.EventID {
		t.Errorf("superseded_by = %s, want %s", prev.SupersededByID, res.EventID)
	}

	key := canonical.Key(model.SourceBank, "u-1", "txn-100", "acct-1")
	head, err := st.GetEventHead(ctx, key)
	if err != nil {
		t.Fatalf("GetEventHead: %v", err)
	}
	if head.LatestEventID != res.EventID || head.LatestVersion != 2 {
		t.Errorf("head = %+v, want latest %s v2", head, res.EventID)
	}
}

func TestReconcile_LateArrivalIsCorrection(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, bankCredit(100000)); err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}

	// Earlier occurredAt than the current head still goes through the
	// ordinary fingerprint-mismatch path.
	late := bankCredit(100000)
	late.OccurredAt = late.OccurredAt.Add(-48 * time.Hour)
	res, err := r.Reconcile(ctx, late)
	if err != nil {
		t.Fatalf("late Reconcile: %v", err)
	}
	if res.Action != model.ActionCorrection {
		t.Errorf("action = %s, want CORRECTION", res.Action)
	}
	if res.Version != 2 {
		t.Errorf("version = %d, want 2", res.Version)
	}
}

func TestReconcile_DanglingHead(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	key := canonical.Key(model.SourceBank, "u-1", "txn-100", "acct-1")
	err := st.UpsertEventHead(ctx, &model.EventHead{
		CanonicalKey:  key,
		UserID:        "u-1",
		LatestEventID: "evt-gone",
		LatestVersion: 3,
	})
	if err != nil {
		t.Fatalf("UpsertEventHead: %v", err)
	}

	res, err := r.Reconcile(ctx, bankCredit(100000))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.Action != model.ActionApplied {
		t.Errorf("action = %s, want APPLIED", res.Action)
	}
	if res.Version != 1 {
		t.Errorf("version = %d, want 1", res.Version)
	}

	head, err := st.GetEventHead(ctx, key)
	if err != nil {
		t.Fatalf("GetEventHead: %v", err)
	}
	if head.LatestEventID != res.EventID {
		t.Errorf("head event ID = %s, want %s", head.LatestEventID, res.EventID)
	}
}

func TestReconcile_ValidationFailsFast(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	data := bankCredit(100000)
	data.Source = ""
	_, err := r.Reconcile(ctx, data)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *model.ValidationError", err)
	}

	all, err := st.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("event count = %d, want 0 (fail fast, no write)", len(all))
	}
}

func TestReconcile_PendingValuationEnqueuesEnrichment(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	res, err := r.Reconcile(ctx, cryptoDeposit())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	jobs, err := st.ListJobs(ctx, model.JobFilter{Type: model.JobEnrichValuation})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("enrichment job count = %d, want 1", len(jobs))
	}
	if jobs[0].Status != model.JobPending {
		t.Errorf("job status = %s, want PENDING", jobs[0].Status)
	}
	var payload model.EnrichValuationPayload
	if err := json.Unmarshal(jobs[0].Payload, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.EventID != res.EventID {
		t.Errorf("payload event ID = %s, want %s", payload.EventID, res.EventID)
	}
}

func TestReconcile_NoEnrichmentForFiatEvent(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, bankCredit(100000)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	jobs, err := st.ListJobs(ctx, model.JobFilter{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("job count = %d, want 0", len(jobs))
	}
}

func TestReconcile_TriggersRecompute(t *testing.T) {
	r, _ := newTestReconciler(t)
	rc := &recordingRecomputer{}
	r.SetRecomputer(rc)

	if _, err := r.Reconcile(context.Background(), bankCredit(100000)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(rc.userIDs) != 1 || rc.userIDs[0] != "u-1" {
		t.Errorf("recompute calls = %v, want [u-1]", rc.userIDs)
	}
}

func TestReconcile_RecomputeFailureNotPropagated(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.SetRecomputer(&recordingRecomputer{err: errors.New("projection store down")})

	res, err := r.Reconcile(context.Background(), bankCredit(100000))
	if err != nil {
		t.Fatalf("Reconcile should not fail on recompute error, got: %v", err)
	}
	if res.Action != model.ActionApplied {
		t.Errorf("action = %s, want APPLIED", res.Action)
	}
}

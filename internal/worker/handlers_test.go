package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/pricing"
	"github.com/groblegark/wealthd/internal/projection"
	"github.com/groblegark/wealthd/internal/recon"
	"github.com/groblegark/wealthd/internal/store/memory"
)

// newTestStack wires a store, reconciler, projection engine, and handler set
// the way the daemon does.
func newTestStack(t *testing.T) (*memory.MemoryStore, *Handlers, *Executor) {
	t.Helper()
	st := memory.New()
	pub := &events.NoopPublisher{}
	logger := slog.Default()

	engine := projection.NewEngine(st, pub, logger)
	reconciler := recon.New(st, pub, logger)
	reconciler.SetRecomputer(engine)

	handlers := NewHandlers(st, reconciler, pricing.NewStaticSource(), engine, pub, "EUR", logger)
	executor := NewExecutor(st, pub, Options{MaxAttempts: 3}, logger)
	handlers.RegisterAll(executor)
	return st, handlers, executor
}

func TestReconcileEventHandler(t *testing.T) {
	st, handlers, _ := newTestStack(t)
	ctx := context.Background()

	amount := int64(100000)
	payload, err := json.Marshal(model.NormalizedEventData{
		UserID:          "u-1",
		Source:          model.SourceBank,
		SourceEventID:   "txn-1",
		AccountID:       "acct-1",
		OccurredAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:            model.KindCashCredit,
		FiatCurrency:    "EUR",
		FiatAmountMinor: &amount,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := &model.RawEvent{ID: "raw-1", Source: model.SourceBank, UserID: "u-1", Payload: payload}
	if err := st.CreateRawEvent(ctx, raw); err != nil {
		t.Fatalf("CreateRawEvent: %v", err)
	}

	jobPayload, _ := json.Marshal(model.ReconcileEventPayload{RawEventID: "raw-1"})
	err = handlers.ReconcileEvent(ctx, &model.Job{ID: "j-1", Type: model.JobReconcileEvent, Payload: jobPayload})
	if err != nil {
		t.Fatalf("ReconcileEvent: %v", err)
	}

	all, err := st.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("event count = %d, want 1", len(all))
	}
	if all[0].Status != model.EventApplied || all[0].Version != 1 {
		t.Errorf("event = %+v, want APPLIED v1", all[0])
	}

	summary, err := st.GetUserSummary(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUserSummary: %v", err)
	}
	if got := summary.BalancesByCurrency["EUR"]; got != 100000 {
		t.Errorf("EUR balance = %d, want 100000", got)
	}
}

func TestReconcileEventHandler_MissingRawEvent(t *testing.T) {
	_, handlers, _ := newTestStack(t)

	jobPayload, _ := json.Marshal(model.ReconcileEventPayload{RawEventID: "raw-gone"})
	err := handlers.ReconcileEvent(context.Background(), &model.Job{ID: "j-1", Payload: jobPayload})
	if err == nil {
		t.Error("expected error for missing raw event")
	}
}

func TestEnrichValuation_EndToEnd(t *testing.T) {
	st, _, executor := newTestStack(t)
	ctx := context.Background()

	// A crypto deposit with no fiat value enters PENDING and enqueues an
	// enrichment job through the reconciler.
	payload, _ := json.Marshal(model.NormalizedEventData{
		UserID:         "u-1",
		Source:         model.SourceCrypto,
		SourceEventID:  "dep-1",
		AccountID:      "wallet-1",
		OccurredAt:     time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		Kind:           model.KindCryptoDeposit,
		AssetSymbol:    "BTC",
		AssetAmount:    "0.5",
		ValuationState: model.ValuationPending,
	})
	if err := st.CreateRawEvent(ctx, &model.RawEvent{ID: "raw-1", Source: model.SourceCrypto, UserID: "u-1", Payload: payload}); err != nil {
		t.Fatalf("CreateRawEvent: %v", err)
	}
	jobPayload, _ := json.Marshal(model.ReconcileEventPayload{RawEventID: "raw-1"})
	if err := st.CreateJob(ctx, &model.Job{ID: "j-1", Type: model.JobReconcileEvent, Payload: jobPayload, Status: model.JobPending}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// First poll reconciles; summary is PARTIAL with one missing valuation.
	if !executor.PollOnce(ctx) {
		t.Fatal("first poll should run the reconcile job")
	}
	summary, err := st.GetUserSummary(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUserSummary: %v", err)
	}
	if summary.Valuation != model.ValuationPartial || summary.MissingValuations != 1 {
		t.Fatalf("summary = %+v, want PARTIAL with 1 missing", summary)
	}

	// Second poll runs the enqueued enrichment job.
	if !executor.PollOnce(ctx) {
		t.Fatal("second poll should run the enrichment job")
	}

	all, err := st.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("event count = %d, want 1", len(all))
	}
	event := all[0]
	if event.ValuationState != model.ValuationValued {
		t.Errorf("valuation state = %s, want VALUED", event.ValuationState)
	}
	// 0.5 BTC at 6250000000 minor units.
	if event.FiatAmountMinor == nil || *event.FiatAmountMinor != 3125000000 {
		t.Errorf("fiat amount = %v, want 3125000000", event.FiatAmountMinor)
	}
	if event.FiatCurrency != "EUR" {
		t.Errorf("fiat currency = %q, want EUR", event.FiatCurrency)
	}

	summary, err = st.GetUserSummary(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUserSummary: %v", err)
	}
	if summary.Valuation != model.ValuationFull {
		t.Errorf("summary valuation = %s, want FULL after enrichment", summary.Valuation)
	}
	if summary.MissingValuations != 0 {
		t.Errorf("missing valuations = %d, want 0", summary.MissingValuations)
	}
}

func TestEnrichValuation_AlreadyValuedSkips(t *testing.T) {
	st, handlers, _ := newTestStack(t)
	ctx := context.Background()

	amount := int64(999)
	event := &model.NormalizedEvent{
		ID: "evt-1", UserID: "u-1", Source: model.SourceCrypto,
		SourceEventID: "dep-1", AccountID: "wallet-1",
		OccurredAt: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		Kind:       model.KindCryptoDeposit, AssetSymbol: "BTC", AssetAmount: "0.5",
		FiatCurrency: "EUR", FiatAmountMinor: &amount,
		ValuationState: model.ValuationValued,
		CanonicalKey:   "k", Version: 1, Status: model.EventApplied,
	}
	if err := st.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	jobPayload, _ := json.Marshal(model.EnrichValuationPayload{EventID: "evt-1"})
	if err := handlers.EnrichValuation(ctx, &model.Job{ID: "j-1", Payload: jobPayload}); err != nil {
		t.Fatalf("EnrichValuation: %v", err)
	}

	got, err := st.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.FiatAmountMinor == nil || *got.FiatAmountMinor != 999 {
		t.Errorf("valued event was rewritten: %v", got.FiatAmountMinor)
	}
}

func TestEnrichValuation_PrefersStoredPrice(t *testing.T) {
	st, handlers, _ := newTestStack(t)
	ctx := context.Background()

	occurred := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	err := st.UpsertAssetPrice(ctx, &model.AssetPrice{
		AssetSymbol: "BTC", FiatCurrency: "EUR", PriceMinor: 6000000000,
		AsOf: occurred.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("UpsertAssetPrice: %v", err)
	}

	event := &model.NormalizedEvent{
		ID: "evt-1", UserID: "u-1", Source: model.SourceCrypto,
		SourceEventID: "dep-1", AccountID: "wallet-1",
		OccurredAt: occurred,
		Kind:       model.KindCryptoDeposit, AssetSymbol: "BTC", AssetAmount: "1",
		ValuationState: model.ValuationPending,
		CanonicalKey:   "k", Version: 1, Status: model.EventApplied,
	}
	if err := st.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}

	jobPayload, _ := json.Marshal(model.EnrichValuationPayload{EventID: "evt-1"})
	if err := handlers.EnrichValuation(ctx, &model.Job{ID: "j-1", Payload: jobPayload}); err != nil {
		t.Fatalf("EnrichValuation: %v", err)
	}

	got, err := st.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.FiatAmountMinor == nil || *got.FiatAmountMinor != 6000000000 {
		t.Errorf("fiat amount = %v, want stored price 6000000000", got.FiatAmountMinor)
	}
}

func TestRefreshRatesHandler(t *testing.T) {
	st, handlers, _ := newTestStack(t)
	ctx := context.Background()

	if err := handlers.RefreshRates(ctx, &model.Job{ID: "j-1", Type: model.JobRefreshRates}); err != nil {
		t.Fatalf("RefreshRates: %v", err)
	}

	price, err := st.LatestAssetPrice(ctx, "ETH", "USD", time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("LatestAssetPrice: %v", err)
	}
	if price.PriceMinor != 250000000 {
		t.Errorf("ETH/USD = %d, want 250000000", price.PriceMinor)
	}
}

func TestHandlers_CorruptPayload(t *testing.T) {
	_, handlers, _ := newTestStack(t)

	if err := handlers.ReconcileEvent(context.Background(), &model.Job{ID: "j-1", Payload: []byte("{")}); err == nil {
		t.Error("corrupt reconcile payload should fail")
	}
	if err := handlers.EnrichValuation(context.Background(), &model.Job{ID: "j-2", Payload: []byte("{")}); err == nil {
		t.Error("corrupt enrichment payload should fail")
	}
}

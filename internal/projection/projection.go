// Package projection maintains the derived read views: per-user summaries,
// per-account views, and the denormalized timeline. Everything here is
// rebuildable from the latest APPLIED event versions and carries no state of
// its own.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// Engine recomputes projection snapshots from the event log.
type Engine struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
}

// NewEngine returns an Engine backed by the given store and publisher.
func NewEngine(s store.Store, p events.Publisher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, publisher: p, logger: logger}
}

// RecomputeUser rebuilds every projection for one user from the latest
// APPLIED event versions. Idempotent: with no intervening log change, a
// second call produces identical snapshots.
func (e *Engine) RecomputeUser(ctx context.Context, userID string) error {
	applied, err := e.store.ListLatestAppliedEvents(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing applied events for %s: %w", userID, err)
	}

	summary := buildSummary(userID, applied)
	accounts := buildAccountViews(userID, applied)
	timeline := buildTimeline(userID, applied)

	err = e.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.UpsertUserSummary(ctx, summary); err != nil {
			return fmt.Errorf("upserting summary: %w", err)
		}
		for _, view := range accounts {
			if err := tx.UpsertAccountView(ctx, view); err != nil {
				return fmt.Errorf("upserting account view %s: %w", view.AccountID, err)
			}
		}
		if err := tx.ReplaceTimeline(ctx, userID, timeline); err != nil {
			return fmt.Errorf("replacing timeline: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if e.publisher != nil {
		pubErr := e.publisher.Publish(ctx, events.TopicProjectionRecomputed, events.ProjectionRecomputed{
			UserID:     userID,
			EventCount: len(applied),
		})
		if pubErr != nil {
			e.logger.Warn("failed to publish recompute event", "user_id", userID, "error", pubErr)
		}
	}
	return nil
}

// signOf maps an event kind to the direction of its amounts: inflows count
// positive, outflows negative.
func signOf(kind model.EventKind) int64 {
	switch kind {
	case model.KindCashDebit, model.KindCryptoWithdrawal, model.KindInsurancePremium:
		return -1
	default:
		return 1
	}
}

func buildSummary(userID string, applied []*model.NormalizedEvent) *model.UserSummary {
	balances := make(map[string]int64)
	positions := make(map[string]decimal.Decimal)
	missing := 0

	for _, ev := range applied {
		sign := signOf(ev.Kind)
		if ev.FiatCurrency != "" && ev.FiatAmountMinor != nil {
			balances[ev.FiatCurrency] += sign * *ev.FiatAmountMinor
		}
		if ev.AssetSymbol != "" {
			amount, err := decimal.NewFromString(ev.AssetAmount)
			if err == nil {
				if sign < 0 {
					amount = amount.Neg()
				}
				positions[ev.AssetSymbol] = positions[ev.AssetSymbol].Add(amount)
			}
			if ev.ValuationState == model.ValuationPending {
				missing++
			}
		}
	}

	completeness := model.ValuationFull
	if missing > 0 {
		completeness = model.ValuationPartial
	}

	return &model.UserSummary{
		UserID:             userID,
		BalancesByCurrency: balances,
		AssetPositions:     positionStrings(positions),
		Valuation:          completeness,
		MissingValuations:  missing,
	}
}

func buildAccountViews(userID string, applied []*model.NormalizedEvent) []*model.AccountView {
	type accountAcc struct {
		source    model.Source
		balances  map[string]int64
		positions map[string]decimal.Decimal
	}
	byAccount := make(map[string]*accountAcc)

	for _, ev := range applied {
		acc, ok := byAccount[ev.AccountID]
		if !ok {
			acc = &accountAcc{
				source:    ev.Source,
				balances:  make(map[string]int64),
				positions: make(map[string]decimal.Decimal),
			}
			byAccount[ev.AccountID] = acc
		}
		sign := signOf(ev.Kind)
		if ev.FiatCurrency != "" && ev.FiatAmountMinor != nil {
			acc.balances[ev.FiatCurrency] += sign * *ev.FiatAmountMinor
		}
		if ev.AssetSymbol != "" {
			amount, err := decimal.NewFromString(ev.AssetAmount)
			if err == nil {
				if sign < 0 {
					amount = amount.Neg()
				}
				acc.positions[ev.AssetSymbol] = acc.positions[ev.AssetSymbol].Add(amount)
			}
		}
	}

	views := make([]*model.AccountView, 0, len(byAccount))
	for accountID, acc := range byAccount {
		views = append(views, &model.AccountView{
			ID:                 uuid.NewString(),
			UserID:             userID,
			AccountID:          accountID,
			Source:             acc.source,
			BalancesByCurrency: acc.balances,
			AssetPositions:     positionStrings(acc.positions),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].AccountID < views[j].AccountID })
	return views
}

func buildTimeline(userID string, applied []*model.NormalizedEvent) []*model.TimelineEntry {
	entries := make([]*model.TimelineEntry, 0, len(applied))
	for _, ev := range applied {
		entries = append(entries, &model.TimelineEntry{
			ID:              uuid.NewString(),
			UserID:          userID,
			EventID:         ev.ID,
			OccurredAt:      ev.OccurredAt,
			Source:          ev.Source,
			AccountID:       ev.AccountID,
			Kind:            ev.Kind,
			Description:     ev.Description,
			FiatCurrency:    ev.FiatCurrency,
			FiatAmountMinor: ev.FiatAmountMinor,
			AssetSymbol:     ev.AssetSymbol,
			AssetAmount:     ev.AssetAmount,
			Status:          ev.Status,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OccurredAt.Equal(entries[j].OccurredAt) {
			return entries[i].OccurredAt.After(entries[j].OccurredAt)
		}
		return entries[i].EventID > entries[j].EventID
	})
	return entries
}

func positionStrings(positions map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(positions))
	for symbol, amount := range positions {
		out[symbol] = amount.String()
	}
	return out
}

// EmptySummary is the read-side default for a user with no projection yet.
func EmptySummary(userID string) *model.UserSummary {
	return &model.UserSummary{
		UserID:             userID,
		BalancesByCurrency: map[string]int64{},
		AssetPositions:     map[string]string{},
		Valuation:          model.ValuationFull,
		UpdatedAt:          time.Time{},
	}
}

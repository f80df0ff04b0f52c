package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// timelineColumns is the column list used for SELECT statements on the
// timeline_entries table.
const timelineColumns = `id, user_id, event_id, occurred_at, source, account_id,
	kind, description, fiat_currency, fiat_amount_minor, asset_symbol,
	asset_amount, status`

func queryUpsertUserSummary(ctx context.Context, db executor, s *model.UserSummary) error {
	balances, err := json.Marshal(s.BalancesByCurrency)
	if err != nil {
		return fmt.Errorf("marshal balances: %w", err)
	}
	positions, err := json.Marshal(s.AssetPositions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	return db.QueryRowContext(ctx, `
		INSERT INTO user_summaries (user_id, balances_by_currency, asset_positions, valuation, missing_valuations)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET balances_by_currency = $2, asset_positions = $3, valuation = $4,
			missing_valuations = $5, updated_at = NOW()
		RETURNING updated_at`,
		s.UserID, balances, positions, string(s.Valuation), s.MissingValuations,
	).Scan(&s.UpdatedAt)
}

func queryGetUserSummary(ctx context.Context, db executor, userID string) (*model.UserSummary, error) {
	var (
		s         model.UserSummary
		balances  []byte
		positions []byte
	)
	err := db.QueryRowContext(ctx, `
		SELECT user_id, balances_by_currency, asset_positions, valuation, missing_valuations, updated_at
		FROM user_summaries WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &balances, &positions, &s.Valuation, &s.MissingValuations, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(balances, &s.BalancesByCurrency); err != nil {
		return nil, fmt.Errorf("unmarshal balances: %w", err)
	}
	if err := json.Unmarshal(positions, &s.AssetPositions); err != nil {
		return nil, fmt.Errorf("unmarshal positions: %w", err)
	}
	return &s, nil
}

func queryUpsertAccountView(ctx context.Context, db executor, v *model.AccountView) error {
	balances, err := json.Marshal(v.BalancesByCurrency)
	if err != nil {
		return fmt.Errorf("marshal balances: %w", err)
	}
	positions, err := json.Marshal(v.AssetPositions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}

	return db.QueryRowContext(ctx, `
		INSERT INTO account_views (id, user_id, account_id, source, balances_by_currency, asset_positions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, account_id) DO UPDATE
		SET source = $4, balances_by_currency = $5, asset_positions = $6, updated_at = NOW()
		RETURNING updated_at`,
		v.ID, v.UserID, v.AccountID, string(v.Source), balances, positions,
	).Scan(&v.UpdatedAt)
}

func queryListAccountViews(ctx context.Context, db executor, userID string) ([]*model.AccountView, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, account_id, source, balances_by_currency, asset_positions, updated_at
		FROM account_views
		WHERE user_id = $1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*model.AccountView
	for rows.Next() {
		var (
			v         model.AccountView
			balances  []byte
			positions []byte
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.AccountID, &v.Source, &balances, &positions, &v.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(balances, &v.BalancesByCurrency); err != nil {
			return nil, fmt.Errorf("unmarshal balances: %w", err)
		}
		if err := json.Unmarshal(positions, &v.AssetPositions); err != nil {
			return nil, fmt.Errorf("unmarshal positions: %w", err)
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}

// queryReplaceTimeline rebuilds the user's timeline snapshot: delete all
// entries, then reinsert the new set.
func queryReplaceTimeline(ctx context.Context, db executor, userID string, entries []*model.TimelineEntry) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM timeline_entries WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete timeline: %w", err)
	}

	for _, e := range entries {
		_, err := db.ExecContext(ctx, `
			INSERT INTO timeline_entries (
				id, user_id, event_id, occurred_at, source, account_id,
				kind, description, fiat_currency, fiat_amount_minor,
				asset_symbol, asset_amount, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			e.ID,
			e.UserID,
			e.EventID,
			e.OccurredAt,
			string(e.Source),
			e.AccountID,
			string(e.Kind),
			nullString(e.Description),
			nullString(e.FiatCurrency),
			nullInt64Ptr(e.FiatAmountMinor),
			nullString(e.AssetSymbol),
			nullString(e.AssetAmount),
			string(e.Status),
		)
		if err != nil {
			return fmt.Errorf("insert timeline entry: %w", err)
		}
	}
	return nil
}

// queryListTimeline pages the timeline with a keyset predicate over
// (occurred_at DESC, event_id DESC), stable under concurrent inserts away
// from the cursor boundary.
func queryListTimeline(ctx context.Context, db executor, userID string, limit int, cursor *store.TimelineCursor) ([]*model.TimelineEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + timelineColumns + ` FROM timeline_entries WHERE user_id = $1`
	args := []any{userID}
	if cursor != nil {
		query += ` AND (occurred_at < $2 OR (occurred_at = $2 AND event_id < $3))`
		args = append(args, cursor.OccurredAt, cursor.EventID)
	}
	query += fmt.Sprintf(` ORDER BY occurred_at DESC, event_id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var entries []*model.TimelineEntry
	for rows.Next() {
		e, err := scanTimelineEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

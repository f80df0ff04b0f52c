package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/store"
)

// eventColumns is the column list used for SELECT statements on the
// normalized_events table.
const eventColumns = `id, user_id, source, source_event_id, account_id,
	occurred_at, kind, description, fiat_currency, fiat_amount_minor,
	asset_symbol, asset_amount, valuation_state, canonical_key, fingerprint,
	version, status, superseded_by_id, ingested_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateEvent(ctx context.Context, db executor, e *model.NormalizedEvent) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO normalized_events (
			id, user_id, source, source_event_id, account_id,
			occurred_at, kind, description, fiat_currency, fiat_amount_minor,
			asset_symbol, asset_amount, valuation_state, canonical_key, fingerprint,
			version, status, superseded_by_id
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18
		)
		RETURNING ingested_at`,
		e.ID,
		e.UserID,
		string(e.Source),
		e.SourceEventID,
		e.AccountID,
		e.OccurredAt,
		string(e.Kind),
		nullString(e.Description),
		nullString(e.FiatCurrency),
		nullInt64Ptr(e.FiatAmountMinor),
		nullString(e.AssetSymbol),
		nullString(e.AssetAmount),
		nullString(string(e.ValuationState)),
		e.CanonicalKey,
		e.Fingerprint,
		e.Version,
		string(e.Status),
		nullString(e.SupersededByID),
	).Scan(&e.IngestedAt)
}

func queryGetEvent(ctx context.Context, db executor, id string) (*model.NormalizedEvent, error) {
	row := db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM normalized_events WHERE id = $1`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

func querySupersedeEvent(ctx context.Context, db executor, id, supersededByID string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE normalized_events
		SET status = 'SUPERSEDED', superseded_by_id = $2
		WHERE id = $1 AND status = 'APPLIED'`,
		id, supersededByID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func querySetEventValuation(ctx context.Context, db executor, id, fiatCurrency string, fiatAmountMinor int64, state model.ValuationState) error {
	res, err := db.ExecContext(ctx, `
		UPDATE normalized_events
		SET fiat_currency = $2, fiat_amount_minor = $3, valuation_state = $4
		WHERE id = $1`,
		id, fiatCurrency, fiatAmountMinor, string(state),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryListEvents(ctx context.Context, db executor) ([]*model.NormalizedEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM normalized_events
		ORDER BY canonical_key, version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryGetEventHead(ctx context.Context, db executor, canonicalKey string) (*model.EventHead, error) {
	row := db.QueryRowContext(ctx, `
		SELECT canonical_key, user_id, latest_event_id, latest_version, updated_at
		FROM event_heads WHERE canonical_key = $1`, canonicalKey)
	h, err := scanEventHead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return h, err
}

func queryUpsertEventHead(ctx context.Context, db executor, h *model.EventHead) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO event_heads (canonical_key, user_id, latest_event_id, latest_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (canonical_key) DO UPDATE
		SET latest_event_id = $3, latest_version = $4, updated_at = NOW()
		RETURNING updated_at`,
		h.CanonicalKey, h.UserID, h.LatestEventID, h.LatestVersion,
	).Scan(&h.UpdatedAt)
}

func queryListEventHeads(ctx context.Context, db executor) ([]*model.EventHead, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT canonical_key, user_id, latest_event_id, latest_version, updated_at
		FROM event_heads ORDER BY canonical_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heads []*model.EventHead
	for rows.Next() {
		h, err := scanEventHead(rows)
		if err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	return heads, rows.Err()
}

// queryListLatestAppliedEvents resolves every head of the user to its current
// event and keeps only APPLIED rows: the authoritative latest-version set the
// projections are computed from.
func queryListLatestAppliedEvents(ctx context.Context, db executor, userID string) ([]*model.NormalizedEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+prefixColumns("e", eventColumns)+`
		FROM event_heads h
		JOIN normalized_events e ON e.id = h.latest_event_id
		WHERE h.user_id = $1 AND e.status = 'APPLIED'`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryCreateRawEvent(ctx context.Context, db executor, r *model.RawEvent) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO raw_events (id, source, user_id, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		r.ID, string(r.Source), r.UserID, r.Payload,
	).Scan(&r.CreatedAt)
}

func queryGetRawEvent(ctx context.Context, db executor, id string) (*model.RawEvent, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, source, user_id, payload, created_at
		FROM raw_events WHERE id = $1`, id)
	r, err := scanRawEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

func queryFindRawEvent(ctx context.Context, db executor, source model.Source, userID string, payload []byte) (*model.RawEvent, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, source, user_id, payload, created_at
		FROM raw_events
		WHERE source = $1 AND user_id = $2 AND payload = $3::jsonb
		ORDER BY created_at DESC
		LIMIT 1`,
		string(source), userID, payload)
	r, err := scanRawEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

func prefixColumns(alias, cols string) string {
	out := ""
	for i, c := range splitColumns(cols) {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/groblegark/wealthd/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a model.NormalizedEvent.
// The row must contain columns in the order defined by eventColumns.
func scanEvent(row scannable) (*model.NormalizedEvent, error) {
	var e model.NormalizedEvent
	var (
		description    sql.NullString
		fiatCurrency   sql.NullString
		fiatAmount     sql.NullInt64
		assetSymbol    sql.NullString
		assetAmount    sql.NullString
		valuationState sql.NullString
		supersededBy   sql.NullString
	)

	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Source,
		&e.SourceEventID,
		&e.AccountID,
		&e.OccurredAt,
		&e.Kind,
		&description,
		&fiatCurrency,
		&fiatAmount,
		&assetSymbol,
		&assetAmount,
		&valuationState,
		&e.CanonicalKey,
		&e.Fingerprint,
		&e.Version,
		&e.Status,
		&supersededBy,
		&e.IngestedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Description = description.String
	e.FiatCurrency = fiatCurrency.String
	e.AssetSymbol = assetSymbol.String
	e.AssetAmount = assetAmount.String
	e.ValuationState = model.ValuationState(valuationState.String)
	e.SupersededByID = supersededBy.String
	if fiatAmount.Valid {
		v := fiatAmount.Int64
		e.FiatAmountMinor = &v
	}

	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.NormalizedEvent, error) {
	var events []*model.NormalizedEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEventHead(row scannable) (*model.EventHead, error) {
	var h model.EventHead
	err := row.Scan(&h.CanonicalKey, &h.UserID, &h.LatestEventID, &h.LatestVersion, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanRawEvent(row scannable) (*model.RawEvent, error) {
	var r model.RawEvent
	err := row.Scan(&r.ID, &r.Source, &r.UserID, &r.Payload, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var (
		payload   []byte
		lockedAt  sql.NullTime
		lastError sql.NullString
	)
	err := row.Scan(&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &lockedAt, &lastError, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		j.Payload = json.RawMessage(payload)
	}
	if lockedAt.Valid {
		t := lockedAt.Time
		j.LockedAt = &t
	}
	j.LastError = lastError.String
	return &j, nil
}

func scanTimelineEntry(row scannable) (*model.TimelineEntry, error) {
	var e model.TimelineEntry
	var (
		description  sql.NullString
		fiatCurrency sql.NullString
		fiatAmount   sql.NullInt64
		assetSymbol  sql.NullString
		assetAmount  sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.EventID,
		&e.OccurredAt,
		&e.Source,
		&e.AccountID,
		&e.Kind,
		&description,
		&fiatCurrency,
		&fiatAmount,
		&assetSymbol,
		&assetAmount,
		&e.Status,
	)
	if err != nil {
		return nil, err
	}
	e.Description = description.String
	e.FiatCurrency = fiatCurrency.String
	e.AssetSymbol = assetSymbol.String
	e.AssetAmount = assetAmount.String
	if fiatAmount.Valid {
		v := fiatAmount.Int64
		e.FiatAmountMinor = &v
	}
	return &e, nil
}

// nullString converts an empty string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt64Ptr converts a nil pointer to a SQL NULL.
func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// jsonbBytes converts a raw JSON message to bytes, mapping empty to NULL.
func jsonbBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// splitColumns splits a comma-separated column list, trimming whitespace.
func splitColumns(cols string) []string {
	parts := strings.Split(cols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

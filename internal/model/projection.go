package model

import "time"

// ValuationCompleteness reports whether every non-fiat leg in a projection's
// underlying event set has a resolved valuation.
type ValuationCompleteness string

const (
	ValuationFull    ValuationCompleteness = "FULL"
	ValuationPartial ValuationCompleteness = "PARTIAL"
)

// UserSummary is the per-user read view: exact minor-unit balances by
// currency and decimal-string positions by asset symbol, recomputed from the
// latest APPLIED event versions. Fully derived and disposable.
type UserSummary struct {
	UserID             string                `json:"user_id"`
	BalancesByCurrency map[string]int64      `json:"balances_by_currency"`
	AssetPositions     map[string]string     `json:"asset_positions"`
	Valuation          ValuationCompleteness `json:"valuation"`
	MissingValuations  int                   `json:"missing_valuations"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// AccountView carries the same aggregates as UserSummary scoped to a single
// account.
type AccountView struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"user_id"`
	AccountID          string            `json:"account_id"`
	Source             Source            `json:"source"`
	BalancesByCurrency map[string]int64  `json:"balances_by_currency"`
	AssetPositions     map[string]string `json:"asset_positions"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// TimelineEntry is one denormalized row of the per-user timeline, carrying
// enough fields to render without joining back to the event log.
type TimelineEntry struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	EventID         string      `json:"event_id"`
	OccurredAt      time.Time   `json:"occurred_at"`
	Source          Source      `json:"source"`
	AccountID       string      `json:"account_id"`
	Kind            EventKind   `json:"kind"`
	Description     string      `json:"description,omitempty"`
	FiatCurrency    string      `json:"fiat_currency,omitempty"`
	FiatAmountMinor *int64      `json:"fiat_amount_minor,omitempty"`
	AssetSymbol     string      `json:"asset_symbol,omitempty"`
	AssetAmount     string      `json:"asset_amount,omitempty"`
	Status          EventStatus `json:"status"`
}

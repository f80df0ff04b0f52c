package model

import (
	"time"
)

// Source identifies the external system an event originated from.
type Source string

const (
	SourceBank    Source = "BANK"
	SourceCrypto  Source = "CRYPTO"
	SourceInsurer Source = "INSURER"
)

// String returns the string representation of the source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks whether the source is a known value.
func (s Source) IsValid() bool {
	switch s {
	case SourceBank, SourceCrypto, SourceInsurer:
		return true
	}
	return false
}

// EventKind classifies the financial movement an event records.
type EventKind string

const (
	KindCashCredit       EventKind = "CASH_CREDIT"
	KindCashDebit        EventKind = "CASH_DEBIT"
	KindCryptoDeposit    EventKind = "CRYPTO_DEPOSIT"
	KindCryptoWithdrawal EventKind = "CRYPTO_WITHDRAWAL"
	KindInsurancePremium EventKind = "INSURANCE_PREMIUM"
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case KindCashCredit, KindCashDebit, KindCryptoDeposit, KindCryptoWithdrawal, KindInsurancePremium:
		return true
	}
	return false
}

// EventStatus represents the reconciliation state of an event version.
type EventStatus string

const (
	EventApplied    EventStatus = "APPLIED"
	EventSuperseded EventStatus = "SUPERSEDED"
	EventIgnored    EventStatus = "IGNORED"
)

// String returns the string representation of the status.
func (s EventStatus) String() string {
	return string(s)
}

// ValuationState reports whether a non-fiat asset leg has a resolved
// fiat-equivalent value.
type ValuationState string

const (
	ValuationPending ValuationState = "PENDING"
	ValuationValued  ValuationState = "VALUED"
)

// NormalizedEvent is one immutable, versioned record of an observed financial
// movement. Rows are append-only: the only permitted mutations are the
// APPLIED -> SUPERSEDED status flip (with SupersededByID set) and valuation
// enrichment of a pending asset leg.
type NormalizedEvent struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Source          Source         `json:"source"`
	SourceEventID   string         `json:"source_event_id"`
	AccountID       string         `json:"account_id"`
	OccurredAt      time.Time      `json:"occurred_at"`
	Kind            EventKind      `json:"kind"`
	Description     string         `json:"description,omitempty"`
	FiatCurrency    string         `json:"fiat_currency,omitempty"`
	FiatAmountMinor *int64         `json:"fiat_amount_minor,omitempty"`
	AssetSymbol     string         `json:"asset_symbol,omitempty"`
	AssetAmount     string         `json:"asset_amount,omitempty"`
	ValuationState  ValuationState `json:"valuation_state,omitempty"`
	CanonicalKey    string         `json:"canonical_key"`
	Fingerprint     string         `json:"fingerprint"`
	Version         int            `json:"version"`
	Status          EventStatus    `json:"status"`
	SupersededByID  string         `json:"superseded_by_id,omitempty"`
	IngestedAt      time.Time      `json:"ingested_at"`
}

// EventHead points at the current latest version for one canonical key.
// At most one head exists per key; LatestVersion always equals the version of
// the event it points to, updated in the same transaction that writes the
// new event version.
type EventHead struct {
	CanonicalKey  string    `json:"canonical_key"`
	UserID        string    `json:"user_id"`
	LatestEventID string    `json:"latest_event_id"`
	LatestVersion int       `json:"latest_version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizedEventData is the input contract produced by the ingestion
// boundary: one normalized financial movement, not yet reconciled.
type NormalizedEventData struct {
	UserID          string         `json:"user_id"`
	Source          Source         `json:"source"`
	SourceEventID   string         `json:"source_event_id"`
	AccountID       string         `json:"account_id"`
	OccurredAt      time.Time      `json:"occurred_at"`
	Kind            EventKind      `json:"kind"`
	Description     string         `json:"description,omitempty"`
	FiatCurrency    string         `json:"fiat_currency,omitempty"`
	FiatAmountMinor *int64         `json:"fiat_amount_minor,omitempty"`
	AssetSymbol     string         `json:"asset_symbol,omitempty"`
	AssetAmount     string         `json:"asset_amount,omitempty"`
	ValuationState  ValuationState `json:"valuation_state,omitempty"`
}

// ReconcileAction describes the decision taken for an incoming event.
type ReconcileAction string

const (
	ActionApplied    ReconcileAction = "APPLIED"
	ActionIgnored    ReconcileAction = "IGNORED"
	ActionCorrection ReconcileAction = "CORRECTION"
)

// ReconciliationResult is the outcome of reconciling one normalized event.
type ReconciliationResult struct {
	EventID         string          `json:"event_id"`
	Status          EventStatus     `json:"status"`
	Action          ReconcileAction `json:"action"`
	Version         int             `json:"version"`
	PreviousEventID string          `json:"previous_event_id,omitempty"`
}

// RawEvent is the ingestion audit record: the payload exactly as received,
// before reconciliation.
type RawEvent struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	UserID    string    `json:"user_id"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// AssetPrice is one observed price point for a non-fiat asset, in minor units
// of the fiat currency.
type AssetPrice struct {
	AssetSymbol  string    `json:"asset_symbol"`
	FiatCurrency string    `json:"fiat_currency"`
	PriceMinor   int64     `json:"price_minor"`
	AsOf         time.Time `json:"as_of"`
}

// Package canonical derives the deterministic identity key and content
// fingerprint used to reconcile events into versioned streams.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/groblegark/wealthd/internal/model"
)

// Separator joins the four identity components of a canonical key.
const Separator = ":"

// escapeComponent makes Key injective: components containing the separator
// or the escape character cannot collide with component boundaries.
func escapeComponent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, Separator, `\:`)
}

// Key returns the canonical identity of one logical transaction stream:
// source, user, source-assigned event id and account joined with ":".
// The key is pure and stable across corrections of the same stream.
func Key(source model.Source, userID, sourceEventID, accountID string) string {
	parts := []string{
		escapeComponent(string(source)),
		escapeComponent(userID),
		escapeComponent(sourceEventID),
		escapeComponent(accountID),
	}
	return strings.Join(parts, Separator)
}

// Fingerprint computes a SHA-256 hex digest over the meaningful fields of a
// normalized event, in a fixed order. Identity bookkeeping (database id,
// ingestion time, status, version) is excluded, so two observations of the
// same movement fingerprint identically and a changed amount or description
// does not.
func Fingerprint(d model.NormalizedEventData) string {
	h := sha256.New()
	write := func(field, value string) {
		h.Write([]byte(field))
		h.Write([]byte{'='})
		h.Write([]byte(value))
		h.Write([]byte{'\n'})
	}

	write("user_id", d.UserID)
	write("source", string(d.Source))
	write("source_event_id", d.SourceEventID)
	write("account_id", d.AccountID)
	write("occurred_at", d.OccurredAt.UTC().Format(time.RFC3339Nano))
	write("kind", string(d.Kind))
	write("description", d.Description)
	write("fiat_currency", d.FiatCurrency)
	if d.FiatAmountMinor != nil {
		write("fiat_amount_minor", strconv.FormatInt(*d.FiatAmountMinor, 10))
	} else {
		write("fiat_amount_minor", "")
	}
	write("asset_symbol", d.AssetSymbol)
	write("asset_amount", d.AssetAmount)
	write("valuation_state", string(d.ValuationState))

	return hex.EncodeToString(h.Sum(nil))
}

package model

import (
	"errors"
	"testing"
	"time"
)

func validData() NormalizedEventData {
	amt := int64(100000)
	return NormalizedEventData{
		UserID:          "user-1",
		Source:          SourceBank,
		SourceEventID:   "tx-001",
		AccountID:       "acct-1",
		OccurredAt:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Kind:            KindCashCredit,
		FiatCurrency:    "EUR",
		FiatAmountMinor: &amt,
	}
}

func TestValidate(t *testing.T) {
	if err := (&NormalizedEventData{}).Validate(); err == nil {
		t.Fatal("empty payload should not validate")
	}

	for _, tc := range []struct {
		name   string
		mutate func(*NormalizedEventData)
		field  string
	}{
		{"missing source", func(d *NormalizedEventData) { d.Source = "" }, "source"},
		{"unknown source", func(d *NormalizedEventData) { d.Source = "PAYPAL" }, "source"},
		{"missing user", func(d *NormalizedEventData) { d.UserID = "" }, "user_id"},
		{"missing source event id", func(d *NormalizedEventData) { d.SourceEventID = "" }, "source_event_id"},
		{"missing account", func(d *NormalizedEventData) { d.AccountID = "" }, "account_id"},
		{"missing kind", func(d *NormalizedEventData) { d.Kind = "" }, "kind"},
		{"unknown kind", func(d *NormalizedEventData) { d.Kind = "WIRE" }, "kind"},
		{"zero occurred at", func(d *NormalizedEventData) { d.OccurredAt = time.Time{} }, "occurred_at"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := validData()
			tc.mutate(&d)
			err := d.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}

	d := validData()
	if err := d.Validate(); err != nil {
		t.Errorf("valid payload rejected: %v", err)
	}
}

func TestEnumsValid(t *testing.T) {
	for _, s := range []Source{SourceBank, SourceCrypto, SourceInsurer} {
		if !s.IsValid() {
			t.Errorf("source %q should be valid", s)
		}
	}
	if Source("X").IsValid() {
		t.Error("unknown source should be invalid")
	}
	for _, k := range []EventKind{KindCashCredit, KindCashDebit, KindCryptoDeposit, KindCryptoWithdrawal, KindInsurancePremium} {
		if !k.IsValid() {
			t.Errorf("kind %q should be valid", k)
		}
	}
	if EventKind("X").IsValid() {
		t.Error("unknown kind should be invalid")
	}
}

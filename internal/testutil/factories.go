package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/connector"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

// MakeID generates a UUID string for use in tests.
func MakeID() string {
	return uuid.New().String()
}

// Dec parses a decimal literal, panicking on malformed input. Test-only
// shorthand for decimal.RequireFromString.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Day returns midnight UTC n days after the fixed test epoch 2016-01-01.
// Keeping event times on a shared timeline makes holding-period
// arithmetic in tests readable.
func Day(n int) time.Time {
	return time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// BuyEvent builds a buy of amount asset against cost reference currency.
func BuyEvent(ts time.Time, asset string, amount, cost string) model.AccountingEvent {
	return model.AccountingEvent{
		Timestamp:      ts,
		Location:       "manual",
		Type:           model.EventBuy,
		PaidAsset:      "EUR",
		PaidAmount:     Dec(cost),
		ReceivedAsset:  asset,
		ReceivedAmount: Dec(amount),
	}
}

// SellEvent builds a sale of amount asset for proceeds reference currency.
func SellEvent(ts time.Time, asset string, amount, proceeds string) model.AccountingEvent {
	return model.AccountingEvent{
		Timestamp:      ts,
		Location:       "manual",
		Type:           model.EventSell,
		PaidAsset:      asset,
		PaidAmount:     Dec(amount),
		ReceivedAsset:  "EUR",
		ReceivedAmount: Dec(proceeds),
	}
}

// StubSource is a canned price source for tests. Prices are keyed by
// "FROM/TO"; lookups not present return apperrors.ErrPriceUnavailable.
// PriceForAll, when set, short-circuits lookup for every pair.
type StubSource struct {
	Prices      map[string]decimal.Decimal
	PriceForAll *decimal.Decimal
	Calls       int
}

// GetPrice implements pricing.Source.
func (s *StubSource) GetPrice(_ context.Context, fromAsset, toAsset string, _ time.Time) (decimal.Decimal, error) {
	s.Calls++
	if s.PriceForAll != nil {
		return *s.PriceForAll, nil
	}
	price, ok := s.Prices[fromAsset+"/"+toAsset]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", apperrors.ErrPriceUnavailable, fromAsset, toAsset)
	}
	return price, nil
}

// FixedSource returns a stub source that serves a single price for every
// pair. Convenient when a test does not care about valuations.
func FixedSource(price string) *StubSource {
	p := Dec(price)
	return &StubSource{PriceForAll: &p}
}

// StubTransport serves fixture payloads keyed by record kind. Err, when
// set, fails every call.
type StubTransport struct {
	Payloads map[connector.RecordKind][]json.RawMessage
	Err      error
}

// Records implements connector.Transport.
func (t *StubTransport) Records(_ context.Context, kind connector.RecordKind, _, _ time.Time) ([]json.RawMessage, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Payloads[kind], nil
}

// SequentialIDs returns an ID generator producing "rec-1", "rec-2", ...
// so ledger output is stable across runs.
func SequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
}

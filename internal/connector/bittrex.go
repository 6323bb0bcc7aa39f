package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

// bittrexTimeLayout covers bittrex timestamps, which come without a
// timezone and with fractional seconds.
const bittrexTimeLayout = "2006-01-02T15:04:05.999999999"

// bittrexTrade is one row of the bittrex order history.
type bittrexTrade struct {
	TimeStamp    string          `json:"TimeStamp"`
	Exchange     string          `json:"Exchange"`  // COST-ASSET, e.g. BTC-LTC
	OrderType    string          `json:"OrderType"` // LIMIT_BUY | LIMIT_SELL
	Quantity     decimal.Decimal `json:"Quantity"`
	PricePerUnit decimal.Decimal `json:"PricePerUnit"`
	Commission   decimal.Decimal `json:"Commission"` // absolute, in cost currency
}

// BittrexAdapter maps bittrex order history to trade events. Bittrex has
// no margin or lending products, so trades are all it produces.
type BittrexAdapter struct {
	transport Transport
}

// NewBittrexAdapter creates a bittrex adapter over the given transport.
func NewBittrexAdapter(transport Transport) *BittrexAdapter {
	return &BittrexAdapter{transport: transport}
}

// Name implements Adapter.
func (a *BittrexAdapter) Name() string { return "bittrex" }

// FetchRecords implements Adapter.
func (a *BittrexAdapter) FetchRecords(ctx context.Context, start, end time.Time) ([]RawRecord, error) {
	payloads, err := a.transport.Records(ctx, KindTrade, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: bittrex trades: %w", apperrors.ErrConnectorFailure, err)
	}

	records := make([]RawRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, RawRecord{Kind: KindTrade, Data: p})
	}
	return records, nil
}

// MapRecord implements Adapter. In a bittrex market COST-ASSET the first
// symbol is the cost currency: a LIMIT_BUY on BTC-LTC acquires LTC and
// pays BTC. The commission is an absolute fee in the cost currency.
func (a *BittrexAdapter) MapRecord(rec RawRecord) ([]model.AccountingEvent, error) {
	if rec.Kind != KindTrade {
		return nil, fmt.Errorf("%w: bittrex does not produce %q records", apperrors.ErrMalformedRecord, rec.Kind)
	}

	var t bittrexTrade
	if err := json.Unmarshal(rec.Data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedRecord, err)
	}

	parts := strings.Split(t.Exchange, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: bad bittrex market %q", apperrors.ErrMalformedRecord, t.Exchange)
	}
	costAsset, tradedAsset := parts[0], parts[1]

	ts, err := time.ParseInLocation(bittrexTimeLayout, t.TimeStamp, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad bittrex timestamp %q: %w", apperrors.ErrMalformedRecord, t.TimeStamp, err)
	}
	if t.Quantity.IsNegative() || t.PricePerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount in bittrex trade", apperrors.ErrMalformedRecord)
	}

	cost := t.PricePerUnit.Mul(t.Quantity)
	ev := model.AccountingEvent{
		Timestamp: ts,
		Location:  a.Name(),
		FeeAsset:  costAsset,
		FeeAmount: t.Commission,
	}

	switch t.OrderType {
	case "LIMIT_BUY", "MARKET_BUY":
		ev.Type = model.EventBuy
		ev.ReceivedAsset, ev.ReceivedAmount = tradedAsset, t.Quantity
		ev.PaidAsset, ev.PaidAmount = costAsset, cost
	case "LIMIT_SELL", "MARKET_SELL":
		ev.Type = model.EventSell
		ev.PaidAsset, ev.PaidAmount = tradedAsset, t.Quantity
		ev.ReceivedAsset, ev.ReceivedAmount = costAsset, cost
	default:
		return nil, fmt.Errorf("%w: unknown bittrex order type %q", apperrors.ErrMalformedRecord, t.OrderType)
	}

	return []model.AccountingEvent{ev}, nil
}

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

// poloniexTimeLayout is the date format poloniex uses in trade and
// lending history.
const poloniexTimeLayout = "2006-01-02 15:04:05"

// poloniexTrade is one row of returnTradeHistory, flattened with its
// market pair. Fees are percentages, not absolute amounts.
type poloniexTrade struct {
	Pair     string          `json:"pair"` // COST_ASSET, e.g. BTC_ETH
	Date     string          `json:"date"`
	Type     string          `json:"type"`     // buy | sell
	Category string          `json:"category"` // exchange | settlement
	Amount   decimal.Decimal `json:"amount"`
	Rate     decimal.Decimal `json:"rate"`
	Fee      decimal.Decimal `json:"fee"`
}

// poloniexLoan is one row of returnLendingHistory.
type poloniexLoan struct {
	Currency string          `json:"currency"`
	Earned   decimal.Decimal `json:"earned"`
	Fee      decimal.Decimal `json:"fee"`
	Close    string          `json:"close"`
}

// poloniexMovement is one deposit/withdrawal row.
type poloniexMovement struct {
	Currency  string          `json:"currency"`
	Category  string          `json:"category"` // deposit | withdrawal
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp int64           `json:"timestamp"`
}

// PoloniexAdapter maps poloniex trade, lending and movement history to
// accounting events.
type PoloniexAdapter struct {
	transport Transport
}

// NewPoloniexAdapter creates a poloniex adapter over the given transport.
func NewPoloniexAdapter(transport Transport) *PoloniexAdapter {
	return &PoloniexAdapter{transport: transport}
}

// Name implements Adapter.
func (a *PoloniexAdapter) Name() string { return "poloniex" }

// FetchRecords implements Adapter. Trades, loans and movements are
// fetched in a fixed kind order so the record index is reproducible.
func (a *PoloniexAdapter) FetchRecords(ctx context.Context, start, end time.Time) ([]RawRecord, error) {
	var records []RawRecord
	for _, kind := range []RecordKind{KindTrade, KindLoan, KindMovement} {
		payloads, err := a.transport.Records(ctx, kind, start, end)
		if err != nil {
			return nil, fmt.Errorf("%w: poloniex %s: %w", apperrors.ErrConnectorFailure, kind, err)
		}
		for _, p := range payloads {
			records = append(records, RawRecord{Kind: kind, Data: p})
		}
	}
	return records, nil
}

// MapRecord implements Adapter.
func (a *PoloniexAdapter) MapRecord(rec RawRecord) ([]model.AccountingEvent, error) {
	switch rec.Kind {
	case KindTrade:
		return a.mapTrade(rec.Data)
	case KindLoan:
		return a.mapLoan(rec.Data)
	case KindMovement:
		return a.mapMovement(rec.Data)
	default:
		return nil, fmt.Errorf("%w: poloniex does not produce %q records", apperrors.ErrMalformedRecord, rec.Kind)
	}
}

// mapTrade converts one poloniex trade. In a poloniex pair COST_ASSET
// the first symbol is the cost currency: for BTC_ETH a buy acquires ETH
// and pays BTC. Settlement-category trades become forced disposals, not
// trades.
func (a *PoloniexAdapter) mapTrade(data json.RawMessage) ([]model.AccountingEvent, error) {
	var t poloniexTrade
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedRecord, err)
	}

	costAsset, tradedAsset, err := splitPoloniexPair(t.Pair)
	if err != nil {
		return nil, err
	}

	ts, err := time.ParseInLocation(poloniexTimeLayout, t.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad poloniex date %q: %w", apperrors.ErrMalformedRecord, t.Date, err)
	}
	if t.Amount.IsNegative() || t.Rate.IsNegative() || t.Fee.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount in poloniex trade", apperrors.ErrMalformedRecord)
	}

	cost := t.Rate.Mul(t.Amount)
	ev := model.AccountingEvent{
		Timestamp: ts,
		Location:  a.Name(),
	}

	switch t.Type {
	case "buy":
		ev.ReceivedAsset, ev.ReceivedAmount = tradedAsset, t.Amount
		ev.PaidAsset, ev.PaidAmount = costAsset, cost
		// Percentage fee is taken from the acquired asset.
		ev.FeeAsset, ev.FeeAmount = tradedAsset, t.Amount.Mul(t.Fee)
		ev.Type = model.EventBuy
		if t.Category == "settlement" {
			ev.Type = model.EventSettlementBuy
		}
	case "sell":
		ev.PaidAsset, ev.PaidAmount = tradedAsset, t.Amount
		ev.ReceivedAsset, ev.ReceivedAmount = costAsset, cost
		ev.FeeAsset, ev.FeeAmount = costAsset, cost.Mul(t.Fee)
		ev.Type = model.EventSell
		if t.Category == "settlement" {
			ev.Type = model.EventSettlementSell
		}
	default:
		return nil, fmt.Errorf("%w: unknown poloniex trade type %q", apperrors.ErrMalformedRecord, t.Type)
	}

	return []model.AccountingEvent{ev}, nil
}

// mapLoan converts one lending history row into a loan interest event.
// Only the net earned amount (earned minus lending fee) is income.
func (a *PoloniexAdapter) mapLoan(data json.RawMessage) ([]model.AccountingEvent, error) {
	var l poloniexLoan
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedRecord, err)
	}
	if l.Currency == "" {
		return nil, fmt.Errorf("%w: poloniex loan without currency", apperrors.ErrMalformedRecord)
	}

	ts, err := time.ParseInLocation(poloniexTimeLayout, l.Close, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: bad poloniex loan close %q: %w", apperrors.ErrMalformedRecord, l.Close, err)
	}

	net := l.Earned.Sub(l.Fee)
	if net.IsNegative() {
		net = decimal.Zero
	}

	return []model.AccountingEvent{{
		Timestamp:      ts,
		Location:       a.Name(),
		Type:           model.EventLoan,
		ReceivedAsset:  l.Currency,
		ReceivedAmount: net,
	}}, nil
}

// mapMovement converts one deposit/withdrawal. Deposits do not move the
// ledger; withdrawals carry their fee as the only disposal.
func (a *PoloniexAdapter) mapMovement(data json.RawMessage) ([]model.AccountingEvent, error) {
	var m poloniexMovement
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedRecord, err)
	}
	if m.Currency == "" || m.Timestamp == 0 {
		return nil, fmt.Errorf("%w: poloniex movement missing currency or timestamp", apperrors.ErrMalformedRecord)
	}

	ev := model.AccountingEvent{
		Timestamp: time.Unix(m.Timestamp, 0).UTC(),
		Location:  a.Name(),
		FeeAsset:  m.Currency,
		FeeAmount: m.Fee,
	}

	switch m.Category {
	case "deposit":
		ev.Type = model.EventTransferIn
		ev.ReceivedAsset, ev.ReceivedAmount = m.Currency, m.Amount
	case "withdrawal":
		ev.Type = model.EventTransferOut
		ev.PaidAsset, ev.PaidAmount = m.Currency, m.Amount
	default:
		return nil, fmt.Errorf("%w: unknown poloniex movement category %q", apperrors.ErrMalformedRecord, m.Category)
	}

	return []model.AccountingEvent{ev}, nil
}

// splitPoloniexPair splits "BTC_ETH" into ("BTC", "ETH").
func splitPoloniexPair(pair string) (costAsset, tradedAsset string, err error) {
	parts := strings.Split(pair, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: bad poloniex pair %q", apperrors.ErrMalformedRecord, pair)
	}
	return parts[0], parts[1], nil
}

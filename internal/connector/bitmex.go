package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

// satoshisPerBTC converts bitmex XBt wallet amounts to BTC.
var satoshisPerBTC = decimal.NewFromInt(100_000_000)

// bitmexMargin is one realized P&L row from the bitmex wallet history.
// Amounts are signed satoshis.
type bitmexMargin struct {
	TransactTime string `json:"transactTime"` // RFC3339
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"` // always XBt
	Address      string `json:"address"`
}

// BitmexAdapter maps bitmex realized margin P&L to margin close events.
// Bitmex only deals in margin trading, so it produces nothing else.
type BitmexAdapter struct {
	transport Transport
}

// NewBitmexAdapter creates a bitmex adapter over the given transport.
func NewBitmexAdapter(transport Transport) *BitmexAdapter {
	return &BitmexAdapter{transport: transport}
}

// Name implements Adapter.
func (a *BitmexAdapter) Name() string { return "bitmex" }

// FetchRecords implements Adapter.
func (a *BitmexAdapter) FetchRecords(ctx context.Context, start, end time.Time) ([]RawRecord, error) {
	payloads, err := a.transport.Records(ctx, KindMargin, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: bitmex margin: %w", apperrors.ErrConnectorFailure, err)
	}

	records := make([]RawRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, RawRecord{Kind: KindMargin, Data: p})
	}
	return records, nil
}

// MapRecord implements Adapter. A position is treated as a unit: only
// the net result at close becomes an event. Profit fills the received
// side, loss the paid side.
func (a *BitmexAdapter) MapRecord(rec RawRecord) ([]model.AccountingEvent, error) {
	if rec.Kind != KindMargin {
		return nil, fmt.Errorf("%w: bitmex does not produce %q records", apperrors.ErrMalformedRecord, rec.Kind)
	}

	var m bitmexMargin
	if err := json.Unmarshal(rec.Data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedRecord, err)
	}
	if m.Currency != "XBt" {
		return nil, fmt.Errorf("%w: bitmex margin in unexpected currency %q", apperrors.ErrMalformedRecord, m.Currency)
	}

	ts, err := time.Parse(time.RFC3339, m.TransactTime)
	if err != nil {
		return nil, fmt.Errorf("%w: bad bitmex transactTime %q: %w", apperrors.ErrMalformedRecord, m.TransactTime, err)
	}

	profitLoss := decimal.NewFromInt(m.Amount).Div(satoshisPerBTC)
	ev := model.AccountingEvent{
		Timestamp: ts.UTC(),
		Location:  a.Name(),
		Type:      model.EventMarginClose,
		Notes:     m.Address,
	}
	if profitLoss.IsNegative() {
		ev.PaidAsset, ev.PaidAmount = "BTC", profitLoss.Neg()
	} else {
		ev.ReceivedAsset, ev.ReceivedAmount = "BTC", profitLoss
	}

	return []model.AccountingEvent{ev}, nil
}

package connector

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

func TestBittrexAdapter_MapRecord(t *testing.T) {
	adapter := NewBittrexAdapter(nil)

	t.Run("limit buy acquires the traded asset", func(t *testing.T) {
		ev := mapOne(t, adapter, KindTrade, `{
			"TimeStamp": "2017-06-01T10:30:00.123456789",
			"Exchange": "BTC-LTC",
			"OrderType": "LIMIT_BUY",
			"Quantity": "20",
			"PricePerUnit": "0.005",
			"Commission": "0.00025"
		}`)

		if ev.Type != model.EventBuy {
			t.Errorf("Expected buy event, got %q", ev.Type)
		}
		if ev.ReceivedAsset != "LTC" || !ev.ReceivedAmount.Equal(dec("20")) {
			t.Errorf("Expected to receive 20 LTC, got %s %s", ev.ReceivedAmount, ev.ReceivedAsset)
		}
		if ev.PaidAsset != "BTC" || !ev.PaidAmount.Equal(dec("0.1")) {
			t.Errorf("Expected to pay 0.1 BTC, got %s %s", ev.PaidAmount, ev.PaidAsset)
		}
		// Commission is absolute, in the cost currency.
		if ev.FeeAsset != "BTC" || !ev.FeeAmount.Equal(dec("0.00025")) {
			t.Errorf("Expected fee 0.00025 BTC, got %s %s", ev.FeeAmount, ev.FeeAsset)
		}
	})

	t.Run("market sell disposes the traded asset", func(t *testing.T) {
		ev := mapOne(t, adapter, KindTrade, `{
			"TimeStamp": "2017-06-01T10:30:00",
			"Exchange": "BTC-LTC",
			"OrderType": "MARKET_SELL",
			"Quantity": "20",
			"PricePerUnit": "0.005",
			"Commission": "0.00025"
		}`)

		if ev.Type != model.EventSell {
			t.Errorf("Expected sell event, got %q", ev.Type)
		}
		if ev.PaidAsset != "LTC" || !ev.PaidAmount.Equal(dec("20")) {
			t.Errorf("Expected to pay 20 LTC, got %s %s", ev.PaidAmount, ev.PaidAsset)
		}
		if ev.ReceivedAsset != "BTC" || !ev.ReceivedAmount.Equal(dec("0.1")) {
			t.Errorf("Expected to receive 0.1 BTC, got %s %s", ev.ReceivedAmount, ev.ReceivedAsset)
		}
	})

	t.Run("unknown order type is malformed", func(t *testing.T) {
		_, err := adapter.MapRecord(RawRecord{Kind: KindTrade, Data: json.RawMessage(`{
			"TimeStamp": "2017-06-01T10:30:00",
			"Exchange": "BTC-LTC",
			"OrderType": "CEILING_BUY",
			"Quantity": "1",
			"PricePerUnit": "1",
			"Commission": "0"
		}`)})
		if !errors.Is(err, apperrors.ErrMalformedRecord) {
			t.Errorf("Expected ErrMalformedRecord, got %v", err)
		}
	})

	t.Run("bad market name is malformed", func(t *testing.T) {
		_, err := adapter.MapRecord(RawRecord{Kind: KindTrade, Data: json.RawMessage(`{
			"TimeStamp": "2017-06-01T10:30:00",
			"Exchange": "BTCLTC",
			"OrderType": "LIMIT_BUY",
			"Quantity": "1",
			"PricePerUnit": "1",
			"Commission": "0"
		}`)})
		if !errors.Is(err, apperrors.ErrMalformedRecord) {
			t.Errorf("Expected ErrMalformedRecord, got %v", err)
		}
	})
}

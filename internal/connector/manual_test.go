package connector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

func TestManualAdapter_RangeFilter(t *testing.T) {
	events := []model.AccountingEvent{
		manualBuy(day(0), "BTC", "1", "1000"),
		manualBuy(day(10), "BTC", "1", "1100"),
		manualBuy(day(20), "BTC", "1", "1200"),
	}
	adapter := NewManualAdapter("external", events)

	records, err := adapter.FetchRecords(context.Background(), day(5), day(20))
	if err != nil {
		t.Fatalf("Failed to fetch records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record in [day 5, day 20), got %d", len(records))
	}

	mapped, err := adapter.MapRecord(records[0])
	if err != nil {
		t.Fatalf("Failed to map record: %v", err)
	}
	if len(mapped) != 1 || !mapped[0].Timestamp.Equal(day(10)) {
		t.Errorf("Expected the day 10 event, got %+v", mapped)
	}
}

func TestManualAdapter_WrongKind(t *testing.T) {
	adapter := NewManualAdapter("external", nil)

	_, err := adapter.MapRecord(RawRecord{Kind: KindTrade, Data: json.RawMessage(`{}`)})
	if !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord, got %v", err)
	}
}

func TestManualAdapter_ValidatesEvent(t *testing.T) {
	adapter := NewManualAdapter("external", nil)

	missing := json.RawMessage(`{"type":"buy"}`)
	if _, err := adapter.MapRecord(RawRecord{Kind: KindEvent, Data: missing}); !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for missing timestamp, got %v", err)
	}

	negative := manualBuy(day(0), "BTC", "1", "1000")
	negative.PaidAmount = dec("-1000")
	data, err := json.Marshal(negative)
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	if _, err := adapter.MapRecord(RawRecord{Kind: KindEvent, Data: data}); !errors.Is(err, apperrors.ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for negative amount, got %v", err)
	}
}

func TestManualAdapter_DefaultsLocation(t *testing.T) {
	ev := manualBuy(day(0), "BTC", "1", "1000")
	ev.Location = ""
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}

	adapter := NewManualAdapter("external", nil)
	mapped, err := adapter.MapRecord(RawRecord{Kind: KindEvent, Data: data})
	if err != nil {
		t.Fatalf("Failed to map record: %v", err)
	}
	if mapped[0].Location != "external" {
		t.Errorf("Expected location external, got %s", mapped[0].Location)
	}
}

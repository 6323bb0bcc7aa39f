package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

// ManualAdapter serves user-entered events that no exchange reports:
// asset forks, external trades, on-chain transfers. Records are
// already-normalized accounting events in JSON form.
type ManualAdapter struct {
	name   string
	events []model.AccountingEvent
}

// NewManualAdapter creates an adapter over a fixed set of user-entered
// events for the given location label (e.g. "external").
func NewManualAdapter(name string, events []model.AccountingEvent) *ManualAdapter {
	return &ManualAdapter{name: name, events: events}
}

// Name implements Adapter.
func (a *ManualAdapter) Name() string { return a.name }

// FetchRecords implements Adapter. Events outside the requested range
// are filtered here so the normalizer sees only in-range records.
func (a *ManualAdapter) FetchRecords(_ context.Context, start, end time.Time) ([]RawRecord, error) {
	var records []RawRecord
	for _, ev := range a.events {
		if !inRange(ev.Timestamp, start, end) {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("%w: manual event: %w", apperrors.ErrConnectorFailure, err)
		}
		records = append(records, RawRecord{Kind: KindEvent, Data: data})
	}
	return records, nil
}

// MapRecord implements Adapter.
func (a *ManualAdapter) MapRecord(rec RawRecord) ([]model.AccountingEvent, error) {
	if rec.Kind != KindEvent {
		return nil, fmt.Errorf("%w: manual adapter does not produce %q records", apperrors.ErrMalformedRecord, rec.Kind)
	}

	var ev model.AccountingEvent
	if err := json.Unmarshal(rec.Data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedRecord, err)
	}
	if ev.Timestamp.IsZero() || ev.Type == "" {
		return nil, fmt.Errorf("%w: manual event missing timestamp or type", apperrors.ErrMalformedRecord)
	}
	if ev.PaidAmount.IsNegative() || ev.ReceivedAmount.IsNegative() || ev.FeeAmount.IsNegative() {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedRecord, apperrors.ErrNegativeAmount)
	}
	if ev.Location == "" {
		ev.Location = a.name
	}

	return []model.AccountingEvent{ev}, nil
}

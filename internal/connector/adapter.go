// Package connector normalizes heterogeneous exchange and on-chain
// records into the common accounting event stream.
//
// Each location is a tagged Adapter variant behind one fetch capability:
// adding an exchange means adding an adapter with its mapping function,
// never touching the ledger. The Normalizer merges all adapters into a
// single deterministic, timestamp-ordered event sequence.
package connector

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coinfolio/taxledger-backend/internal/model"
)

// RecordKind tags the category of a raw record so the adapter's mapper
// knows which shape to decode.
type RecordKind string

const (
	KindTrade    RecordKind = "trade"
	KindMargin   RecordKind = "margin"
	KindLoan     RecordKind = "loan"
	KindMovement RecordKind = "movement"
	KindEvent    RecordKind = "event" // already-normalized manual entries
)

// RawRecord is one record as fetched from a location, before mapping.
type RawRecord struct {
	Kind RecordKind
	Data json.RawMessage
}

// Adapter is the capability contract every location fulfils: fetch raw
// records for a time range and map each one to accounting events. The
// core knows nothing else about connector internals.
type Adapter interface {
	// Name returns the location identifier, e.g. "poloniex".
	Name() string

	// FetchRecords returns all raw records for the range in the order
	// the location reports them. The order must be reproducible for
	// identical inputs.
	FetchRecords(ctx context.Context, start, end time.Time) ([]RawRecord, error)

	// MapRecord converts one raw record into zero or more accounting
	// events. A mapping failure skips only that record.
	MapRecord(rec RawRecord) ([]model.AccountingEvent, error)
}

// Transport fetches raw payloads of one kind from a location's API or
// export files. Adapters stay transport-agnostic so tests can feed
// fixture payloads.
type Transport interface {
	Records(ctx context.Context, kind RecordKind, start, end time.Time) ([]json.RawMessage, error)
}

// inRange reports whether ts falls inside the half-open window
// [start, end). Adapters filter with it so every location applies the
// same boundary rule.
func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && ts.Before(end)
}

package connector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
)

// WarnFunc collects recoverable faults onto the current report run.
type WarnFunc func(format string, args ...any)

// Normalizer turns the configured adapters into one merged accounting
// event stream. A Normalize call is one-shot: re-running a report
// requests a fresh sequence.
type Normalizer struct {
	adapters []Adapter
	warn     WarnFunc
}

// NewNormalizer creates a normalizer over the adapters in declaration
// order. That order is the tie-break for events sharing a timestamp.
func NewNormalizer(adapters []Adapter, warn WarnFunc) *Normalizer {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	return &Normalizer{adapters: adapters, warn: warn}
}

// Normalize fetches all locations for the range in parallel, maps every
// record, and returns the merged, timestamp-ordered event slice.
//
// One failing location is skipped with a warning; the call fails only
// when every location fails (or the context is cancelled). One malformed
// record is skipped with a warning and never aborts the rest of the
// stream. Ordering is deterministic: (timestamp, adapter declaration
// index, record index).
func (n *Normalizer) Normalize(ctx context.Context, start, end time.Time) ([]model.AccountingEvent, error) {
	if len(n.adapters) == 0 {
		return nil, nil
	}

	fetched := make([][]RawRecord, len(n.adapters))
	failed := make([]error, len(n.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range n.adapters {
		g.Go(func() error {
			records, err := adapter.FetchRecords(gctx, start, end)
			if err != nil {
				// Per-location skip; total failure is decided below.
				failed[i] = err
				return nil
			}
			fetched[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failures := 0
	for i, err := range failed {
		if err != nil {
			failures++
			n.warn("location %s skipped: %v", n.adapters[i].Name(), err)
		}
	}
	if failures == len(n.adapters) {
		return nil, fmt.Errorf("%w: %d locations", apperrors.ErrAllConnectorsFailed, failures)
	}

	var events []model.AccountingEvent
	for i, records := range fetched {
		adapter := n.adapters[i]
		for j, rec := range records {
			mapped, err := adapter.MapRecord(rec)
			if err != nil {
				n.warn("skipping record %d from %s: %v", j, adapter.Name(), err)
				continue
			}
			for _, ev := range mapped {
				if !inRange(ev.Timestamp, start, end) {
					continue
				}
				ev.Source = model.SourceRef{
					Location:     adapter.Name(),
					AdapterIndex: i,
					RecordIndex:  j,
				}
				events = append(events, ev)
			}
		}
	}

	sort.SliceStable(events, func(a, b int) bool {
		ea, eb := events[a], events[b]
		if !ea.Timestamp.Equal(eb.Timestamp) {
			return ea.Timestamp.Before(eb.Timestamp)
		}
		if ea.Source.AdapterIndex != eb.Source.AdapterIndex {
			return ea.Source.AdapterIndex < eb.Source.AdapterIndex
		}
		return ea.Source.RecordIndex < eb.Source.RecordIndex
	})

	return events, nil
}

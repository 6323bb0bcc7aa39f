// Package ledger implements deterministic FIFO cost-basis matching.
//
// A Ledger consumes the normalized event stream in timestamp order,
// maintains per-asset queues of open acquisition lots, and matches every
// disposal against the oldest lots first, emitting one gain/loss record
// per lot consumed. It is owned by a single report run and is never
// shared, so it needs no locking.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/model"
	"github.com/coinfolio/taxledger-backend/internal/taxrule"
)

// Valuer answers "what was one unit of fromAsset worth in toAsset at
// this time". Implementations must return apperrors.ErrPriceUnavailable
// when no price exists; the ledger then falls back to zero value with a
// warning instead of aborting.
type Valuer interface {
	Resolve(ctx context.Context, fromAsset, toAsset string, ts time.Time) (decimal.Decimal, error)
}

// WarnFunc collects recoverable valuation and matching warnings.
type WarnFunc func(format string, args ...any)

// Ledger holds the matching state of one report run.
type Ledger struct {
	policy      model.TaxPolicy
	valuer      Valuer
	warn        WarnFunc
	reportStart time.Time

	queues map[string][]*model.Lot
	held   map[string]decimal.Decimal

	records []model.GainLossRecord
	lastTS  time.Time
	newID   func() string
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithIDFunc overrides record ID generation. Used by tests that need
// reproducible output.
func WithIDFunc(f func() string) Option {
	return func(l *Ledger) { l.newID = f }
}

// New creates a ledger for one run. Events before reportStart still move
// the lot queues (they establish cost basis) but emit no records; only
// disposals at or after reportStart are reported.
func New(policy model.TaxPolicy, valuer Valuer, reportStart time.Time, warn WarnFunc, opts ...Option) *Ledger {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	l := &Ledger{
		policy:      policy,
		valuer:      valuer,
		warn:        warn,
		reportStart: reportStart,
		queues:      make(map[string][]*model.Lot),
		held:        make(map[string]decimal.Decimal),
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Records returns the gain/loss records emitted so far, in emission order.
func (l *Ledger) Records() []model.GainLossRecord {
	return l.records
}

// Balance returns the running amount held of an asset.
func (l *Ledger) Balance(asset string) decimal.Decimal {
	return l.held[asset]
}

// Process applies one event to the ledger. Events must arrive in
// non-decreasing timestamp order; a violation is a programming error in
// the normalizer merge and aborts the run.
func (l *Ledger) Process(ctx context.Context, ev model.AccountingEvent) error {
	if ev.Timestamp.Before(l.lastTS) {
		return fmt.Errorf("%w: %s after %s", apperrors.ErrOutOfOrderEvent,
			ev.Timestamp.UTC().Format(time.RFC3339), l.lastTS.UTC().Format(time.RFC3339))
	}
	l.lastTS = ev.Timestamp

	ref := l.policy.ReferenceCurrency

	switch ev.Type {
	case model.EventBuy:
		return l.processTrade(ctx, ev)

	case model.EventSell:
		return l.processTrade(ctx, ev)

	case model.EventSettlementBuy, model.EventSettlementSell:
		// A settlement is a forced disposal of the settled asset; the
		// received side never enters the ledger.
		if ev.PaidAsset != "" && ev.PaidAsset != ref {
			proceeds := l.valueOf(ctx, ev.PaidAsset, ev.PaidAmount, ev.Timestamp)
			l.dispose(ev, ev.PaidAsset, ev.PaidAmount, proceeds, false, true)
		}
		return l.disposeCryptoFee(ctx, ev)

	case model.EventMarginClose:
		return l.processMarginClose(ctx, ev)

	case model.EventLoan:
		return l.processIncome(ctx, ev, false)

	case model.EventAssetFork:
		// Forked assets are acquired at zero cost basis; the holding
		// period starts at the fork, not at the original acquisition.
		l.acquire(ev.ReceivedAsset, ev.ReceivedAmount, decimal.Zero, ev.Timestamp)
		return nil

	case model.EventTransferIn:
		// Deposits between own locations have no ledger effect.
		return nil

	case model.EventTransferOut:
		// Moving own funds is not a disposal; the withdrawal fee is.
		return l.disposeCryptoFee(ctx, ev)

	default:
		return fmt.Errorf("%w: unknown event type %q", apperrors.ErrMalformedRecord, ev.Type)
	}
}

// processTrade handles buys and sells, including crypto-to-crypto trades
// which are a disposal of the paid asset plus an acquisition of the
// received asset at the same timestamp.
func (l *Ledger) processTrade(ctx context.Context, ev model.AccountingEvent) error {
	ref := l.policy.ReferenceCurrency
	cryptoToCrypto := ev.PaidAsset != ref && ev.ReceivedAsset != ref

	// Disposal side.
	if ev.PaidAsset != "" && ev.PaidAsset != ref && !ev.PaidAmount.IsZero() {
		var proceeds decimal.Decimal
		if ev.ReceivedAsset == ref {
			proceeds = ev.ReceivedAmount
			if ev.FeeAsset == ref {
				proceeds = proceeds.Sub(ev.FeeAmount)
			}
		} else {
			proceeds = l.valueOf(ctx, ev.PaidAsset, ev.PaidAmount, ev.Timestamp)
		}
		l.dispose(ev, ev.PaidAsset, ev.PaidAmount, proceeds, cryptoToCrypto, false)
	}

	// Acquisition side.
	if ev.ReceivedAsset != "" && ev.ReceivedAsset != ref && !ev.ReceivedAmount.IsZero() {
		var cost decimal.Decimal
		if ev.PaidAsset == ref {
			cost = ev.PaidAmount
			if ev.FeeAsset == ref {
				cost = cost.Add(ev.FeeAmount)
			}
		} else {
			cost = l.valueOf(ctx, ev.ReceivedAsset, ev.ReceivedAmount, ev.Timestamp)
		}
		unitCost := decimal.Zero
		if !ev.ReceivedAmount.IsZero() {
			unitCost = cost.Div(ev.ReceivedAmount)
		}
		l.acquire(ev.ReceivedAsset, ev.ReceivedAmount, unitCost, ev.Timestamp)
	}

	return l.disposeCryptoFee(ctx, ev)
}

// processMarginClose books only the net result of a closed position:
// profit becomes income plus a market-cost lot, loss consumes lots with
// zero proceeds. Opening a position never moves the ledger.
func (l *Ledger) processMarginClose(ctx context.Context, ev model.AccountingEvent) error {
	if !ev.ReceivedAmount.IsZero() {
		return l.processIncome(ctx, ev, true)
	}
	if !ev.PaidAmount.IsZero() {
		l.dispose(ev, ev.PaidAsset, ev.PaidAmount, decimal.Zero, false, true)
	}
	return nil
}

// processIncome books earned amounts (loan interest, margin profit): the
// full value is gain with zero cost basis, and a lot at market unit cost
// enters the queue so a later disposal is not taxed twice.
func (l *Ledger) processIncome(ctx context.Context, ev model.AccountingEvent, margin bool) error {
	if ev.ReceivedAmount.IsZero() {
		return nil
	}

	value := l.valueOf(ctx, ev.ReceivedAsset, ev.ReceivedAmount, ev.Timestamp)
	unitCost := value.Div(ev.ReceivedAmount)
	l.acquire(ev.ReceivedAsset, ev.ReceivedAmount, unitCost, ev.Timestamp)

	if ev.Timestamp.Before(l.reportStart) {
		return nil
	}

	l.emit(model.GainLossRecord{
		Asset:             ev.ReceivedAsset,
		Amount:            ev.ReceivedAmount,
		Proceeds:          value,
		CostBasis:         decimal.Zero,
		HoldingPeriodDays: 0,
		AcquiredAt:        ev.Timestamp,
		DisposedAt:        ev.Timestamp,
		Location:          ev.Location,
		MarginDerived:     margin,
		Source:            ev.Source,
	})
	return nil
}

// disposeCryptoFee books a fee paid in a non-reference asset as its own
// small disposal. Fees in the reference currency are folded into the
// proceeds or cost of the trade itself.
func (l *Ledger) disposeCryptoFee(ctx context.Context, ev model.AccountingEvent) error {
	if ev.FeeAsset == "" || ev.FeeAsset == l.policy.ReferenceCurrency || ev.FeeAmount.IsZero() {
		return nil
	}
	proceeds := l.valueOf(ctx, ev.FeeAsset, ev.FeeAmount, ev.Timestamp)
	l.dispose(ev, ev.FeeAsset, ev.FeeAmount, proceeds, false, false)
	return nil
}

// acquire pushes a new lot onto the asset's FIFO queue.
func (l *Ledger) acquire(asset string, amount, unitCost decimal.Decimal, ts time.Time) {
	if asset == "" || amount.IsZero() {
		return
	}
	l.queues[asset] = append(l.queues[asset], &model.Lot{
		Asset:      asset,
		Remaining:  amount,
		UnitCost:   unitCost,
		AcquiredAt: ts,
	})
	l.held[asset] = l.held[asset].Add(amount)
}

// dispose matches a disposal against the asset's lots oldest-first,
// emitting one record per lot consumed. Proceeds are prorated over the
// matched amounts. An amount exceeding the held total is matched at zero
// cost basis with a warning — the full excess proceeds count as gain.
func (l *Ledger) dispose(ev model.AccountingEvent, asset string, amount, totalProceeds decimal.Decimal, cryptoToCrypto, marginDerived bool) {
	if asset == "" || amount.IsZero() {
		return
	}

	rate := totalProceeds.Div(amount)
	remaining := amount
	queue := l.queues[asset]

	for len(queue) > 0 && remaining.IsPositive() {
		lot := queue[0]
		matched := decimal.Min(lot.Remaining, remaining)

		if !ev.Timestamp.Before(l.reportStart) {
			l.emit(model.GainLossRecord{
				Asset:             asset,
				Amount:            matched,
				Proceeds:          rate.Mul(matched),
				CostBasis:         lot.UnitCost.Mul(matched),
				HoldingPeriodDays: holdingDays(lot.AcquiredAt, ev.Timestamp),
				AcquiredAt:        lot.AcquiredAt,
				DisposedAt:        ev.Timestamp,
				Location:          ev.Location,
				CryptoToCrypto:    cryptoToCrypto,
				MarginDerived:     marginDerived,
				Source:            ev.Source,
			})
		}

		lot.Remaining = lot.Remaining.Sub(matched)
		remaining = remaining.Sub(matched)
		l.held[asset] = l.held[asset].Sub(matched)
		if lot.Remaining.IsZero() {
			queue = queue[1:]
		}
	}
	l.queues[asset] = queue

	if remaining.IsPositive() {
		l.warn("disposed %s %s more than held at %s; excess treated as zero cost basis",
			remaining, asset, ev.Timestamp.UTC().Format(time.RFC3339))
		if !ev.Timestamp.Before(l.reportStart) {
			l.emit(model.GainLossRecord{
				Asset:             asset,
				Amount:            remaining,
				Proceeds:          rate.Mul(remaining),
				CostBasis:         decimal.Zero,
				HoldingPeriodDays: 0,
				AcquiredAt:        ev.Timestamp,
				DisposedAt:        ev.Timestamp,
				Location:          ev.Location,
				CryptoToCrypto:    cryptoToCrypto,
				MarginDerived:     marginDerived,
				Source:            ev.Source,
			})
		}
	}
}

// emit classifies a draft record against the run's policy and appends it.
func (l *Ledger) emit(draft model.GainLossRecord) {
	draft.ID = l.newID()
	draft.GainLoss = draft.Proceeds.Sub(draft.CostBasis)
	draft.Taxable, draft.Bucket = taxrule.Classify(draft, l.policy)
	l.records = append(l.records, draft)
}

// valueOf resolves the reference-currency value of an amount, falling
// back to zero with a warning when the price source has no answer.
func (l *Ledger) valueOf(ctx context.Context, asset string, amount decimal.Decimal, ts time.Time) decimal.Decimal {
	if asset == l.policy.ReferenceCurrency {
		return amount
	}
	price, err := l.valuer.Resolve(ctx, asset, l.policy.ReferenceCurrency, ts)
	if err != nil {
		if errors.Is(err, apperrors.ErrPriceUnavailable) {
			l.warn("no %s/%s price at %s; valuing as zero",
				asset, l.policy.ReferenceCurrency, ts.UTC().Format(time.RFC3339))
			return decimal.Zero
		}
		l.warn("price lookup for %s at %s failed: %v; valuing as zero",
			asset, ts.UTC().Format(time.RFC3339), err)
		return decimal.Zero
	}
	return price.Mul(amount)
}

// holdingDays is the whole number of days between acquisition and
// disposal, truncated.
func holdingDays(acquired, disposed time.Time) int {
	return int(disposed.Sub(acquired) / (24 * time.Hour))
}

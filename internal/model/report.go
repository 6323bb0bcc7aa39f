package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of a report run.
// Pending is instantaneous: a run is created and immediately transitions
// to Running. Cancelled, Failed and Done are terminal.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
	RunDone      RunStatus = "done"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	return s == RunCancelled || s == RunFailed || s == RunDone
}

// TaxBucket classifies how a gain/loss record is treated by the active
// tax policy.
type TaxBucket string

const (
	// BucketTaxable is a disposal inside the tax-free holding period.
	BucketTaxable TaxBucket = "taxable"

	// BucketTaxFree is a disposal held strictly longer than the
	// configured tax-free period.
	BucketTaxFree TaxBucket = "tax_free"

	// BucketExcludedCryptoToCrypto is a crypto-to-crypto disposal that
	// the policy excludes from taxable totals. Still recorded for
	// balance tracking.
	BucketExcludedCryptoToCrypto TaxBucket = "excluded_crypto_to_crypto"

	// BucketExcludedMargin is a margin-derived record excluded because
	// the policy does not account for margin events.
	BucketExcludedMargin TaxBucket = "excluded_margin"
)

// GainLossRecord is one disposal match against one acquisition lot.
// A disposal spanning multiple lots emits one record per lot consumed.
// Records are immutable once emitted.
type GainLossRecord struct {
	ID                string          `json:"id"`
	Asset             string          `json:"asset"`
	Amount            decimal.Decimal `json:"amount"`
	Proceeds          decimal.Decimal `json:"proceeds"`
	CostBasis         decimal.Decimal `json:"costBasis"`
	GainLoss          decimal.Decimal `json:"gainLoss"`
	Taxable           bool            `json:"taxable"`
	Bucket            TaxBucket       `json:"bucket"`
	HoldingPeriodDays int             `json:"holdingPeriodDays"`
	AcquiredAt        time.Time       `json:"acquiredAt"`
	DisposedAt        time.Time       `json:"disposedAt"`
	Location          string          `json:"location"`
	CryptoToCrypto    bool            `json:"cryptoToCrypto"`
	MarginDerived     bool            `json:"marginDerived"`
	Source            SourceRef       `json:"source"`
}

// ReportTotals summarizes a finished report.
type ReportTotals struct {
	TotalGainLoss   decimal.Decimal            `json:"totalGainLoss"`
	TaxableGainLoss decimal.Decimal            `json:"taxableGainLoss"`
	PerAsset        map[string]decimal.Decimal `json:"perAsset"`
}

// ReportRun is a snapshot of one report generation, as exposed through
// the status/result API and as persisted when a run completes.
type ReportRun struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	Status      RunStatus        `json:"status"`
	Progress    int              `json:"progress"` // 0..100
	Policy      TaxPolicy        `json:"policy"`
	Records     []GainLossRecord `json:"records,omitempty"`
	Totals      ReportTotals     `json:"totals"`
	Warnings    []string         `json:"warnings,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt time.Time        `json:"completedAt,omitzero"`
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is an open acquisition awaiting disposal matching. Remaining
// decreases as disposals consume it. Lots are owned exclusively by the
// ledger's per-asset FIFO queue and are never shared between runs.
type Lot struct {
	Asset      string
	Remaining  decimal.Decimal
	UnitCost   decimal.Decimal // reference currency per unit
	AcquiredAt time.Time
}

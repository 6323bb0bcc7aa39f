package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies the kind of accounting event produced by the
// normalizer. The ledger decides from the type which side of the event
// acquires and which disposes.
type EventType string

const (
	// EventBuy is a user-initiated purchase of the received asset.
	EventBuy EventType = "buy"

	// EventSell is a user-initiated sale of the paid asset.
	EventSell EventType = "sell"

	// EventSettlementBuy is an exchange-forced buy to settle a margin
	// debt. Only the paid side moves the ledger.
	EventSettlementBuy EventType = "settlement_buy"

	// EventSettlementSell is an exchange-forced sale to settle a margin
	// loss. Translated to a disposal of the settled asset, not a trade.
	EventSettlementSell EventType = "settlement_sell"

	// EventMarginClose carries the net profit or loss of a closed margin
	// position. Profit populates the received side, loss the paid side.
	EventMarginClose EventType = "margin_close"

	// EventLoan is interest earned from lending, net of lending fees.
	EventLoan EventType = "loan"

	// EventAssetFork credits a new asset derived from existing holdings
	// at zero cost basis.
	EventAssetFork EventType = "asset_fork"

	// EventTransferIn is a deposit into a tracked location. It does not
	// move the ledger.
	EventTransferIn EventType = "transfer_in"

	// EventTransferOut is a withdrawal from a tracked location. Only the
	// withdrawal fee is a disposal.
	EventTransferOut EventType = "transfer_out"
)

// SourceRef identifies where an event came from, for provenance and for
// the deterministic tie-break when timestamps collide: events are ordered
// by (timestamp, adapter declaration index, record index).
type SourceRef struct {
	Location     string `json:"location"`
	AdapterIndex int    `json:"adapterIndex"`
	RecordIndex  int    `json:"recordIndex"`
}

// AccountingEvent is the common representation every connector record is
// normalized into. Amounts are always non-negative; a zero-amount event
// is valid and must flow through matching without effect.
type AccountingEvent struct {
	Timestamp      time.Time       `json:"timestamp"`
	Location       string          `json:"location"`
	Type           EventType       `json:"type"`
	PaidAsset      string          `json:"paidAsset,omitempty"`
	PaidAmount     decimal.Decimal `json:"paidAmount"`
	ReceivedAsset  string          `json:"receivedAsset,omitempty"`
	ReceivedAmount decimal.Decimal `json:"receivedAmount"`
	FeeAsset       string          `json:"feeAsset,omitempty"`
	FeeAmount      decimal.Decimal `json:"feeAmount"`
	Source         SourceRef       `json:"source"`
	Notes          string          `json:"notes,omitempty"`
}

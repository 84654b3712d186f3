// Package actions implements the tagged sum type the websocket feed and
// REST replies decode into (spec §9's replacement for the source's
// dynamic dict-of-anything payloads), plus the JSON decoding that
// classifies a raw frame into one of its variants.
package actions

import (
	"time"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
)

// Kind discriminates the Action variants, mirroring the wire `type` field.
type Kind string

const (
	KindBookTop             Kind = "book_top"
	KindActionReport        Kind = "action_report"
	KindHeartbeat           Kind = "heartbeat"
	KindCollateralUpdate    Kind = "collateral_balance_update"
	KindOpenPositionsUpdate Kind = "open_positions_update"
	KindExposureReport      Kind = "exposure_reports"
	KindContractAdded       Kind = "contract_added"
	KindContractRemoved     Kind = "contract_removed"
	KindTradeBusted         Kind = "trade_busted"
	KindSuccess             Kind = "success"
	KindOther               Kind = "other"
)

// BookTopPayload is the book_top wire message, shaped to feed directly
// into book.Store.ApplyBookTop.
type BookTopPayload struct {
	ContractID contracts.ID
	BestBid    *int64
	BestAsk    *int64
	Clock      int64
}

// ActionReportPayload is an order lifecycle event; it carries exactly
// the fields book.Order needs, so the dispatcher applies it directly.
type ActionReportPayload = book.Order

// HeartbeatPayload is the heartbeat wire shape (spec §3, §4.7).
type HeartbeatPayload struct {
	Ticks     int64
	RunID     string
	Timestamp time.Time
}

// CollateralUpdatePayload carries the nested balance maps merged into the
// ledger (spec §4.4).
type CollateralUpdatePayload struct {
	AvailableBalances      map[string]int64
	PositionLockedBalances map[string]int64
}

// PositionUpdate is one entry of an open_positions_update payload.
type PositionUpdate struct {
	ID            int64
	ContractID    contracts.ID
	Size          int64
	AssignedSize  int64
	ExercisedSize int64
}

// OpenPositionsUpdatePayload is the open_positions_update wire message.
type OpenPositionsUpdatePayload struct {
	Positions []PositionUpdate
}

// ContractRemovedPayload names the contract to retire.
type ContractRemovedPayload struct {
	ContractID contracts.ID
}

// TradeBustedPayload is logged only; spec §9 leaves its state effect
// undefined pending venue documentation.
type TradeBustedPayload struct {
	ContractID contracts.ID
	TradeID    string
}

// SuccessPayload records a `*_success` connection acknowledgement for
// logging.
type SuccessPayload struct {
	WireType string
}

// OtherPayload carries an unrecognized frame's raw type and body for a
// warning log (spec §4.4's dispatch table, "other" row).
type OtherPayload struct {
	WireType string
	Raw      []byte
}

// Action is the tagged union over every websocket/REST-reload event the
// dispatcher handles. Exactly one payload field is populated, matching
// Kind.
type Action struct {
	Kind Kind

	BookTop             *BookTopPayload
	ActionReport        *ActionReportPayload
	Heartbeat           *HeartbeatPayload
	CollateralUpdate    *CollateralUpdatePayload
	OpenPositionsUpdate *OpenPositionsUpdatePayload
	ContractAdded       *contracts.Contract
	ContractRemoved     *ContractRemovedPayload
	TradeBusted         *TradeBustedPayload
	ExposureReport      *struct{}
	Success             *SuccessPayload
	Other               *OtherPayload
}

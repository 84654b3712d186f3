// Package book implements the per-contract order book store (spec
// component C3): resting orders keyed by message id, derived top-of-book,
// and clock-ordered application of incremental edits.
package book

import (
	"github.com/tildenfx/marketstate/internal/clock"
	"github.com/tildenfx/marketstate/internal/contracts"
)

// Mid is the opaque, per-contract-unique message id assigned by the
// exchange to an order.
type Mid string

// StatusType is the action_report status code that drives order lifecycle
// transitions (spec §4.4).
type StatusType int

// Known status codes.
const (
	StatusResting           StatusType = 200
	StatusCross             StatusType = 201
	StatusUnfilledMarket    StatusType = 202
	StatusCancelled         StatusType = 203
	StatusAcknowledged      StatusType = 300
	StatusExpired           StatusType = 610
	statusRejectedThreshold StatusType = 600
)

// IsRejectedOrInvalid reports whether a status code falls in the "remove
// if present" rejection band of spec §4.4 (>=600, excluding the more
// specific 610 expired code which is handled identically but logged
// differently).
func (s StatusType) IsRejectedOrInvalid() bool {
	return s >= statusRejectedThreshold && s != StatusExpired
}

// Order is one resting (or just-crossed) order as tracked per spec §3.
type Order struct {
	ContractID  contracts.ID
	Mid         Mid
	MPID        string // present only for own orders and some feeds
	CID         string
	Clock       clock.Clock
	StatusType  StatusType
	IsAsk       bool
	Price       int64
	Size        int64
	FilledSize  int64
	FilledPrice int64
}

// IsOwnedBy reports whether this order belongs to the operator identified
// by mpid. An empty mpid on either side never matches.
func (o Order) IsOwnedBy(mpid string) bool {
	return mpid != "" && o.MPID == mpid
}

// Package positions implements the position & basis engine (spec
// component C5): own positions per contract, cost-basis reconstruction
// by trade-tape replay, and the deferred re-reconciliation queue drained
// by heartbeat maintenance.
package positions

import (
	"errors"
	"fmt"

	"github.com/tildenfx/marketstate/internal/contracts"
)

// Side is which side of the book a trade filled on.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Trade is one fill contributing to a position's cost basis (spec §4.5).
type Trade struct {
	Side        Side
	FilledSize  int64
	Premium     int64
	Fee         int64
	Rebate      int64
}

// Type is the position's declared long/short side, with a sign
// invariant on Size (spec §3).
type Type string

const (
	Long  Type = "long"
	Short Type = "short"
)

// Position is one contract's tracked holding.
type Position struct {
	ServerID      int64
	ContractID    contracts.ID
	Size          int64
	Type          Type
	AssignedSize  int64
	ExercisedSize int64
	ExpiredSize   int64
	Basis         int64
	BasisKnown    bool
}

// ErrSignInvariantViolated is returned by RecomputeBasis when the
// replayed trade tape produces a size whose sign contradicts the
// position's declared Type (spec §4.5) — fatal to that update, and the
// caller must trigger a full position re-list.
var ErrSignInvariantViolated = errors.New("positions: replayed size violates long/short sign invariant")

// RecomputeBasis replays trades for a single position per spec §4.5:
//
//	basis = Σ(fee - rebate + premium) for bids + Σ(fee - rebate - premium) for asks
//	size  = Σ filled_size for bids - Σ filled_size for asks
//
// If the replayed size's sign contradicts pos.Type, ErrSignInvariantViolated
// is returned and pos is unchanged. If the replayed size matches
// pos.Size, the computed basis is committed and returned with
// BasisKnown true. Otherwise the basis is left unknown (caller enqueues
// a deferred refresh) and a non-nil, non-sentinel error describes the
// mismatch for logging.
func RecomputeBasis(pos Position, trades []Trade) (Position, error) {
	var basis, size int64
	for _, tr := range trades {
		switch tr.Side {
		case Bid:
			basis += tr.Fee - tr.Rebate + tr.Premium
			size += tr.FilledSize
		case Ask:
			basis += tr.Fee - tr.Rebate - tr.Premium
			size -= tr.FilledSize
		}
	}

	switch pos.Type {
	case Short:
		if size > 0 {
			return pos, ErrSignInvariantViolated
		}
	case Long:
		if size < 0 {
			return pos, ErrSignInvariantViolated
		}
	}

	if size != pos.Size {
		pos.Basis = 0
		pos.BasisKnown = false
		return pos, fmt.Errorf("positions: replayed size %d disagrees with reported size %d", size, pos.Size)
	}

	pos.Basis = basis
	pos.BasisKnown = true
	return pos, nil
}

// Package analytics implements the derived-analytics component (spec
// C8): cost-to-close, the qualified-covered-call test, fee computation,
// and (as a supplemented feature from the original reference
// implementation) an advisory-only put-call-parity probe and a
// net-to-close portfolio summary.
package analytics

import (
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/tildenfx/marketstate/internal/contracts"
)

// Fee implements spec §4.8's fee schedule: |size| contracts at a rate of
// min(15, price/500) cents per contract (20% of price, capped at 15¢).
func Fee(price, size int64) int64 {
	abs := size
	if abs < 0 {
		abs = -abs
	}
	rate := price / 500
	if rate > 15 {
		rate = 15
	}
	return abs * rate
}

// ErrBookTopUnavailable is returned by CostToClose when either side of
// the contract's book top is absent (not loaded yet, or no resting orders
// on that side) — the caller should schedule a book load and retry
// (spec §4.8, §7 taxonomy item 3).
var ErrBookTopUnavailable = errors.New("analytics: book top not loaded")

// Result is the outcome of a CostToClose computation.
type Result struct {
	Cost int64
	// Net is non-nil only when the position's basis is known.
	Net  *int64
	Low  int64
	High int64
}

func costAt(price, size int64) int64 {
	return (Fee(price, size) + price*size) / 10000
}

// CostToClose implements spec §4.8. size is the position's signed size,
// basisKnown/basis its cost basis, bid/ask the contract's current top of
// book (nil if a side is absent).
func CostToClose(size int64, basisKnown bool, basis int64, bid, ask *int64) (Result, error) {
	if bid == nil || ask == nil {
		return Result{}, ErrBookTopUnavailable
	}

	mid := (*bid + *ask) / 2
	res := Result{Cost: costAt(mid, size)}

	if size > 0 {
		res.Low, res.High = costAt(*ask, size), costAt(*bid, size)
	} else {
		res.Low, res.High = costAt(*bid, size), costAt(*ask, size)
	}

	if basisKnown {
		var exitPrice int64
		if size < 0 {
			exitPrice = *ask
		} else {
			exitPrice = *bid
		}
		net := costAt(exitPrice, size) - basis/10000
		res.Net = &net
	}

	return res, nil
}

// IsQualifiedCoveredCall implements spec §4.8's strike-ladder walk. ct
// must be a call; ladderAscending is the full (asset, expiry) strike
// ladder (contracts.Catalogue.Strikes); fmv is the underlying next-day
// swap's mid price.
func IsQualifiedCoveredCall(ct contracts.Contract, now time.Time, ladderAscending []int64, fmv int64) (bool, error) {
	if !ct.IsCall {
		return false, nil
	}
	days := ct.DateExpires.Sub(now).Hours() / 24
	if days <= 30 {
		return false, nil
	}
	if len(ladderAscending) == 0 {
		return false, fmt.Errorf("analytics: empty strike ladder for contract %d", ct.ID)
	}

	descending := make([]int64, len(ladderAscending))
	for i, v := range ladderAscending {
		descending[len(ladderAscending)-1-i] = v
	}

	atOrBelowFMV := -1
	for i, s := range descending {
		if s <= fmv {
			atOrBelowFMV = i
			break
		}
	}

	strikesPast := 1
	if days > 90 {
		strikesPast = 2
	}

	// When no strike is at or below fmv, original_source's walk never
	// crosses its past_fmv threshold and ends on the lowest ladder
	// strike regardless of strikesPast — a broad, degenerate qualify.
	var thresholdIdx int
	if atOrBelowFMV == -1 {
		thresholdIdx = len(descending) - 1
	} else {
		thresholdIdx = atOrBelowFMV + (strikesPast - 1)
		if thresholdIdx > len(descending)-1 {
			thresholdIdx = len(descending) - 1
		}
	}

	return ct.StrikePrice >= descending[thresholdIdx], nil
}

// PutCallParity is an advisory-only probe (spec §1, §9 — explicitly not
// part of the core contract). It logs a candidate arbitrage opportunity
// when the synthetic forward price implied by the put/call mids and the
// present value of the shared strike diverges from spot by more than a
// threshold annualized return. It mutates no state and is never called
// from the dispatcher or session controller.
func PutCallParity(logger *log.Logger, put, call contracts.Contract, putMid, callMid, spotMid int64, now time.Time, riskFreeRate float64) {
	if logger == nil {
		logger = log.Default()
	}
	if put.StrikePrice != call.StrikePrice || spotMid == 0 {
		return
	}
	days := call.DateExpires.Sub(now).Hours() / 24
	if days <= 0 {
		return
	}
	t := days / 365
	pv := float64(call.StrikePrice) * math.Exp(-riskFreeRate*t)
	synthetic := float64(callMid) - float64(putMid) + pv
	annualizedReturn := ((synthetic - float64(spotMid)) / float64(spotMid)) * (365 / days)

	const arbitrageThreshold = 0.05
	if math.Abs(annualizedReturn) > arbitrageThreshold {
		logger.Printf("advisory: put-call parity candidate: put=%d call=%d annualized=%.2f%%", put.ID, call.ID, annualizedReturn*100)
	}
}

// PositionView is the minimal data NetToClose needs per position,
// decoupled from the positions package to avoid an import cycle.
type PositionView struct {
	ContractID contracts.ID
	Size       int64
	BasisKnown bool
	Basis      int64
	Bid        *int64
	Ask        *int64
}

// NetToClose sums CostToClose's low/high bounds across every tracked
// position (supplemented from original_source/ledgerx/market_state.py's
// load_market trailing summary). Positions whose book top is unavailable
// are skipped and logged.
func NetToClose(logger *log.Logger, views []PositionView) (low, high int64) {
	if logger == nil {
		logger = log.Default()
	}
	for _, v := range views {
		res, err := CostToClose(v.Size, v.BasisKnown, v.Basis, v.Bid, v.Ask)
		if err != nil {
			logger.Printf("debug: net-to-close: skipping contract %d: %v", v.ContractID, err)
			continue
		}
		low += res.Low
		high += res.High
	}
	logger.Printf("net-to-close: low=%d high=%d", low, high)
	return low, high
}

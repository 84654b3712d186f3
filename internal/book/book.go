package book

import (
	"log"
	"sync"

	"github.com/tildenfx/marketstate/internal/clock"
	"github.com/tildenfx/marketstate/internal/contracts"
)

// BookTop is the derived best-bid/best-ask summary for a contract.
type BookTop struct {
	BestBid  *int64
	BestAsk  *int64
	Clock    int64
	present  bool
}

// Present reports whether a top has ever been computed for the contract.
func (t BookTop) Present() bool { return t.present }

// Store holds per-contract resting-order maps and derived tops. Only
// contracts explicitly loaded (via Load) have an entry; incremental edits
// for a not-loaded contract are dropped (spec §4.3's chosen resolution of
// the load-vs-drop open question).
type Store struct {
	mu sync.Mutex

	logger *log.Logger

	orders map[contracts.ID]map[Mid]Order
	tops   map[contracts.ID]BookTop
}

// New creates an empty Store.
func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		logger: logger,
		orders: make(map[contracts.ID]map[Mid]Order),
		tops:   make(map[contracts.ID]BookTop),
	}
}

// IsLoaded reports whether a contract's book has been explicitly loaded.
func (s *Store) IsLoaded(id contracts.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[id]
	return ok
}

// Load replaces the entire resting-order set for a contract (a full
// reload reply) and recomputes its top from scratch (spec §4.3).
func (s *Store) Load(id contracts.ID, orders []Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book := make(map[Mid]Order, len(orders))
	for _, o := range orders {
		if o.Size == 0 {
			continue
		}
		book[o.Mid] = o
	}
	s.orders[id] = book
	s.tops[id] = computeTop(id, book)
	s.logger.Printf("book loaded: contract=%d orders=%d", id, len(book))
}

func computeTop(id contracts.ID, book map[Mid]Order) BookTop {
	var bestBid, bestAsk *int64
	var maxClock int64
	for _, o := range book {
		p := o.Price
		if o.IsAsk {
			if bestAsk == nil || p < *bestAsk {
				v := p
				bestAsk = &v
			}
		} else {
			if bestBid == nil || p > *bestBid {
				v := p
				bestBid = &v
			}
		}
		if o.Clock.Ticks > maxClock {
			maxClock = o.Clock.Ticks
		}
	}
	_ = id
	return BookTop{BestBid: bestBid, BestAsk: bestAsk, Clock: maxClock, present: true}
}

// Clear drops all book state, used on a server-restart rebuild.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[contracts.ID]map[Mid]Order)
	s.tops = make(map[contracts.ID]BookTop)
}

// ApplyOrderEvent applies one order lifecycle event against both the
// resting-order map and the top-of-book, under the §4.1 clock rule. It
// returns false (dropped) when the contract's book is not loaded — per
// spec §4.3's "drop, don't buffer" choice — or when the event is stale or
// a duplicate of the stored entry.
func (s *Store) ApplyOrderEvent(incoming Order) (applied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, loaded := s.orders[incoming.ContractID]
	if !loaded {
		s.logger.Printf("debug: dropping book edit for not-loaded contract %d mid=%s", incoming.ContractID, incoming.Mid)
		return false
	}

	stored, exists := book[incoming.Mid]
	remove := incoming.Size == 0 || incoming.StatusType == StatusCancelled || incoming.StatusType == StatusExpired || incoming.StatusType.IsRejectedOrInvalid()

	if !exists {
		if remove {
			return false
		}
		book[incoming.Mid] = incoming
		s.recomputeTopLocked(incoming.ContractID)
		return true
	}

	switch clock.Compare(stored.Clock, incoming.Clock) {
	case clock.Stale:
		s.logger.Printf("debug: stale book edit dropped for contract %d mid=%s", incoming.ContractID, incoming.Mid)
		return false
	case clock.Duplicate:
		if stored == incoming {
			return false
		}
		s.logger.Printf("warn: protocol anomaly: duplicate ticks with differing payload for contract %d mid=%s", incoming.ContractID, incoming.Mid)
		return false
	}

	if remove {
		delete(book, incoming.Mid)
	} else {
		book[incoming.Mid] = mergeOrder(stored, incoming)
	}
	s.recomputeTopLocked(incoming.ContractID)
	return true
}

// mergeOrder folds incoming onto stored field-wise instead of replacing
// the stored order wholesale, matching
// original_source/ledgerx/market_state.py's handle_book_state (it only
// overwrites keys present on the incoming payload). A field the exchange
// omits from a partial update — most commonly mpid on a later edit to an
// order already attributed to an operator — is preserved from stored
// rather than wiped back to its zero value.
func mergeOrder(stored, incoming Order) Order {
	merged := stored
	merged.ContractID = incoming.ContractID
	merged.Mid = incoming.Mid
	merged.Clock = incoming.Clock
	merged.StatusType = incoming.StatusType
	merged.IsAsk = incoming.IsAsk
	if incoming.MPID != "" {
		merged.MPID = incoming.MPID
	}
	if incoming.CID != "" {
		merged.CID = incoming.CID
	}
	if incoming.Price != 0 {
		merged.Price = incoming.Price
	}
	if incoming.Size != 0 {
		merged.Size = incoming.Size
	}
	if incoming.FilledSize != 0 {
		merged.FilledSize = incoming.FilledSize
	}
	if incoming.FilledPrice != 0 {
		merged.FilledPrice = incoming.FilledPrice
	}
	return merged
}

func (s *Store) recomputeTopLocked(id contracts.ID) {
	s.tops[id] = computeTop(id, s.orders[id])
}

// Remove deletes an order outright (cancel/expire/reject paths) and
// recomputes the top. It is a convenience wrapper for callers that have
// already decided removal is warranted regardless of clock, such as the
// dispatcher processing a terminal status code.
func (s *Store) Remove(id contracts.ID, mid Mid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.orders[id]
	if !ok {
		return
	}
	delete(book, mid)
	s.recomputeTopLocked(id)
}

// Order returns a single resting order, if tracked.
func (s *Store) Order(id contracts.ID, mid Mid) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	o, ok := book[mid]
	return o, ok
}

// Orders returns a snapshot copy of all resting orders for a contract.
func (s *Store) Orders(id contracts.ID) map[Mid]Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.orders[id]
	if !ok {
		return nil
	}
	out := make(map[Mid]Order, len(book))
	for k, v := range book {
		out[k] = v
	}
	return out
}

// staleLagThreshold is the max permitted gap between the highest clock in
// BookState and the stored book_top clock before a reload is forced
// (spec §4.3).
const staleLagThreshold = 2

// Top returns the current top-of-book and whether the caller should force
// a reload before trusting it, per the staleness check in spec §4.3.
func (s *Store) Top(id contracts.ID) (top BookTop, ok bool, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	top, ok = s.tops[id]
	if !ok {
		return BookTop{}, false, false
	}
	maxClock := highestClockLocked(s.orders[id])
	stale = maxClock-top.Clock > staleLagThreshold
	return top, true, stale
}

func highestClockLocked(book map[Mid]Order) int64 {
	var maxClock int64
	for _, o := range book {
		if o.Clock.Ticks > maxClock {
			maxClock = o.Clock.Ticks
		}
	}
	return maxClock
}

// ApplyBookTop incrementally updates the stored top from a book_top wire
// message, honoring the clock ordering rules of spec §4.4's dispatch
// table: strictly-newer clock replaces, equal clock with identical
// bid/ask is a silent duplicate, equal clock with differing bid/ask is a
// protocol anomaly (logged, stored kept), and a strictly older clock is
// stale and dropped.
func (s *Store) ApplyBookTop(id contracts.ID, incoming BookTop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tops[id]
	if !ok {
		s.tops[id] = incoming
		return true
	}
	switch {
	case stored.Clock < incoming.Clock:
		s.tops[id] = incoming
		return true
	case stored.Clock == incoming.Clock:
		if sameInt64Ptr(stored.BestBid, incoming.BestBid) && sameInt64Ptr(stored.BestAsk, incoming.BestAsk) {
			return false
		}
		s.logger.Printf("warn: protocol anomaly: differing book_top at same clock for contract %d", id)
		return false
	default:
		s.logger.Printf("debug: stale book_top dropped for contract %d", id)
		return false
	}
}

func sameInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package contracts

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Fetcher retrieves a single contract from the REST API on a catalogue
// miss. It is satisfied by any session.RESTClient, such as
// restapi.HTTPClient or restapi.RetryingClient.
type Fetcher interface {
	RetrieveContract(ctx context.Context, id ID) (Contract, error)
}

type ladderKey struct {
	asset  string
	expiry time.Time
}

// Catalogue is the single-writer contract store described in spec §4.2.
// All mutating methods are safe for concurrent use.
type Catalogue struct {
	mu sync.Mutex

	logger  *log.Logger
	fetcher Fetcher

	byID    map[ID]Contract
	byLabel map[string]ID
	expired map[ID]Contract

	expiryDates []time.Time
	ladder      map[ladderKey][]int64 // sorted ascending

	putCall map[ID]ID // side table, mutual

	// nextDaySwap tracks, per underlying asset, the next-day swap with
	// the latest expiry added so far. Expiry is not checked against the
	// clock, and RemoveContract does not clear the entry.
	nextDaySwap map[string]ID
}

// New creates an empty Catalogue. fetcher may be nil; RetrieveContract
// then only ever serves from the local cache.
func New(logger *log.Logger, fetcher Fetcher) *Catalogue {
	if logger == nil {
		logger = log.Default()
	}
	return &Catalogue{
		logger:      logger,
		fetcher:     fetcher,
		byID:        make(map[ID]Contract),
		byLabel:     make(map[string]ID),
		expired:     make(map[ID]Contract),
		ladder:      make(map[ladderKey][]int64),
		putCall:     make(map[ID]ID),
		nextDaySwap: make(map[string]ID),
	}
}

// AddContract registers a contract idempotently by id (spec §4.2). It
// indexes the label, threads the expiry into the sorted expiry list,
// extends the (asset, expiry) strike ladder for options, derives the
// put/call cross-link when the sibling label is already known, and
// supersedes the tracked next-day swap for the underlying when a later
// expiry is discovered.
func (c *Catalogue) AddContract(ct Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[ct.ID]; exists {
		return
	}

	c.addExpiryDateLocked(ct.DateExpires)
	c.byID[ct.ID] = ct
	if ct.Label != "" {
		if other, ok := c.byLabel[ct.Label]; ok && other != ct.ID {
			c.logger.Printf("warn: label %q already mapped to contract %d, overwriting with %d", ct.Label, other, ct.ID)
		}
		c.byLabel[ct.Label] = ct.ID
	}

	if ct.DerivativeType == Option {
		key := ladderKey{asset: ct.UnderlyingAsset, expiry: ct.DateExpires}
		c.ladder[key] = insertSortedUnique(c.ladder[key], ct.StrikePrice)
		c.linkPutCallLocked(ct)
	}

	if ct.IsNextDay {
		cur, ok := c.nextDaySwap[ct.UnderlyingAsset]
		if !ok || (c.byID[cur].DateExpires.Before(ct.DateExpires)) {
			c.nextDaySwap[ct.UnderlyingAsset] = ct.ID
		}
	}

	c.logger.Printf("contract added: id=%d label=%q type=%s", ct.ID, ct.Label, ct.DerivativeType)
}

func (c *Catalogue) linkPutCallLocked(ct Contract) {
	var siblingLabel string
	switch {
	case strings.Contains(ct.Label, "Put"):
		siblingLabel = strings.Replace(ct.Label, "Put", "Call", 1)
	case strings.Contains(ct.Label, "Call"):
		siblingLabel = strings.Replace(ct.Label, "Call", "Put", 1)
	default:
		return
	}
	siblingID, ok := c.byLabel[siblingLabel]
	if !ok {
		return
	}
	c.putCall[ct.ID] = siblingID
	c.putCall[siblingID] = ct.ID
	c.logger.Printf("linked put/call pair: %d (%q) <-> %d (%q)", ct.ID, ct.Label, siblingID, siblingLabel)
}

func (c *Catalogue) addExpiryDateLocked(d time.Time) {
	for _, existing := range c.expiryDates {
		if existing.Equal(d) {
			return
		}
	}
	c.expiryDates = append(c.expiryDates, d)
	sort.Slice(c.expiryDates, func(i, j int) bool { return c.expiryDates[i].Before(c.expiryDates[j]) })
}

func insertSortedUnique(sorted []int64, v int64) []int64 {
	idx := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= v })
	if idx < len(sorted) && sorted[idx] == v {
		return sorted
	}
	sorted = append(sorted, 0)
	copy(sorted[idx+1:], sorted[idx:])
	sorted[idx] = v
	return sorted
}

// RemoveContract moves a contract into the expired set. Contracts are
// never deleted, only hidden from active iteration (spec §4.2).
func (c *Catalogue) RemoveContract(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.expired[id]; already {
		return
	}
	ct, ok := c.byID[id]
	if !ok {
		c.logger.Printf("warn: remove_contract for unknown contract %d", id)
		return
	}
	c.expired[id] = ct
	c.logger.Printf("contract expired: id=%d label=%q", id, ct.Label)
}

// Get returns a cached contract and whether it was found, without
// touching REST.
func (c *Catalogue) Get(id ID) (Contract, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.byID[id]
	return ct, ok
}

// RetrieveContract returns the cached contract, falling back to a
// synchronous REST fetch on a miss (spec §4.2, §7 taxonomy item 2). The
// fetched contract must echo the requested id or the fetch is treated as
// a failure.
func (c *Catalogue) RetrieveContract(ctx context.Context, id ID) (Contract, error) {
	if ct, ok := c.Get(id); ok {
		return ct, nil
	}
	if c.fetcher == nil {
		return Contract{}, fmt.Errorf("contracts: %d not cached and no fetcher configured", id)
	}
	ct, err := c.fetcher.RetrieveContract(ctx, id)
	if err != nil {
		return Contract{}, fmt.Errorf("contracts: retrieve %d: %w", id, err)
	}
	if ct.ID != id {
		return Contract{}, fmt.Errorf("contracts: retrieve %d: server echoed id %d", id, ct.ID)
	}
	c.AddContract(ct)
	return ct, nil
}

// IsExpired reports whether a contract is within the expiring-soon window
// or already in the expired set (spec §4.2).
func (c *Catalogue) IsExpired(id ID, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.expired[id]; ok {
		return true
	}
	ct, ok := c.byID[id]
	if !ok {
		return false
	}
	return ct.DateExpires.Sub(now) < expiringWithin
}

// ExpiryDates returns a sorted, deduplicated copy of all known expiries.
func (c *Catalogue) ExpiryDates() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, len(c.expiryDates))
	copy(out, c.expiryDates)
	return out
}

// Strikes returns the sorted-ascending strike ladder for (asset, expiry).
func (c *Catalogue) Strikes(asset string, expiry time.Time) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ladder := c.ladder[ladderKey{asset: asset, expiry: expiry}]
	out := make([]int64, len(ladder))
	copy(out, ladder)
	return out
}

// PutCallSibling returns the cross-linked put/call contract id, if both
// sides of the pair are known.
func (c *Catalogue) PutCallSibling(id ID) (ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sib, ok := c.putCall[id]
	return sib, ok
}

// NextDaySwap returns the next-day swap contract with the latest expiry
// added for an underlying asset. The returned contract may already be
// expired or removed when no later-expiring swap has been added.
func (c *Catalogue) NextDaySwap(asset string) (ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.nextDaySwap[asset]
	return id, ok
}

// AllIDs returns every known contract id not in the expired set, in no
// particular order. Used by session maintenance to find contracts that
// still lack a loaded book (spec §4.7).
func (c *Catalogue) AllIDs() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ID, 0, len(c.byID))
	for id := range c.byID {
		if _, expired := c.expired[id]; expired {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Clear drops all contract state, used on a server-restart rebuild
// (spec §4.7, §7 taxonomy item 6).
func (c *Catalogue) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[ID]Contract)
	c.byLabel = make(map[string]ID)
	c.expired = make(map[ID]Contract)
	c.expiryDates = nil
	c.ladder = make(map[ladderKey][]int64)
	c.putCall = make(map[ID]ID)
	c.nextDaySwap = make(map[string]ID)
}

// ToContractLabel deterministically formats the canonical label for a
// contract's metadata, used to detect label/metadata disagreement
// (spec §4.2 — logged, not fatal).
func ToContractLabel(asset string, expiry time.Time, derivType DerivativeType, isCall bool, strikePrice int64) string {
	displayAsset := asset
	if asset == "CBTC" {
		displayAsset = "BTC Mini"
	}
	date := expiry.UTC().Format("2006-01-02")

	switch derivType {
	case Future:
		return fmt.Sprintf("%s Future %s", date, displayAsset)
	case DayAheadSwap:
		return fmt.Sprintf("%s Next-Day %s", date, displayAsset)
	case Option:
		side := "Put"
		if isCall {
			side = "Call"
		}
		dollars := strikePrice / 100
		return fmt.Sprintf("%s %s %s $%s", displayAsset, date, side, humanize.Comma(dollars))
	default:
		return fmt.Sprintf("%s %s %s", date, displayAsset, derivType)
	}
}

// CheckLabel logs a warning if a contract's stored label disagrees with
// its deterministically-derived canonical form (spec §4.2).
func (c *Catalogue) CheckLabel(ct Contract) {
	want := ToContractLabel(ct.UnderlyingAsset, ct.DateExpires, ct.DerivativeType, ct.IsCall, ct.StrikePrice)
	if ct.Label != "" && ct.Label != want {
		c.logger.Printf("warn: contract %d label %q disagrees with canonical form %q", ct.ID, ct.Label, want)
	}
}

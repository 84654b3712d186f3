// Package session implements the session controller (spec component
// C7): the initial market load, heartbeat-driven maintenance, restart
// detection, and per-frame event dispatch. Controller.mu serializes
// LoadMarket, HandleHeartbeat, HandleAction and NetToClose against each
// other; the individual stores (book.Store, contracts.Catalogue,
// positions.Manager, ledger.Ledger) each hold their own mutex below
// that level (spec §5).
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/tildenfx/marketstate/internal/actions"
	"github.com/tildenfx/marketstate/internal/analytics"
	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/dispatcher"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
)

// Config tunes session maintenance (spec §4.7; defaults per SPEC_FULL §6).
type Config struct {
	HeartbeatStaleAfter time.Duration
	MaxDeferredPerTick  int
	MaxBookLoadsPerTick int
}

// DefaultConfig matches the defaults named in spec.md §4.5/§4.7.
func DefaultConfig() Config {
	return Config{
		HeartbeatStaleAfter: 2 * time.Second,
		MaxDeferredPerTick:  2,
		MaxBookLoadsPerTick: 2,
	}
}

// Controller owns the engine's single mutex and every state store.
type Controller struct {
	mu sync.Mutex

	logger *log.Logger
	cfg    Config
	rest   RESTClient

	catalogue *contracts.Catalogue
	books     *book.Store
	positions *positions.Manager
	ledger    *ledger.Ledger
	dispatch  *dispatcher.Dispatcher

	lastRunID string
	lastTicks int64
}

// New wires a Controller and its internal dispatcher. The dispatcher is
// constructed here (not injected) because it needs the Controller itself
// as its HeartbeatSink and the Controller as its BookLoader.
func New(logger *log.Logger, cfg Config, rest RESTClient) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	c := &Controller{
		logger:    logger,
		cfg:       cfg,
		rest:      rest,
		books:     book.New(logger),
		positions: positions.New(logger),
		ledger:    ledger.New(logger),
	}
	c.catalogue = contracts.New(logger, contractFetcher{rest})
	c.dispatch = dispatcher.New(logger, c.catalogue, c.books, c, c.positions, c.ledger, c)
	return c
}

type contractFetcher struct{ rest RESTClient }

func (f contractFetcher) RetrieveContract(ctx context.Context, id contracts.ID) (contracts.Contract, error) {
	return f.rest.RetrieveContract(ctx, id)
}

// HandleAction takes the controller mutex and feeds one decoded frame
// into the wired dispatcher. This is the only entry point the websocket
// listener and REST reload loop should use to apply an event — it keeps
// per-frame dispatch serialized against LoadMarket, HandleHeartbeat and
// NetToClose. Heartbeat frames go straight to HandleHeartbeat, which
// takes the mutex itself.
func (c *Controller) HandleAction(ctx context.Context, action actions.Action) error {
	if action.Kind == actions.KindHeartbeat && action.Heartbeat != nil {
		c.HandleHeartbeat(ctx, *action.Heartbeat)
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dispatch.Dispatch(ctx, action)
}

// Catalogue, Books, Positions and Ledger expose read access to the
// engine's stores for analytics and the status server.
func (c *Controller) Catalogue() *contracts.Catalogue { return c.catalogue }
func (c *Controller) Books() *book.Store              { return c.books }
func (c *Controller) Positions() *positions.Manager    { return c.positions }
func (c *Controller) Ledger() *ledger.Ledger           { return c.ledger }

// LoadBook implements dispatcher.BookLoader.
func (c *Controller) LoadBook(ctx context.Context, id contracts.ID) ([]book.Order, error) {
	return c.rest.GetBookStates(ctx, id)
}

// LoadMarket implements spec §4.7's startup path.
func (c *Controller) LoadMarket(ctx context.Context, skipExpired bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadMarketLocked(ctx, skipExpired)
}

func (c *Controller) loadMarketLocked(ctx context.Context, skipExpired bool) error {
	c.catalogue.Clear()
	c.books.Clear()
	c.positions.Clear()
	c.ledger.Clear()

	now := time.Now().UTC()

	all, err := c.rest.ListContracts(ctx)
	if err != nil {
		return err
	}
	for _, ct := range all {
		if skipExpired && ct.DateExpires.Sub(now) < 10*time.Second {
			continue
		}
		c.catalogue.AddContract(ct)
	}

	openOrders, err := c.rest.ListOpenOrders(ctx)
	if err != nil {
		c.logger.Printf("warn: list_open_orders failed during startup load: %v", err)
	}
	for _, o := range openOrders {
		o.StatusType = book.StatusResting
		c.dispatch.Dispatch(ctx, actions.Action{Kind: actions.KindActionReport, ActionReport: &o})
	}

	traded, err := c.rest.ListTradedContracts(ctx)
	if err != nil {
		c.logger.Printf("warn: list_traded_contracts failed during startup load: %v", err)
	}
	for _, ct := range traded {
		c.catalogue.AddContract(ct)
	}

	restPositions, err := c.rest.ListPositions(ctx)
	if err != nil {
		c.logger.Printf("warn: list_positions failed during startup load: %v", err)
	}
	for _, rp := range restPositions {
		pos := positions.Position{
			ServerID:      rp.ServerID,
			ContractID:    rp.ContractID,
			Type:          rp.Type,
			Size:          rp.Size,
			AssignedSize:  rp.AssignedSize,
			ExercisedSize: rp.ExercisedSize,
		}
		c.positions.Seed(pos)
		c.refreshBasisLocked(ctx, pos)
	}

	for _, ct := range traded {
		orders, err := c.rest.GetBookStates(ctx, ct.ID)
		if err != nil {
			c.logger.Printf("warn: get_book_states failed for contract %d: %v", ct.ID, err)
			continue
		}
		c.books.Load(ct.ID, orders)
	}

	return nil
}

func (c *Controller) refreshBasisLocked(ctx context.Context, pos positions.Position) {
	if pos.ServerID == 0 {
		c.logger.Printf("debug: position for contract %d has no server id, deferring basis", pos.ContractID)
		return
	}
	trades, err := c.rest.ListTrades(ctx, pos.ServerID)
	if err != nil {
		c.logger.Printf("warn: list_trades failed for position %d: %v", pos.ServerID, err)
		return
	}
	updated, err := positions.RecomputeBasis(pos, trades)
	if err != nil {
		if errors.Is(err, positions.ErrSignInvariantViolated) {
			c.logger.Printf("error: position %d sign invariant violated, scheduling full re-list", pos.ServerID)
			c.positions.ScheduleFullRelist()
		} else {
			c.logger.Printf("debug: position %d basis not yet reconcilable: %v", pos.ServerID, err)
		}
	}
	c.positions.CommitBasis(pos.ContractID, updated)
}

func (c *Controller) relistPositionsLocked(ctx context.Context) {
	restPositions, err := c.rest.ListPositions(ctx)
	if err != nil {
		c.logger.Printf("warn: full position re-list failed: %v", err)
		c.positions.ScheduleFullRelist()
		return
	}
	for _, rp := range restPositions {
		pos := positions.Position{
			ServerID:      rp.ServerID,
			ContractID:    rp.ContractID,
			Type:          rp.Type,
			Size:          rp.Size,
			AssignedSize:  rp.AssignedSize,
			ExercisedSize: rp.ExercisedSize,
		}
		c.positions.Seed(pos)
		c.refreshBasisLocked(ctx, pos)
	}
}

// HandleHeartbeat implements dispatcher.HeartbeatSink and spec §4.7's
// heartbeat maintenance step.
func (c *Controller) HandleHeartbeat(ctx context.Context, hb actions.HeartbeatPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRunID != "" && hb.RunID != c.lastRunID {
		c.logger.Printf("run_id changed %q -> %q, rebuilding state", c.lastRunID, hb.RunID)
		c.lastRunID = hb.RunID
		c.lastTicks = hb.Ticks
		if err := c.loadMarketLocked(ctx, true); err != nil {
			c.logger.Printf("error: full reload after restart failed: %v", err)
		}
		return
	}
	c.lastRunID = hb.RunID

	if hb.Ticks <= c.lastTicks {
		c.logger.Printf("debug: stale or duplicate heartbeat ticks=%d", hb.Ticks)
		return
	}
	c.lastTicks = hb.Ticks

	if time.Since(hb.Timestamp) > c.cfg.HeartbeatStaleAfter {
		c.logger.Printf("debug: heartbeat %v stale by %v, skipping maintenance", hb.Ticks, time.Since(hb.Timestamp))
		return
	}

	if c.positions.NeedsFullRelist() {
		c.relistPositionsLocked(ctx)
	}

	for _, id := range c.positions.DrainBasisPending(c.cfg.MaxDeferredPerTick) {
		pos, ok := c.positions.Get(id)
		if !ok {
			continue
		}
		c.refreshBasisLocked(ctx, pos)
	}

	loaded := 0
	for _, id := range c.catalogue.AllIDs() {
		if loaded >= c.cfg.MaxBookLoadsPerTick {
			break
		}
		if c.catalogue.IsExpired(id, time.Now().UTC()) || c.books.IsLoaded(id) {
			continue
		}
		orders, err := c.rest.GetBookStates(ctx, id)
		if err != nil {
			c.logger.Printf("warn: lazy book load failed for contract %d: %v", id, err)
			continue
		}
		c.books.Load(id, orders)
		loaded++
	}
}

// NetToClose summarizes CostToClose across every tracked position
// (supplemented feature, spec notes §9).
func (c *Controller) NetToClose() (low, high int64) {
	c.mu.Lock()
	all := c.positions.All()
	views := make([]analytics.PositionView, 0, len(all))
	for id, pos := range all {
		top, ok, _ := c.books.Top(id)
		v := analytics.PositionView{ContractID: id, Size: pos.Size, BasisKnown: pos.BasisKnown, Basis: pos.Basis}
		if ok {
			v.Bid, v.Ask = top.BestBid, top.BestAsk
		}
		views = append(views, v)
	}
	c.mu.Unlock()
	return analytics.NetToClose(c.logger, views)
}

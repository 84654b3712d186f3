// Package dispatcher implements the action dispatcher (spec component
// C4): it classifies inbound actions.Action values by kind and, for
// action_report, by status_type, and routes them into the contract
// catalogue, order book store, position engine and ledger. Callers are
// expected to serialize calls to Dispatch (the session controller's
// mutex provides this); the dispatcher does no locking of its own.
package dispatcher

import (
	"context"
	"fmt"
	"log"

	"github.com/tildenfx/marketstate/internal/actions"
	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
)

// BookLoader fetches resting orders for a contract's book from REST, used
// to seed a book on first reference (spec §4.3).
type BookLoader interface {
	LoadBook(ctx context.Context, id contracts.ID) ([]book.Order, error)
}

// PositionSink receives open_positions_update payloads (spec §4.4, routed
// to C5).
type PositionSink interface {
	ApplyOpenPositionsUpdate(ctx context.Context, updates []actions.PositionUpdate)
}

// LedgerSink receives collateral_balance_update payloads (spec §4.4,
// routed to C6).
type LedgerSink interface {
	ApplyCollateralUpdate(update actions.CollateralUpdatePayload)
}

// HeartbeatSink receives heartbeat payloads (spec §4.7, routed to C7).
type HeartbeatSink interface {
	HandleHeartbeat(ctx context.Context, hb actions.HeartbeatPayload)
}

// Dispatcher is the single point of routing for the decoded action
// stream.
type Dispatcher struct {
	logger *log.Logger

	catalogue  *contracts.Catalogue
	books      *book.Store
	bookLoader BookLoader
	positions  PositionSink
	ledger     LedgerSink
	heartbeats HeartbeatSink

	// mpid is learned from the first observed own order (spec §4.4).
	mpid string
}

// New builds a Dispatcher wired to its collaborators. bookLoader,
// positions, ledger and heartbeats may be nil in tests that only
// exercise a subset of dispatch paths.
func New(logger *log.Logger, catalogue *contracts.Catalogue, books *book.Store, bookLoader BookLoader, positions PositionSink, ledger LedgerSink, heartbeats HeartbeatSink) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		logger:     logger,
		catalogue:  catalogue,
		books:      books,
		bookLoader: bookLoader,
		positions:  positions,
		ledger:     ledger,
		heartbeats: heartbeats,
	}
}

// MPID returns the learned own-order market participant id, or "" if
// none has been observed yet.
func (d *Dispatcher) MPID() string { return d.mpid }

// Dispatch routes one decoded action (spec §4.4's dispatch table).
func (d *Dispatcher) Dispatch(ctx context.Context, a actions.Action) error {
	switch a.Kind {
	case actions.KindBookTop:
		return d.dispatchBookTop(ctx, *a.BookTop)
	case actions.KindActionReport:
		return d.dispatchActionReport(ctx, *a.ActionReport)
	case actions.KindHeartbeat:
		if d.heartbeats != nil {
			d.heartbeats.HandleHeartbeat(ctx, *a.Heartbeat)
		}
		return nil
	case actions.KindCollateralUpdate:
		if d.ledger != nil {
			d.ledger.ApplyCollateralUpdate(*a.CollateralUpdate)
		}
		return nil
	case actions.KindOpenPositionsUpdate:
		if d.positions != nil {
			d.positions.ApplyOpenPositionsUpdate(ctx, a.OpenPositionsUpdate.Positions)
		}
		return nil
	case actions.KindExposureReport:
		d.logger.Printf("exposure_reports received, no state effect")
		return nil
	case actions.KindContractAdded:
		d.catalogue.AddContract(*a.ContractAdded)
		return nil
	case actions.KindContractRemoved:
		d.catalogue.RemoveContract(a.ContractRemoved.ContractID)
		return nil
	case actions.KindTradeBusted:
		d.logger.Printf("trade_busted: contract=%d trade=%s (reserved, no model change)", a.TradeBusted.ContractID, a.TradeBusted.TradeID)
		return nil
	case actions.KindSuccess:
		d.logger.Printf("ack: %s", a.Success.WireType)
		return nil
	default:
		d.logger.Printf("warn: unhandled action type %q", a.Other.WireType)
		return nil
	}
}

func (d *Dispatcher) dispatchBookTop(ctx context.Context, top actions.BookTopPayload) error {
	if _, ok := d.catalogue.Get(top.ContractID); !ok {
		if _, err := d.catalogue.RetrieveContract(ctx, top.ContractID); err != nil {
			d.logger.Printf("warn: book_top for unknown contract %d, retrieve failed: %v", top.ContractID, err)
			return nil
		}
		if err := d.loadBook(ctx, top.ContractID); err != nil {
			d.logger.Printf("warn: book_top for newly-fetched contract %d, book load failed: %v", top.ContractID, err)
		}
		d.logger.Printf("debug: discarding book_top received before contract %d was known", top.ContractID)
		return nil
	}

	if !d.books.IsLoaded(top.ContractID) {
		if err := d.loadBook(ctx, top.ContractID); err != nil {
			d.logger.Printf("warn: book_top for contract %d with unloaded book, load failed: %v", top.ContractID, err)
			return nil
		}
	}

	d.books.ApplyBookTop(top.ContractID, book.BookTop{BestBid: top.BestBid, BestAsk: top.BestAsk, Clock: top.Clock})
	return nil
}

func (d *Dispatcher) loadBook(ctx context.Context, id contracts.ID) error {
	if d.bookLoader == nil {
		return fmt.Errorf("dispatcher: no book loader configured")
	}
	orders, err := d.bookLoader.LoadBook(ctx, id)
	if err != nil {
		return err
	}
	d.books.Load(id, orders)
	return nil
}

func (d *Dispatcher) dispatchActionReport(ctx context.Context, order book.Order) error {
	if _, ok := d.catalogue.Get(order.ContractID); !ok {
		if _, err := d.catalogue.RetrieveContract(ctx, order.ContractID); err != nil {
			d.logger.Printf("warn: action_report for unknown contract %d, retrieve failed: %v", order.ContractID, err)
			return nil
		}
	}

	if order.MPID != "" && d.mpid == "" {
		d.mpid = order.MPID
		d.logger.Printf("learned own mpid: %s", d.mpid)
	}
	own := order.IsOwnedBy(d.mpid)

	switch order.StatusType {
	case book.StatusResting:
		if !d.books.IsLoaded(order.ContractID) {
			if err := d.loadBook(ctx, order.ContractID); err != nil {
				d.logger.Printf("warn: resting order for contract %d with unloaded book, load failed: %v", order.ContractID, err)
				return nil
			}
		}
		d.books.ApplyOrderEvent(order)

	case book.StatusCross:
		if _, tracked := d.books.Order(order.ContractID, order.Mid); !tracked {
			seed := order
			seed.StatusType = book.StatusResting
			seed.Size = order.Size + order.FilledSize
			// One tick behind the trade, so the trade is then accepted
			// over the seed instead of being dropped as a duplicate.
			seed.Clock.Ticks = order.Clock.Ticks - 1
			d.books.ApplyOrderEvent(seed)
			d.logger.Printf("debug: inserted untracked order %s before applying trade", order.Mid)
		}
		if own {
			side := "buy"
			if order.IsAsk {
				side = "sell"
			}
			d.logger.Printf("own fill: contract=%d mid=%s side=%s filled_size=%d filled_price=%d", order.ContractID, order.Mid, side, order.FilledSize, order.FilledPrice)
		}
		d.books.ApplyOrderEvent(order)

	case book.StatusUnfilledMarket:
		d.logger.Printf("unfilled market order: contract=%d mid=%s", order.ContractID, order.Mid)

	case book.StatusAcknowledged:
		d.logger.Printf("debug: order acknowledged: contract=%d mid=%s", order.ContractID, order.Mid)

	case book.StatusCancelled, book.StatusExpired:
		d.books.ApplyOrderEvent(order)

	default:
		if order.StatusType.IsRejectedOrInvalid() {
			d.books.ApplyOrderEvent(order)
			d.logger.Printf("warn: order rejected/invalid: contract=%d mid=%s status=%d", order.ContractID, order.Mid, order.StatusType)
		} else {
			d.logger.Printf("debug: unrecognized status_type %d for contract=%d mid=%s", order.StatusType, order.ContractID, order.Mid)
		}
	}

	return nil
}

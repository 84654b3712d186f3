package session

import (
	"context"
	"testing"
	"time"

	"github.com/tildenfx/marketstate/internal/actions"
	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
)

type fakeREST struct {
	contracts     []contracts.Contract
	traded        []contracts.Contract
	positionsList []RESTPosition
	trades        map[int64][]positions.Trade
	openOrders    []book.Order
	books         map[contracts.ID][]book.Order

	loadCount int
}

func (f *fakeREST) ListContracts(context.Context) ([]contracts.Contract, error) { return f.contracts, nil }
func (f *fakeREST) ListTradedContracts(context.Context) ([]contracts.Contract, error) {
	return f.traded, nil
}
func (f *fakeREST) RetrieveContract(_ context.Context, id contracts.ID) (contracts.Contract, error) {
	for _, c := range f.contracts {
		if c.ID == id {
			return c, nil
		}
	}
	return contracts.Contract{ID: id}, nil
}
func (f *fakeREST) ListPositions(context.Context) ([]RESTPosition, error) { return f.positionsList, nil }
func (f *fakeREST) ListTrades(_ context.Context, positionID int64) ([]positions.Trade, error) {
	return f.trades[positionID], nil
}
func (f *fakeREST) ListTransactions(context.Context) ([]ledger.Transaction, error) { return nil, nil }
func (f *fakeREST) ListOpenOrders(context.Context) ([]book.Order, error)           { return f.openOrders, nil }
func (f *fakeREST) GetBookStates(_ context.Context, id contracts.ID) ([]book.Order, error) {
	f.loadCount++
	return f.books[id], nil
}

func TestLoadMarketSeedsEverything(t *testing.T) {
	rest := &fakeREST{
		contracts: []contracts.Contract{{ID: 1, DateExpires: time.Now().Add(1000 * time.Hour)}},
		traded:    []contracts.Contract{{ID: 1, DateExpires: time.Now().Add(1000 * time.Hour)}},
		positionsList: []RESTPosition{
			{ServerID: 42, ContractID: 1, Type: positions.Long, Size: 5},
		},
		trades: map[int64][]positions.Trade{
			42: {{Side: positions.Bid, FilledSize: 5, Premium: 1000, Fee: 10}},
		},
		books: map[contracts.ID][]book.Order{1: {{ContractID: 1, Mid: "m1", Price: 100, Size: 1}}},
	}
	c := New(nil, DefaultConfig(), rest)

	if err := c.LoadMarket(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := c.Catalogue().Get(1); !ok {
		t.Fatalf("expected contract 1 seeded")
	}
	pos, ok := c.Positions().Get(1)
	if !ok || !pos.BasisKnown {
		t.Fatalf("expected position basis known, got %+v ok=%v", pos, ok)
	}
	if !c.Books().IsLoaded(1) {
		t.Fatalf("expected book for contract 1 to be loaded")
	}
}

func TestHandleHeartbeatRestartTriggersReload(t *testing.T) {
	rest := &fakeREST{contracts: []contracts.Contract{{ID: 1, DateExpires: time.Now().Add(1000 * time.Hour)}}}
	c := New(nil, DefaultConfig(), rest)

	c.HandleHeartbeat(context.Background(), actions.HeartbeatPayload{Ticks: 100, RunID: "A", Timestamp: time.Now()})
	before := rest.loadCount

	c.HandleHeartbeat(context.Background(), actions.HeartbeatPayload{Ticks: 101, RunID: "B", Timestamp: time.Now()})

	if _, ok := c.Catalogue().Get(1); !ok {
		t.Fatalf("expected restart reload to seed catalogue from REST")
	}
	_ = before
}

func TestHandleHeartbeatSkipsMaintenanceWhenStale(t *testing.T) {
	rest := &fakeREST{}
	c := New(nil, DefaultConfig(), rest)

	old := time.Now().Add(-10 * time.Second)
	c.HandleHeartbeat(context.Background(), actions.HeartbeatPayload{Ticks: 1, RunID: "A", Timestamp: old})

	if rest.loadCount != 0 {
		t.Fatalf("expected no book loads on a stale heartbeat tick")
	}
}

package session

import (
	"context"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
)

// RESTPosition is one entry of a list-positions reply (spec §6), carrying
// its embedded contract id rather than the full contract.
type RESTPosition struct {
	ServerID      int64
	ContractID    contracts.ID
	Type          positions.Type
	Size          int64
	AssignedSize  int64
	ExercisedSize int64
}

// RESTClient is the black-box REST transport the core consumes (spec §6).
// The concrete implementation (restapi.RetryingClient) lives outside the
// engine; the session controller only depends on this interface, so
// tests can supply a fake.
type RESTClient interface {
	ListContracts(ctx context.Context) ([]contracts.Contract, error)
	ListTradedContracts(ctx context.Context) ([]contracts.Contract, error)
	RetrieveContract(ctx context.Context, id contracts.ID) (contracts.Contract, error)
	ListPositions(ctx context.Context) ([]RESTPosition, error)
	ListTrades(ctx context.Context, positionID int64) ([]positions.Trade, error)
	ListTransactions(ctx context.Context) ([]ledger.Transaction, error)
	ListOpenOrders(ctx context.Context) ([]book.Order, error)
	GetBookStates(ctx context.Context, id contracts.ID) ([]book.Order, error)
}

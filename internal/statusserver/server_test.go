package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
	"github.com/tildenfx/marketstate/internal/session"
)

type fakeREST struct{}

func (fakeREST) ListContracts(context.Context) ([]contracts.Contract, error) { return nil, nil }
func (fakeREST) ListTradedContracts(context.Context) ([]contracts.Contract, error) {
	return nil, nil
}
func (fakeREST) RetrieveContract(_ context.Context, id contracts.ID) (contracts.Contract, error) {
	return contracts.Contract{ID: id}, nil
}
func (fakeREST) ListPositions(context.Context) ([]session.RESTPosition, error) { return nil, nil }
func (fakeREST) ListTrades(context.Context, int64) ([]positions.Trade, error)  { return nil, nil }
func (fakeREST) ListTransactions(context.Context) ([]ledger.Transaction, error) {
	return nil, nil
}
func (fakeREST) ListOpenOrders(context.Context) ([]book.Order, error) { return nil, nil }
func (fakeREST) GetBookStates(context.Context, contracts.ID) ([]book.Order, error) {
	return nil, nil
}

func TestHandleHealth(t *testing.T) {
	ctrl := session.New(nil, session.DefaultConfig(), fakeREST{})
	srv := NewServer(Config{Port: 0}, ctrl, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandleContractsListsSeeded(t *testing.T) {
	ctrl := session.New(nil, session.DefaultConfig(), fakeREST{})
	ctrl.Catalogue().AddContract(contracts.Contract{ID: 1, DateExpires: time.Now().Add(time.Hour)})
	srv := NewServer(Config{Port: 0}, ctrl, nil)

	req := httptest.NewRequest(http.MethodGet, "/contracts", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []contracts.Contract
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
}

func TestHandleBookNotLoadedReturns404(t *testing.T) {
	ctrl := session.New(nil, session.DefaultConfig(), fakeREST{})
	srv := NewServer(Config{Port: 0}, ctrl, nil)

	req := httptest.NewRequest(http.MethodGet, "/contracts/1/book", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

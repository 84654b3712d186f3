package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tildenfx/marketstate/internal/contracts"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *HTTPClient) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Config{APIBase: srv.URL, LegacyAPIBase: srv.URL, APIKey: "test-key", DefaultLimit: 50}
	return srv, NewHTTPClient(cfg, srv.Client(), nil)
}

func TestListContractsSinglePage(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trading/contracts", r.URL.Path)
		require.Equal(t, "JWT test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(contractsPage{
			Data: []contractDTO{
				{ID: 1, Name: "c1", DerivativeType: "future", UnderlyingAsset: "CBTC", DateExpires: 0},
			},
		})
	})

	got, err := client.ListContracts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, contracts.ID(1), got[0].ID)
	require.Equal(t, contracts.Future, got[0].DerivativeType)
}

func TestListContractsFollowsCursor(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("after") == "" {
			next := "page2"
			_ = json.NewEncoder(w).Encode(contractsPage{
				Data: []contractDTO{{ID: 1, DerivativeType: "future"}},
				Meta: struct {
					Next *string `json:"next"`
				}{Next: &next},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(contractsPage{
			Data: []contractDTO{{ID: 2, DerivativeType: "option"}},
		})
	})

	got, err := client.ListContracts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, got, 2)
}

func TestRetrieveContractNotFoundReturnsAPIError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such contract"}`))
	})

	_, err := client.RetrieveContract(context.Background(), 99)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestGetBookStatesReturnsOrders(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trading/book-states/7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(bookStatesResponse{
			ContractID: 7,
			BookStates: []orderDTO{{ContractID: 7, Mid: "m1", Price: 100, Size: 1}},
		})
	})

	orders, err := client.GetBookStates(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Equal(t, "m1", string(orders[0].Mid))
}

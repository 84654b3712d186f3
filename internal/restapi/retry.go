package restapi

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/tildenfx/marketstate/internal/book"
	"github.com/tildenfx/marketstate/internal/contracts"
	"github.com/tildenfx/marketstate/internal/ledger"
	"github.com/tildenfx/marketstate/internal/positions"
	"github.com/tildenfx/marketstate/internal/session"
)

// RetryConfig controls RetryingClient's backoff, adapted from the
// teacher's retry.Config/retry.DefaultConfig.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig matches the teacher's defaults.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// RetryingClient wraps a session.RESTClient with exponential-backoff
// retry on transient errors and a gobreaker circuit breaker, so a wedged
// exchange endpoint trips the breaker instead of hanging the session
// controller's single mutex holder. Adapted from the teacher's
// retry.Client, which wrapped a broker.Broker the same way.
type RetryingClient struct {
	inner  session.RESTClient
	logger *log.Logger
	cfg    RetryConfig
	cb     *gobreaker.CircuitBreaker[any]
}

// NewRetryingClient wraps inner with retry and circuit-breaking.
func NewRetryingClient(inner session.RESTClient, logger *log.Logger, cfg ...RetryConfig) *RetryingClient {
	c := DefaultRetryConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultRetryConfig.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultRetryConfig.MaxBackoff
	}
	if logger == nil {
		logger = log.Default()
	}
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "restapi",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Printf("warn: restapi circuit %q changed %s -> %s", name, from, to)
		},
	})
	return &RetryingClient{inner: inner, logger: logger, cfg: c, cb: breaker}
}

var _ session.RESTClient = (*RetryingClient)(nil)

// call runs op through the circuit breaker, retrying transient failures
// with exponential backoff and jitter. Each attempt is tagged with a
// correlation id for log correlation across retries.
func call[T any](ctx context.Context, c *RetryingClient, name string, op func() (T, error)) (T, error) {
	correlationID := uuid.NewString()
	backoff := c.cfg.InitialBackoff
	var zero T
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := c.cb.Execute(func() (any, error) {
			return op()
		})
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("debug: restapi %s corr=%s succeeded on attempt %d", name, correlationID, attempt+1)
			}
			return result.(T), nil
		}

		lastErr = err
		c.logger.Printf("warn: restapi %s corr=%s attempt %d/%d failed: %v", name, correlationID, attempt+1, c.cfg.MaxRetries+1, err)

		if !isTransient(err) || attempt == c.cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("restapi: %s failed after %d attempts: %w", name, c.cfg.MaxRetries+1, lastErr)
}

func nextBackoff(current, max time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > max {
		backoff = max
	}
	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		if jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			backoff += time.Duration(jitterVal.Int64())
		}
	}
	return backoff
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return true
	}
	s := strings.ToLower(err.Error())
	patterns := []string{
		"timeout", "i/o timeout", "connection refused", "connection reset",
		"temporary failure", "temporarily unavailable", "server error",
		"rate limit", "429", "502", "503", "504", "network", "dns", "tcp",
		"no such host", "deadline exceeded", "tls handshake", "broken pipe", "eof",
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func (c *RetryingClient) ListContracts(ctx context.Context) ([]contracts.Contract, error) {
	return call(ctx, c, "list_contracts", func() ([]contracts.Contract, error) { return c.inner.ListContracts(ctx) })
}

func (c *RetryingClient) ListTradedContracts(ctx context.Context) ([]contracts.Contract, error) {
	return call(ctx, c, "list_traded_contracts", func() ([]contracts.Contract, error) { return c.inner.ListTradedContracts(ctx) })
}

func (c *RetryingClient) RetrieveContract(ctx context.Context, id contracts.ID) (contracts.Contract, error) {
	return call(ctx, c, "retrieve_contract", func() (contracts.Contract, error) { return c.inner.RetrieveContract(ctx, id) })
}

func (c *RetryingClient) ListPositions(ctx context.Context) ([]session.RESTPosition, error) {
	return call(ctx, c, "list_positions", func() ([]session.RESTPosition, error) { return c.inner.ListPositions(ctx) })
}

func (c *RetryingClient) ListTrades(ctx context.Context, positionID int64) ([]positions.Trade, error) {
	return call(ctx, c, "list_trades", func() ([]positions.Trade, error) { return c.inner.ListTrades(ctx, positionID) })
}

func (c *RetryingClient) ListTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return call(ctx, c, "list_transactions", func() ([]ledger.Transaction, error) { return c.inner.ListTransactions(ctx) })
}

func (c *RetryingClient) ListOpenOrders(ctx context.Context) ([]book.Order, error) {
	return call(ctx, c, "list_open_orders", func() ([]book.Order, error) { return c.inner.ListOpenOrders(ctx) })
}

func (c *RetryingClient) GetBookStates(ctx context.Context, id contracts.ID) ([]book.Order, error) {
	return call(ctx, c, "get_book_states", func() ([]book.Order, error) { return c.inner.GetBookStates(ctx, id) })
}

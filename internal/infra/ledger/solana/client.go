// Package solana implements ledger.Client over the Solana JSON-RPC API.
//
// Every call goes through a shared sliding-window limiter and a retry policy
// that only retries transient failures: HTTP 429/5xx, timeouts and node
// conditions such as "node is behind". Answers are decoded into the ledger
// model; payloads that do not match the expected shape are reported as
// ledger.ErrMalformedData.
package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/ratelimit"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/retry"
	"github.com/gabapcia/walletsync/internal/pkg/transport/jsonrpc"
)

// JSON-RPC error codes returned by Solana nodes for conditions that clear up
// on their own.
const (
	codeBlockNotAvailable      = -32004
	codeNodeUnhealthy          = -32005
	codeBlockStatusUnavailable = -32014
	codeMinContextSlot         = -32016
	codeInternalError          = -32603
	codeRateLimited            = 429
)

// codeInvalidParams is returned by nodes that reject a requested encoding.
const codeInvalidParams = -32602

// client implements ledger.Client for Solana nodes.
type client struct {
	conn        jsonrpc.Client
	limiter     ratelimit.Limiter
	retry       retry.Retry
	commitment  string
	callTimeout time.Duration
}

var _ ledger.Client = (*client)(nil)

type config struct {
	limiter     ratelimit.Limiter
	retry       retry.Retry
	commitment  string
	callTimeout time.Duration
}

// Option configures the client.
type Option func(*config)

// WithLimiter shares a request limiter with the client. Default: unlimited.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *config) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithRetry replaces the retry policy. Its classifier is replaced by IsTransient.
func WithRetry(attempts uint, delay, maxDelay time.Duration) Option {
	return func(c *config) {
		c.retry = newRetry(attempts, delay, maxDelay)
	}
}

// WithCommitment sets the commitment level of every query. Default: "confirmed".
func WithCommitment(commitment string) Option {
	return func(c *config) {
		if commitment != "" {
			c.commitment = commitment
		}
	}
}

// WithCallTimeout bounds each attempt of a call. Default: 20 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

func newRetry(attempts uint, delay, maxDelay time.Duration) retry.Retry {
	return retry.New(
		retry.WithAttempts(attempts),
		retry.WithDelay(delay),
		retry.WithMaxDelay(maxDelay),
		retry.WithRetryIf(IsTransient),
	)
}

// NewClient returns a ledger client issuing calls through conn.
func NewClient(conn jsonrpc.Client, opts ...Option) *client {
	cfg := config{
		limiter:     ratelimit.New(0, 0),
		retry:       newRetry(4, 500*time.Millisecond, 8*time.Second),
		commitment:  "confirmed",
		callTimeout: 20 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &client{
		conn:        conn,
		limiter:     cfg.limiter,
		retry:       cfg.retry,
		commitment:  cfg.commitment,
		callTimeout: cfg.callTimeout,
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ledger.ErrTransientUpstream)
}

// classify wraps err with the ledger sentinel describing it.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		statusErr   *jsonrpc.StatusError
		providerErr *jsonrpc.ProviderError
		netErr      net.Error
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", ledger.ErrTransientUpstream, err)
		}
	case errors.As(err, &providerErr):
		switch providerErr.Code {
		case codeBlockNotAvailable, codeNodeUnhealthy, codeBlockStatusUnavailable,
			codeMinContextSlot, codeInternalError, codeRateLimited:
			return fmt.Errorf("%w: %w", ledger.ErrTransientUpstream, err)
		}
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ledger.ErrTransientUpstream, err)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return fmt.Errorf("%w: %w", ledger.ErrMalformedData, err)
	}

	return err
}

// call issues method under the limiter and retry policy and decodes the
// result into out. A JSON null result leaves out untouched and reports
// found=false.
func (c *client) call(ctx context.Context, out any, method string, params ...any) (bool, error) {
	found := false

	err := c.retry.Execute(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		// a per-attempt deadline must not be mistaken for the caller's own
		attemptCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		raw, err := c.conn.Fetch(attemptCtx, method, params...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return classify(err)
		}

		if string(raw) == "null" {
			return nil
		}

		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode %s result: %w", ledger.ErrMalformedData, method, err)
		}

		found = true
		return nil
	})
	if err != nil {
		logger.Debug(ctx, "ledger call failed", "rpc.method", method, "error", err)
		return false, err
	}

	return found, nil
}

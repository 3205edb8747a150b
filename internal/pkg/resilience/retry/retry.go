// Package retry provides a reusable retry policy for operations that may fail temporarily.
// It wraps the retry-go package from Avast behind a small interface configured with
// functional options.
//
// The policy uses exponential backoff combined with random jitter, so concurrent callers
// hitting the same rate-limited upstream do not retry in lockstep. A classifier can be
// installed with WithRetryIf to retry only errors the caller considers transient; any
// other error stops the loop immediately.
//
//	r := retry.New(
//	    retry.WithAttempts(5),
//	    retry.WithDelay(200*time.Millisecond),
//	    retry.WithRetryIf(func(err error) bool { return errors.Is(err, ErrTransient) }),
//	)
//	err := r.Execute(ctx, func() error { return call(ctx) })
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry executes operations under a retry policy.
type Retry interface {
	// Execute runs operation until it succeeds, the policy gives up, or ctx is done.
	//
	// The operation should be idempotent. When the context is canceled while waiting
	// between attempts, the context error is returned.
	Execute(ctx context.Context, operation func() error) error
}

// config holds internal settings for the retry mechanism.
type config struct {
	attempts    uint              // maximum number of attempts, including the first one
	delay       time.Duration     // base delay for the exponential backoff
	maxDelay    time.Duration     // upper bound for a single backoff delay
	maxJitter   time.Duration     // upper bound for the random jitter added to each delay
	lastErrOnly bool              // whether to return only the last error
	retryIf     func(error) bool  // decides whether an error is worth another attempt
	onRetry     func(uint, error) // observer invoked before each retry
}

// Option defines a functional option for configuring the retry mechanism.
type Option func(*config)

// retrier implements Retry on top of retry-go.
type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry configured with opts.
//
// Defaults:
//   - attempts:    3
//   - delay:       1 second
//   - maxDelay:    5 seconds
//   - maxJitter:   250 milliseconds
//   - lastErrOnly: true
//   - retryIf:     every error is retried
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       1 * time.Second,
		maxDelay:    5 * time.Second,
		maxJitter:   250 * time.Millisecond,
		lastErrOnly: true,
		retryIf:     func(error) bool { return true },
		onRetry:     func(uint, error) {},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{
		cfg: cfg,
	}
}

// Execute implements Retry.
func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	delayType := retry.BackOffDelay
	if r.cfg.maxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}

	options := []retry.Option{
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.MaxJitter(r.cfg.maxJitter),
		retry.DelayType(delayType),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
		retry.RetryIf(r.cfg.retryIf),
		retry.OnRetry(r.cfg.onRetry),
		retry.Context(ctx),
	}

	return retry.Do(operation, options...)
}

// WithAttempts sets the maximum number of attempts, including the first one.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = n
	}
}

// WithDelay sets the base delay of the exponential backoff.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps a single backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithMaxJitter sets the upper bound of the random jitter added to each delay.
// Zero disables jitter.
func WithMaxJitter(d time.Duration) Option {
	return func(c *config) {
		c.maxJitter = d
	}
}

// WithLastErrorOnly sets whether only the error of the final attempt is returned.
// When false, the errors of all attempts are combined.
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithRetryIf installs the classifier that decides whether an error is retried.
// Errors for which fn returns false are returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *config) {
		if fn != nil {
			c.retryIf = fn
		}
	}
}

// WithOnRetry installs a callback invoked with the attempt number and error
// before each retry. Useful for logging and metrics.
func WithOnRetry(fn func(attempt uint, err error)) Option {
	return func(c *config) {
		if fn != nil {
			c.onRetry = fn
		}
	}
}

package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shopspring/decimal"

	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/ratelimit"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/retry"
)

// priceKey identifies a cached quote: one per mint and time bucket.
type priceKey struct {
	mint   string
	bucket int64
}

// assetEntry is a cached metadata lookup; missing marks a permanent miss.
type assetEntry struct {
	info    AssetInfo
	missing bool
}

// Gateway serves metadata and prices from cache, falling back to the provider.
// It is safe for concurrent use; concurrent fills of the same key are
// idempotent.
type Gateway struct {
	provider Provider
	shared   AssetCache
	limiter  ratelimit.Limiter
	retry    retry.Retry
	bucket   time.Duration

	assets *xsync.Map[string, assetEntry]
	prices *xsync.Map[priceKey, decimal.Decimal]
}

type config struct {
	shared  AssetCache
	limiter ratelimit.Limiter
	retry   retry.Retry
	bucket  time.Duration
}

// Option configures a Gateway.
type Option func(*config)

// WithAssetCache installs a shared metadata cache consulted before the provider.
func WithAssetCache(c AssetCache) Option {
	return func(cfg *config) {
		if c != nil {
			cfg.shared = c
		}
	}
}

// WithLimiter throttles provider requests.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.limiter = l
		}
	}
}

// WithRetry sets the policy used for provider calls. Only ErrTransient
// failures should be retried by it.
func WithRetry(r retry.Retry) Option {
	return func(cfg *config) {
		if r != nil {
			cfg.retry = r
		}
	}
}

// WithPriceBucket sets the granularity quotes are cached at. Default: one minute.
func WithPriceBucket(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.bucket = d
		}
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// New returns a Gateway over provider.
func New(provider Provider, opts ...Option) *Gateway {
	cfg := config{
		shared:  nopAssetCache{},
		limiter: ratelimit.New(0, 0),
		retry:   retry.New(retry.WithAttempts(3), retry.WithDelay(500*time.Millisecond), retry.WithRetryIf(IsTransient)),
		bucket:  time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Gateway{
		provider: provider,
		shared:   cfg.shared,
		limiter:  cfg.limiter,
		retry:    cfg.retry,
		bucket:   cfg.bucket,
		assets:   xsync.NewMap[string, assetEntry](),
		prices:   xsync.NewMap[priceKey, decimal.Decimal](),
	}
}

// call runs fn under the rate limiter and the retry policy.
func (g *Gateway) call(ctx context.Context, fn func() error) error {
	return g.retry.Execute(ctx, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn()
	})
}

// AssetInfo returns the metadata of mint. Errors wrap ErrValuationUnavailable.
func (g *Gateway) AssetInfo(ctx context.Context, mint string) (AssetInfo, error) {
	if entry, ok := g.assets.Load(mint); ok {
		if entry.missing {
			return AssetInfo{}, fmt.Errorf("%w: %s: %w", ErrValuationUnavailable, mint, ErrAssetNotFound)
		}
		return entry.info, nil
	}

	if info, err := g.shared.GetAssetInfo(ctx, mint); err == nil {
		g.assets.Store(mint, assetEntry{info: info})
		return info, nil
	} else if !errors.Is(err, ErrAssetNotCached) {
		logger.Warn(ctx, "shared asset cache read failed", "asset.mint", mint, "error", err)
	}

	var info AssetInfo
	err := g.call(ctx, func() error {
		var err error
		info, err = g.provider.AssetInfo(ctx, mint)
		return err
	})
	if errors.Is(err, ErrAssetNotFound) {
		g.assets.Store(mint, assetEntry{missing: true})
	}
	if err != nil {
		return AssetInfo{}, fmt.Errorf("%w: %s: %w", ErrValuationUnavailable, mint, err)
	}

	info.Mint = mint
	entry, loaded := g.assets.LoadOrStore(mint, assetEntry{info: info})
	if !loaded {
		if err := g.shared.SetAssetInfo(ctx, info); err != nil {
			logger.Warn(ctx, "shared asset cache write failed", "asset.mint", mint, "error", err)
		}
	}

	return entry.info, nil
}

// UnitPriceAt returns the USD price of one unit of mint at ts, quantized to
// the gateway's price bucket. Errors wrap ErrValuationUnavailable.
func (g *Gateway) UnitPriceAt(ctx context.Context, mint string, ts time.Time) (decimal.Decimal, error) {
	bucketStart := ts.Truncate(g.bucket)
	key := priceKey{mint: mint, bucket: bucketStart.Unix()}

	if price, ok := g.prices.Load(key); ok {
		return price, nil
	}

	var price decimal.Decimal
	err := g.call(ctx, func() error {
		var err error
		price, err = g.provider.UnitPriceAt(ctx, mint, bucketStart)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price of %s at %s: %w", ErrValuationUnavailable, mint, bucketStart.Format(time.RFC3339), err)
	}

	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive price of %s at %s", ErrValuationUnavailable, mint, bucketStart.Format(time.RFC3339))
	}

	actual, _ := g.prices.LoadOrStore(key, price)
	return actual, nil
}

// CachedAssets returns how many mint lookups are cached, misses included.
func (g *Gateway) CachedAssets() int {
	return g.assets.Size()
}

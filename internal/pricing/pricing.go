// Package pricing is the price and token-metadata gateway. It fronts an
// external provider with in-process caches, an optional shared cache, a
// request-rate limiter and a retry policy, so classification can value
// thousands of trades without exceeding the provider's quota.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrValuationUnavailable is returned when no price or metadata could be obtained.
	// Callers degrade to a placeholder valuation.
	ErrValuationUnavailable = errors.New("valuation unavailable")

	// ErrAssetNotFound is returned by providers that know nothing about a mint.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrTransient marks provider failures worth retrying (timeouts, 429, 5xx).
	ErrTransient = errors.New("transient provider failure")

	// ErrAssetNotCached is returned by an AssetCache miss.
	ErrAssetNotCached = errors.New("asset not cached")
)

// AssetInfo is the display metadata of a token.
type AssetInfo struct {
	Mint    string
	Symbol  string
	LogoURI string
}

// Provider is an external price and metadata source.
type Provider interface {
	// AssetInfo returns the metadata of mint, or ErrAssetNotFound.
	AssetInfo(ctx context.Context, mint string) (AssetInfo, error)

	// UnitPriceAt returns the USD price of one unit of mint at ts.
	UnitPriceAt(ctx context.Context, mint string, ts time.Time) (decimal.Decimal, error)
}

// AssetCache is a cache shared between processes. Metadata rarely changes,
// so a scan on one worker warms it for every other.
type AssetCache interface {
	// GetAssetInfo returns the cached metadata, or ErrAssetNotCached.
	GetAssetInfo(ctx context.Context, mint string) (AssetInfo, error)

	// SetAssetInfo stores metadata.
	SetAssetInfo(ctx context.Context, info AssetInfo) error
}

type nopAssetCache struct{}

func (nopAssetCache) GetAssetInfo(context.Context, string) (AssetInfo, error) {
	return AssetInfo{}, ErrAssetNotCached
}

func (nopAssetCache) SetAssetInfo(context.Context, AssetInfo) error {
	return nil
}

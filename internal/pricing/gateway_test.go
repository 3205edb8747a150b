package pricing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gabapcia/walletsync/internal/pkg/resilience/ratelimit"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/retry"
)

const bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

type providerMock struct {
	mock.Mock
}

func (m *providerMock) AssetInfo(ctx context.Context, mint string) (AssetInfo, error) {
	args := m.Called(ctx, mint)
	return args.Get(0).(AssetInfo), args.Error(1)
}

func (m *providerMock) UnitPriceAt(ctx context.Context, mint string, ts time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, mint, ts)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type memoryAssetCache struct {
	mu     sync.Mutex
	assets map[string]AssetInfo
}

func (c *memoryAssetCache) GetAssetInfo(_ context.Context, mint string) (AssetInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.assets[mint]
	if !ok {
		return AssetInfo{}, ErrAssetNotCached
	}
	return info, nil
}

func (c *memoryAssetCache) SetAssetInfo(_ context.Context, info AssetInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.assets[info.Mint] = info
	return nil
}

func fastRetry() Option {
	return WithRetry(retry.New(
		retry.WithAttempts(3),
		retry.WithDelay(time.Millisecond),
		retry.WithMaxJitter(time.Millisecond),
		retry.WithRetryIf(IsTransient),
	))
}

func TestGateway_AssetInfo(t *testing.T) {
	t.Run("provider result is cached in process and shared", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("AssetInfo", mock.Anything, bonk).Return(AssetInfo{Symbol: "BONK", LogoURI: "https://logo"}, nil).Once()
		shared := &memoryAssetCache{assets: map[string]AssetInfo{}}

		g := New(provider, WithAssetCache(shared), fastRetry())

		for range 3 {
			info, err := g.AssetInfo(t.Context(), bonk)
			require.NoError(t, err)
			assert.Equal(t, AssetInfo{Mint: bonk, Symbol: "BONK", LogoURI: "https://logo"}, info)
		}

		assert.Equal(t, "BONK", shared.assets[bonk].Symbol)
		assert.Equal(t, 1, g.CachedAssets())
		provider.AssertExpectations(t)
	})

	t.Run("shared cache hit skips the provider", func(t *testing.T) {
		provider := new(providerMock)
		shared := &memoryAssetCache{assets: map[string]AssetInfo{bonk: {Mint: bonk, Symbol: "BONK"}}}

		info, err := New(provider, WithAssetCache(shared)).AssetInfo(t.Context(), bonk)

		require.NoError(t, err)
		assert.Equal(t, "BONK", info.Symbol)
		provider.AssertNotCalled(t, "AssetInfo", mock.Anything, mock.Anything)
	})

	t.Run("unknown asset is remembered", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("AssetInfo", mock.Anything, bonk).Return(AssetInfo{}, ErrAssetNotFound).Once()

		g := New(provider, fastRetry())

		for range 2 {
			_, err := g.AssetInfo(t.Context(), bonk)
			assert.ErrorIs(t, err, ErrValuationUnavailable)
			assert.ErrorIs(t, err, ErrAssetNotFound)
		}
		provider.AssertExpectations(t)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("AssetInfo", mock.Anything, bonk).Return(AssetInfo{}, ErrTransient).Twice()
		provider.On("AssetInfo", mock.Anything, bonk).Return(AssetInfo{Symbol: "BONK"}, nil).Once()

		info, err := New(provider, fastRetry()).AssetInfo(t.Context(), bonk)

		require.NoError(t, err)
		assert.Equal(t, "BONK", info.Symbol)
		provider.AssertExpectations(t)
	})

	t.Run("transient failures are not cached", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("AssetInfo", mock.Anything, bonk).Return(AssetInfo{}, ErrTransient).Times(3)
		provider.On("AssetInfo", mock.Anything, bonk).Return(AssetInfo{Symbol: "BONK"}, nil).Once()

		g := New(provider, fastRetry())

		_, err := g.AssetInfo(t.Context(), bonk)
		require.ErrorIs(t, err, ErrValuationUnavailable)

		info, err := g.AssetInfo(t.Context(), bonk)
		require.NoError(t, err)
		assert.Equal(t, "BONK", info.Symbol)
	})
}

func TestGateway_UnitPriceAt(t *testing.T) {
	ts := time.Date(2024, 4, 2, 10, 15, 42, 0, time.UTC)
	bucket := time.Date(2024, 4, 2, 10, 15, 0, 0, time.UTC)

	t.Run("quotes are cached per bucket", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("UnitPriceAt", mock.Anything, bonk, bucket).Return(decimal.RequireFromString("0.000021"), nil).Once()

		g := New(provider, fastRetry())

		first, err := g.UnitPriceAt(t.Context(), bonk, ts)
		require.NoError(t, err)
		second, err := g.UnitPriceAt(t.Context(), bonk, ts.Add(10*time.Second))
		require.NoError(t, err)

		assert.True(t, decimal.RequireFromString("0.000021").Equal(first))
		assert.True(t, first.Equal(second))
		provider.AssertExpectations(t)
	})

	t.Run("non positive price is unavailable", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("UnitPriceAt", mock.Anything, bonk, bucket).Return(decimal.Zero, nil).Once()

		_, err := New(provider, fastRetry()).UnitPriceAt(t.Context(), bonk, ts)

		assert.ErrorIs(t, err, ErrValuationUnavailable)
	})

	t.Run("provider error is wrapped", func(t *testing.T) {
		boom := errors.New("bad request")
		provider := new(providerMock)
		provider.On("UnitPriceAt", mock.Anything, bonk, bucket).Return(decimal.Zero, boom).Once()

		_, err := New(provider, fastRetry()).UnitPriceAt(t.Context(), bonk, ts)

		assert.ErrorIs(t, err, ErrValuationUnavailable)
		assert.ErrorIs(t, err, boom)
		provider.AssertExpectations(t)
	})

	t.Run("custom bucket", func(t *testing.T) {
		hour := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
		provider := new(providerMock)
		provider.On("UnitPriceAt", mock.Anything, bonk, hour).Return(decimal.NewFromInt(1), nil).Once()

		_, err := New(provider, WithPriceBucket(time.Hour), fastRetry()).UnitPriceAt(t.Context(), bonk, ts)

		require.NoError(t, err)
		provider.AssertExpectations(t)
	})

	t.Run("requests go through the limiter", func(t *testing.T) {
		provider := new(providerMock)
		provider.On("UnitPriceAt", mock.Anything, bonk, mock.Anything).Return(decimal.NewFromInt(1), nil)

		limiter := ratelimit.New(2, time.Hour)
		g := New(provider, WithLimiter(limiter), fastRetry())

		for i := range 2 {
			_, err := g.UnitPriceAt(t.Context(), bonk, ts.Add(time.Duration(i)*time.Hour))
			require.NoError(t, err)
		}

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()

		_, err := g.UnitPriceAt(ctx, bonk, ts.Add(5*time.Hour))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

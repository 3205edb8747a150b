package walletsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gabapcia/walletsync/internal/classifier"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/trade"
)

type tradeStorageMock struct {
	mock.Mock
}

func (m *tradeStorageMock) ExistingTradeKeys(ctx context.Context, walletID string, keys []trade.Key) ([]trade.Key, error) {
	args := m.Called(ctx, walletID, keys)
	existing, _ := args.Get(0).([]trade.Key)
	return existing, args.Error(1)
}

func (m *tradeStorageMock) InsertTrades(ctx context.Context, walletID string, trades []trade.Trade) (int, error) {
	args := m.Called(ctx, walletID, trades)
	return args.Int(0), args.Error(1)
}

func (m *tradeStorageMock) ListTrades(ctx context.Context, walletID string) ([]trade.Trade, error) {
	args := m.Called(ctx, walletID)
	trades, _ := args.Get(0).([]trade.Trade)
	return trades, args.Error(1)
}

func (m *tradeStorageMock) UpdateTradeValuation(ctx context.Context, walletID string, key trade.Key, v trade.Valuation) error {
	return m.Called(ctx, walletID, key, v).Error(0)
}

func tr(sig, asset string, ts time.Time) trade.Trade {
	return trade.Trade{Signature: sig, Asset: asset, Timestamp: ts}
}

func TestService_persistTrades(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("inserts only the complement of stored keys", func(t *testing.T) {
		ctx := t.Context()
		store := new(tradeStorageMock)
		s := &Service{trades: store}

		a, b, c := tr("s1", "m1", ts), tr("s1", "m2", ts), tr("s2", "m1", ts)

		store.On("ExistingTradeKeys", ctx, "w-1", []trade.Key{a.Key(), b.Key(), c.Key()}).Return([]trade.Key{b.Key()}, nil).Once()
		store.On("InsertTrades", ctx, "w-1", []trade.Trade{a, c}).Return(2, nil).Once()

		written, inserted, err := s.persistTrades(ctx, "w-1", []trade.Trade{a, b, c, a})
		require.NoError(t, err)
		assert.Equal(t, 2, inserted)
		assert.Equal(t, []trade.Trade{a, c}, written)
		store.AssertExpectations(t)
	})

	t.Run("nothing to insert skips the write", func(t *testing.T) {
		ctx := t.Context()
		store := new(tradeStorageMock)
		s := &Service{trades: store}

		a := tr("s1", "m1", ts)
		store.On("ExistingTradeKeys", ctx, "w-1", []trade.Key{a.Key()}).Return([]trade.Key{a.Key()}, nil).Once()

		written, inserted, err := s.persistTrades(ctx, "w-1", []trade.Trade{a})
		require.NoError(t, err)
		assert.Zero(t, inserted)
		assert.Empty(t, written)
		store.AssertNotCalled(t, "InsertTrades", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failures are persistence errors", func(t *testing.T) {
		ctx := t.Context()
		store := new(tradeStorageMock)
		s := &Service{trades: store}
		boom := errors.New("boom")

		a := tr("s1", "m1", ts)
		store.On("ExistingTradeKeys", ctx, "w-1", mock.Anything).Return(nil, nil).Once()
		store.On("InsertTrades", ctx, "w-1", mock.Anything).Return(0, boom).Once()

		_, _, err := s.persistTrades(ctx, "w-1", []trade.Trade{a})
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, boom)

		store.On("ExistingTradeKeys", ctx, "w-2", mock.Anything).Return(nil, boom).Once()
		_, _, err = s.persistTrades(ctx, "w-2", []trade.Trade{a})
		assert.ErrorIs(t, err, ErrPersistence)
	})
}

func TestBatches(t *testing.T) {
	ts := time.Now()
	trades := []trade.Trade{tr("a", "m", ts), tr("b", "m", ts), tr("c", "m", ts), tr("d", "m", ts), tr("e", "m", ts)}

	got := batches(trades, 2)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 2)
	assert.Len(t, got[2], 1)
	assert.Equal(t, "e", got[2][0].Signature)

	assert.Empty(t, batches(nil, 10))
	assert.Len(t, batches(trades, 10), 1)
}

func TestNextWatermark(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	early := start.Add(-2 * time.Hour)
	late := start.Add(-time.Hour)
	observed := []trade.Trade{tr("a", "m", early), tr("b", "m", late)}

	assert.Equal(t, late, nextWatermark(trade.Historical, observed, nil, start, nil))
	assert.Equal(t, start, nextWatermark(trade.Historical, nil, nil, start, nil))
	assert.Equal(t, early, nextWatermark(trade.Incremental, observed, observed[:1], start, nil))
	assert.Equal(t, start, nextWatermark(trade.Incremental, observed, nil, start, nil), "nothing new anchors on the scan start")

	t.Run("fetch failures hold the watermark back", func(t *testing.T) {
		failedAt := early.Add(-time.Minute)
		assert.Equal(t, failedAt, nextWatermark(trade.Historical, observed, nil, start, &failedAt))
		assert.Equal(t, failedAt, nextWatermark(trade.Incremental, observed, nil, start, &failedAt))

		after := late.Add(time.Minute)
		assert.Equal(t, late, nextWatermark(trade.Historical, observed, nil, start, &after), "a later failure does not move the candidate")
	})
}

func TestSkipLog_earliestRetry(t *testing.T) {
	var (
		skips = newSkipLog()
		t1    = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
		t0    = t1.Add(-time.Hour)
	)

	assert.Nil(t, skips.earliestRetry())

	skips.add("sig-a", SkipFetchFailed, &t1)
	skips.add("sig-b", SkipMalformed, &t0)
	skips.add("sig-c", SkipNotFound, &t0)
	require.NotNil(t, skips.earliestRetry())
	assert.Equal(t, t1, *skips.earliestRetry(), "only fetch failures are retried")

	skips.add("sig-d", SkipFetchFailed, &t0)
	skips.add("sig-e", SkipFetchFailed, nil)
	assert.Equal(t, t0, *skips.earliestRetry())
	assert.Len(t, skips.snapshot(), 5)
}

func TestSkipReasonOf(t *testing.T) {
	assert.Equal(t, SkipNotFound, skipReasonOf(ledger.ErrTransactionNotFound))
	assert.Equal(t, SkipMalformed, skipReasonOf(classifier.ErrMalformedTransaction))
	assert.Equal(t, SkipMalformed, skipReasonOf(ledger.ErrMalformedData))
	assert.Equal(t, SkipFetchFailed, skipReasonOf(ledger.ErrTransientUpstream))
}

type fetcherFunc func(ctx context.Context, signature string) (ledger.Transaction, error)

func (f fetcherFunc) GetTransaction(ctx context.Context, signature string) (ledger.Transaction, error) {
	return f(ctx, signature)
}

func TestTxCache(t *testing.T) {
	t.Run("bodies and absences are fetched once", func(t *testing.T) {
		calls := map[string]int{}
		cache := newTxCache(fetcherFunc(func(_ context.Context, sig string) (ledger.Transaction, error) {
			calls[sig]++
			if sig == "gone" {
				return ledger.Transaction{}, ledger.ErrTransactionNotFound
			}
			return ledger.Transaction{Signature: sig}, nil
		}))

		for range 3 {
			tx, err := cache.Transaction(t.Context(), "s1")
			require.NoError(t, err)
			assert.Equal(t, "s1", tx.Signature)

			_, err = cache.Transaction(t.Context(), "gone")
			assert.ErrorIs(t, err, ledger.ErrTransactionNotFound)
		}

		assert.Equal(t, 1, calls["s1"])
		assert.Equal(t, 1, calls["gone"])
		assert.Equal(t, 2, cache.Len())

		cache.forget("s1")
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("transient failures are fetched again", func(t *testing.T) {
		calls := 0
		cache := newTxCache(fetcherFunc(func(context.Context, string) (ledger.Transaction, error) {
			calls++
			if calls == 1 {
				return ledger.Transaction{}, ledger.ErrTransientUpstream
			}
			return ledger.Transaction{Signature: "s1"}, nil
		}))

		_, err := cache.Transaction(t.Context(), "s1")
		assert.ErrorIs(t, err, ledger.ErrTransientUpstream)

		tx, err := cache.Transaction(t.Context(), "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", tx.Signature)
		assert.Equal(t, 2, calls)
	})
}

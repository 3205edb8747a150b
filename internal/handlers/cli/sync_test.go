package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gabapcia/walletsync/internal/trade"
	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

func decode(t *testing.T, out string) map[string]any {
	t.Helper()

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestScanWalletCommand(t *testing.T) {
	watermark := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	result := walletsync.ScanResult{
		TradesFound:  2,
		NewTrades:    1,
		NewWatermark: watermark,
		Report: walletsync.Report{
			RunID:   "run-1",
			Mode:    trade.Historical,
			Skipped: map[string]walletsync.SkipReason{"sig-x": walletsync.SkipNotFound},
		},
	}

	t.Run("should scan the given address and print the result", func(t *testing.T) {
		syncer := NewSyncerMock(t)
		syncer.EXPECT().ScanWallet(mock.Anything, "alice", testAddress).Return(result, nil).Once()

		out, err := runApp(t, syncer, NewRegistryMock(t), "scan", "--wallet-id", "alice", "--address", testAddress)
		require.NoError(t, err)

		got := decode(t, out)
		assert.Equal(t, float64(2), got["trades_found"])
		assert.Equal(t, float64(1), got["new_trades"])
		assert.Equal(t, "2024-03-01T12:00:00Z", got["new_watermark"])

		report := got["report"].(map[string]any)
		assert.Equal(t, "run-1", report["run_id"])
		assert.Equal(t, "historical", report["mode"])
		assert.Equal(t, map[string]any{"not_found": float64(1)}, report["skipped"])
	})

	t.Run("should fall back to the watched address", func(t *testing.T) {
		registry := NewRegistryMock(t)
		registry.EXPECT().Lookup(mock.Anything, "alice").Return(walletregistry.Wallet{ID: "alice", Address: testAddress}, nil).Once()

		syncer := NewSyncerMock(t)
		syncer.EXPECT().ScanWallet(mock.Anything, "alice", testAddress).Return(result, nil).Once()

		_, err := runApp(t, syncer, registry, "scan", "--wallet-id", "alice")
		assert.NoError(t, err)
	})

	t.Run("should fail for unknown wallets without address", func(t *testing.T) {
		registry := NewRegistryMock(t)
		registry.EXPECT().Lookup(mock.Anything, "ghost").Return(walletregistry.Wallet{}, walletregistry.ErrWalletNotFound).Once()

		_, err := runApp(t, NewSyncerMock(t), registry, "scan", "--wallet-id", "ghost")
		assert.ErrorIs(t, err, walletregistry.ErrWalletNotFound)
	})

	t.Run("should surface scan errors", func(t *testing.T) {
		syncer := NewSyncerMock(t)
		syncer.EXPECT().ScanWallet(mock.Anything, "alice", testAddress).Return(walletsync.ScanResult{}, walletsync.ErrScanInProgress).Once()

		_, err := runApp(t, syncer, NewRegistryMock(t), "scan", "--wallet-id", "alice", "--address", testAddress)
		assert.ErrorIs(t, err, walletsync.ErrScanInProgress)
	})
}

func TestRefreshWalletCommand(t *testing.T) {
	syncer := NewSyncerMock(t)
	syncer.EXPECT().RefreshWallet(mock.Anything, "alice", testAddress).
		Return(walletsync.RefreshResult{NewTradesCount: 4, Report: walletsync.Report{Mode: trade.Incremental}}, nil).Once()

	out, err := runApp(t, syncer, NewRegistryMock(t), "refresh", "--wallet-id", "alice", "--address", testAddress)
	require.NoError(t, err)

	got := decode(t, out)
	assert.Equal(t, float64(4), got["new_trades"])
	assert.Equal(t, "incremental", got["report"].(map[string]any)["mode"])
}

func TestWalletStatusCommand(t *testing.T) {
	t.Run("should print the state", func(t *testing.T) {
		watermark := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		syncer := NewSyncerMock(t)
		syncer.EXPECT().SyncState(mock.Anything, "alice").Return(trade.SyncState{
			WalletID:            "alice",
			Address:             testAddress,
			InitialScanComplete: true,
			Watermark:           &watermark,
		}, nil).Once()

		out, err := runApp(t, syncer, NewRegistryMock(t), "status", "--wallet-id", "alice")
		require.NoError(t, err)

		got := decode(t, out)
		assert.Equal(t, testAddress, got["address"])
		assert.Equal(t, "incremental", got["next_mode"])
		assert.Equal(t, "2024-03-01T12:00:00Z", got["watermark"])
	})

	t.Run("should report never scanned wallets", func(t *testing.T) {
		syncer := NewSyncerMock(t)
		syncer.EXPECT().SyncState(mock.Anything, "new").Return(trade.SyncState{}, walletsync.ErrNoSyncState).Once()

		_, err := runApp(t, syncer, NewRegistryMock(t), "status", "--wallet-id", "new")
		assert.ErrorIs(t, err, walletsync.ErrNoSyncState)
	})
}

func TestRevalueWalletCommand(t *testing.T) {
	syncer := NewSyncerMock(t)
	syncer.EXPECT().RevalueWallet(mock.Anything, "alice").Return(walletsync.RevalueResult{Checked: 5, Updated: 2}, nil).Once()

	out, err := runApp(t, syncer, NewRegistryMock(t), "revalue", "--wallet-id", "alice")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"checked": float64(5), "updated": float64(2)}, decode(t, out))
}

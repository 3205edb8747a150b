package walletsync

import (
	"context"
	"errors"
	"time"

	"github.com/gabapcia/walletsync/internal/trade"
)

// ErrNoSyncState is returned by SyncStateStorage when a wallet was never scanned.
var ErrNoSyncState = errors.New("no sync state")

// ErrTradeNotFound is returned by TradeStorage when updating a trade that is not stored.
var ErrTradeNotFound = errors.New("trade not found")

// TradeStorage persists classified trades of a wallet.
//
// Trades are unique per (signature, asset). InsertTrades must skip rows whose
// key already exists instead of failing, so concurrent scans stay harmless.
type TradeStorage interface {
	// ExistingTradeKeys returns which of keys are already stored for the wallet.
	ExistingTradeKeys(ctx context.Context, walletID string, keys []trade.Key) ([]trade.Key, error)

	// InsertTrades inserts trades that are not stored yet and returns how many rows were written.
	InsertTrades(ctx context.Context, walletID string, trades []trade.Trade) (int, error)

	// ListTrades returns every stored trade of the wallet, oldest first.
	ListTrades(ctx context.Context, walletID string) ([]trade.Trade, error)

	// UpdateTradeValuation overwrites the valuation fields of one trade.
	UpdateTradeValuation(ctx context.Context, walletID string, key trade.Key, v trade.Valuation) error
}

// SyncStateStorage persists the per-wallet synchronization state.
type SyncStateStorage interface {
	// LoadSyncState returns the wallet's state, or ErrNoSyncState.
	LoadSyncState(ctx context.Context, walletID string) (trade.SyncState, error)

	// SaveSyncState stores state. Implementations never lower a stored watermark.
	SaveSyncState(ctx context.Context, state trade.SyncState) error
}

// ScanGuard provides mutual exclusion between scans of the same wallet across
// processes. The token identifies the holder so only it can release the claim.
//
// Claims expire after ttl so a crashed process cannot block a wallet forever.
// A running scan keeps its claim alive with ExtendScan, which reports false
// once the claim is no longer held by token.
type ScanGuard interface {
	AcquireScan(ctx context.Context, walletID, token string, ttl time.Duration) (bool, error)
	ExtendScan(ctx context.Context, walletID, token string, ttl time.Duration) (bool, error)
	ReleaseScan(ctx context.Context, walletID, token string) error
}

// nopScanGuard is used when scans only need in-process exclusion.
type nopScanGuard struct{}

var _ ScanGuard = nopScanGuard{}

func (nopScanGuard) AcquireScan(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (nopScanGuard) ExtendScan(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (nopScanGuard) ReleaseScan(context.Context, string, string) error {
	return nil
}

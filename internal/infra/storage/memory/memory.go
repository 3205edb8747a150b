// Package memory provides process-local implementations of the sync engine's
// storage contracts. It backs tests and single-shot CLI runs.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gabapcia/walletsync/internal/trade"
	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

// Store keeps trades, sync states and tracked wallets in memory.
type Store struct {
	mu      sync.RWMutex
	trades  map[string]map[trade.Key]trade.Trade // wallet id -> trades
	states  map[string]trade.SyncState
	wallets map[string]walletregistry.Wallet
}

var (
	_ walletsync.TradeStorage      = (*Store)(nil)
	_ walletsync.SyncStateStorage  = (*Store)(nil)
	_ walletregistry.WalletStorage = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		trades:  make(map[string]map[trade.Key]trade.Trade),
		states:  make(map[string]trade.SyncState),
		wallets: make(map[string]walletregistry.Wallet),
	}
}

// ExistingTradeKeys implements walletsync.TradeStorage.
func (s *Store) ExistingTradeKeys(_ context.Context, walletID string, keys []trade.Key) ([]trade.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.trades[walletID]
	existing := make([]trade.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := stored[k]; ok {
			existing = append(existing, k)
		}
	}

	return existing, nil
}

// InsertTrades stores trades whose key is absent and skips the rest.
func (s *Store) InsertTrades(_ context.Context, walletID string, trades []trade.Trade) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.trades[walletID]
	if !ok {
		stored = make(map[trade.Key]trade.Trade)
		s.trades[walletID] = stored
	}

	inserted := 0
	for _, t := range trades {
		if _, ok := stored[t.Key()]; ok {
			continue
		}
		stored[t.Key()] = t
		inserted++
	}

	return inserted, nil
}

// ListTrades implements walletsync.TradeStorage. Trades come back ascending.
func (s *Store) ListTrades(_ context.Context, walletID string) ([]trade.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]trade.Trade, 0, len(s.trades[walletID]))
	for _, t := range s.trades[walletID] {
		out = append(out, t)
	}

	trade.SortAscending(out)
	return out, nil
}

// UpdateTradeValuation implements walletsync.TradeStorage.
func (s *Store) UpdateTradeValuation(_ context.Context, walletID string, key trade.Key, v trade.Valuation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[walletID][key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", walletsync.ErrTradeNotFound, key.Signature, key.Asset)
	}

	t.Valuation = v
	s.trades[walletID][key] = t
	return nil
}

// LoadSyncState implements walletsync.SyncStateStorage.
func (s *Store) LoadSyncState(_ context.Context, walletID string) (trade.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[walletID]
	if !ok {
		return trade.SyncState{}, walletsync.ErrNoSyncState
	}

	return state, nil
}

// SaveSyncState stores state, keeping the stored watermark when it is later.
func (s *Store) SaveSyncState(_ context.Context, state trade.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.states[state.WalletID]; ok && prev.Watermark != nil {
		if state.Watermark == nil || prev.Watermark.After(*state.Watermark) {
			state.Watermark = prev.Watermark
		}
		state.InitialScanComplete = state.InitialScanComplete || prev.InitialScanComplete
	}

	s.states[state.WalletID] = state
	return nil
}

// RegisterWallet implements walletregistry.WalletStorage.
func (s *Store) RegisterWallet(_ context.Context, w walletregistry.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.wallets[w.ID]; ok && prev.Address != w.Address {
		return walletregistry.ErrWalletAlreadyRegistered
	}

	s.wallets[w.ID] = w
	return nil
}

// UnregisterWallet implements walletregistry.WalletStorage.
func (s *Store) UnregisterWallet(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[walletID]; !ok {
		return walletregistry.ErrWalletNotFound
	}

	delete(s.wallets, walletID)
	return nil
}

// GetWallet implements walletregistry.WalletStorage.
func (s *Store) GetWallet(_ context.Context, walletID string) (walletregistry.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return walletregistry.Wallet{}, walletregistry.ErrWalletNotFound
	}

	return w, nil
}

// ListWallets implements walletregistry.WalletStorage. Wallets come back ordered by id.
func (s *Store) ListWallets(_ context.Context) ([]walletregistry.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]walletregistry.Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}

	slices.SortFunc(out, func(a, b walletregistry.Wallet) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

package walletregistry

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/gabapcia/walletsync/internal/pkg/validator"
)

var (
	// ErrWalletAlreadyRegistered is returned when the id is bound to another address.
	ErrWalletAlreadyRegistered = errors.New("wallet already registered")

	// ErrWalletNotFound is returned when no wallet is registered under the id.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Wallet is a tracked wallet.
type Wallet struct {
	ID      string `validate:"required,max=128"`
	Address string `validate:"required,solana_address"`
}

// WalletStorage defines the persistence interface for tracked wallets.
type WalletStorage interface {
	// RegisterWallet stores w. It must be idempotent for an identical wallet
	// and return ErrWalletAlreadyRegistered when the id holds another address.
	RegisterWallet(ctx context.Context, w Wallet) error

	// UnregisterWallet removes the wallet, or returns ErrWalletNotFound.
	UnregisterWallet(ctx context.Context, walletID string) error

	// GetWallet returns the wallet registered under walletID, or ErrWalletNotFound.
	GetWallet(ctx context.Context, walletID string) (Wallet, error)

	// ListWallets returns every registered wallet in no particular order.
	ListWallets(ctx context.Context) ([]Wallet, error)
}

// buildWallet constructs and validates a Wallet.
func buildWallet(walletID, address string) (Wallet, error) {
	w := Wallet{
		ID:      walletID,
		Address: address,
	}

	return w, validator.Validate(w)
}

// validateWalletID checks an id on its own, for operations that take no address.
func validateWalletID(walletID string) error {
	return validator.Var(walletID, "required,max=128")
}

// StartWatching validates the wallet and persists it.
func (s *service) StartWatching(ctx context.Context, walletID, address string) error {
	w, err := buildWallet(walletID, address)
	if err != nil {
		return err
	}

	return s.walletStorage.RegisterWallet(ctx, w)
}

// StopWatching validates the id and removes the wallet.
func (s *service) StopWatching(ctx context.Context, walletID string) error {
	if err := validateWalletID(walletID); err != nil {
		return err
	}

	return s.walletStorage.UnregisterWallet(ctx, walletID)
}

func (s *service) Lookup(ctx context.Context, walletID string) (Wallet, error) {
	if err := validateWalletID(walletID); err != nil {
		return Wallet{}, err
	}

	return s.walletStorage.GetWallet(ctx, walletID)
}

func (s *service) Watched(ctx context.Context) ([]Wallet, error) {
	wallets, err := s.walletStorage.ListWallets(ctx)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(wallets, func(a, b Wallet) int {
		return strings.Compare(a.ID, b.ID)
	})
	return wallets, nil
}

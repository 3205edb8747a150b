// Package walletregistry keeps the set of wallets tracked for periodic
// synchronization. A wallet is identified by an opaque id chosen by the
// caller and bound to one ledger address.
package walletregistry

import "context"

// Service defines the interface for registering and unregistering
// wallets that are kept in sync by the scheduler.
//
// Implementations are responsible for validating input and delegating
// persistence to the configured WalletStorage.
type Service interface {
	// StartWatching registers a wallet for periodic synchronization.
	//
	// Registering the same id with the same address again is a no-op; registering
	// it with another address returns ErrWalletAlreadyRegistered.
	StartWatching(ctx context.Context, walletID, address string) error

	// StopWatching unregisters a wallet. Returns ErrWalletNotFound when the id is unknown.
	StopWatching(ctx context.Context, walletID string) error

	// Lookup returns the wallet registered under walletID, or ErrWalletNotFound.
	Lookup(ctx context.Context, walletID string) (Wallet, error)

	// Watched returns every registered wallet ordered by id.
	Watched(ctx context.Context) ([]Wallet, error)
}

// service is the concrete implementation of the Service interface.
// It uses a WalletStorage backend to persist registered wallets.
type service struct {
	walletStorage WalletStorage
}

// Ensure compile-time compliance with the Service interface.
var _ Service = (*service)(nil)

// New creates a new instance of the walletregistry service using the
// provided WalletStorage implementation.
func New(ws WalletStorage) *service {
	return &service{
		walletStorage: ws,
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gabapcia/walletsync/internal/walletregistry"
)

// RegisterWallet implements walletregistry.WalletStorage.
func (s *Store) RegisterWallet(ctx context.Context, w walletregistry.Wallet) error {
	var stored string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO wallets (wallet_id, address)
		VALUES ($1, $2)
		ON CONFLICT (wallet_id) DO UPDATE SET wallet_id = EXCLUDED.wallet_id
		RETURNING address
	`, w.ID, w.Address).Scan(&stored)
	if err != nil {
		return fmt.Errorf("register wallet: %w", err)
	}

	if stored != w.Address {
		return walletregistry.ErrWalletAlreadyRegistered
	}

	return nil
}

// UnregisterWallet implements walletregistry.WalletStorage.
func (s *Store) UnregisterWallet(ctx context.Context, walletID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM wallets WHERE wallet_id = $1`, walletID)
	if err != nil {
		return fmt.Errorf("unregister wallet: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return walletregistry.ErrWalletNotFound
	}

	return nil
}

// GetWallet implements walletregistry.WalletStorage.
func (s *Store) GetWallet(ctx context.Context, walletID string) (walletregistry.Wallet, error) {
	w := walletregistry.Wallet{ID: walletID}

	err := s.pool.QueryRow(ctx, `SELECT address FROM wallets WHERE wallet_id = $1`, walletID).Scan(&w.Address)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return walletregistry.Wallet{}, walletregistry.ErrWalletNotFound
		}
		return walletregistry.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}

// ListWallets implements walletregistry.WalletStorage.
func (s *Store) ListWallets(ctx context.Context) ([]walletregistry.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT wallet_id, address FROM wallets ORDER BY wallet_id`)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}

	wallets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (walletregistry.Wallet, error) {
		var w walletregistry.Wallet
		err := row.Scan(&w.ID, &w.Address)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan wallets: %w", err)
	}

	return wallets, nil
}

package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gabapcia/walletsync/internal/walletregistry"
)

// walletStoragePrefix defines the base key prefix used for tracked wallets.
const walletStoragePrefix = "wallet"

// walletStorageKey is the hash mapping wallet ids to addresses.
//
// Format: "wallet:registry"
func walletStorageKey() string {
	return fmt.Sprintf("%s:registry", walletStoragePrefix)
}

// RegisterWallet implements walletregistry.WalletStorage. HSETNX keeps the
// first address bound to an id; re-registering it is a no-op.
func (c *client) RegisterWallet(ctx context.Context, w walletregistry.Wallet) error {
	key := walletStorageKey()

	created, err := c.conn.HSetNX(ctx, key, w.ID, w.Address).Result()
	if err != nil {
		return err
	}

	if created {
		return nil
	}

	stored, err := c.conn.HGet(ctx, key, w.ID).Result()
	if err != nil {
		return err
	}

	if stored != w.Address {
		return walletregistry.ErrWalletAlreadyRegistered
	}

	return nil
}

// UnregisterWallet implements walletregistry.WalletStorage.
func (c *client) UnregisterWallet(ctx context.Context, walletID string) error {
	removed, err := c.conn.HDel(ctx, walletStorageKey(), walletID).Result()
	if err != nil {
		return err
	}

	if removed == 0 {
		return walletregistry.ErrWalletNotFound
	}

	return nil
}

// GetWallet implements walletregistry.WalletStorage.
func (c *client) GetWallet(ctx context.Context, walletID string) (walletregistry.Wallet, error) {
	address, err := c.conn.HGet(ctx, walletStorageKey(), walletID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = walletregistry.ErrWalletNotFound
		}
		return walletregistry.Wallet{}, err
	}

	return walletregistry.Wallet{ID: walletID, Address: address}, nil
}

// ListWallets implements walletregistry.WalletStorage.
func (c *client) ListWallets(ctx context.Context) ([]walletregistry.Wallet, error) {
	entries, err := c.conn.HGetAll(ctx, walletStorageKey()).Result()
	if err != nil {
		return nil, err
	}

	wallets := make([]walletregistry.Wallet, 0, len(entries))
	for id, address := range entries {
		wallets = append(wallets, walletregistry.Wallet{ID: id, Address: address})
	}

	return wallets, nil
}

var _ walletregistry.WalletStorage = new(client)

package cli

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/gabapcia/walletsync/internal/walletregistry"
)

func walletIDFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "wallet-id",
		Usage:    "Caller-chosen wallet identifier",
		Required: true,
	}
}

// startWatchingWalletCommand returns a CLI command that registers a wallet
// for periodic synchronization by the daemon.
//
// Usage example:
//
//	walletsync watch --wallet-id alice --address 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM
func startWatchingWalletCommand(wr walletregistry.Service) *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Description: "Register a wallet to be refreshed periodically.",
		Usage:       "Registers a wallet for watching. Must provide both wallet id and address.",
		Flags: []cli.Flag{
			walletIDFlag(),
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Wallet address to start watching",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var (
				walletID = c.String("wallet-id")
				address  = c.String("address")
			)

			return wr.StartWatching(ctx, walletID, address)
		},
	}
}

// stopWatchingWalletCommand returns a CLI command that unregisters a wallet.
//
// Usage example:
//
//	walletsync unwatch --wallet-id alice
func stopWatchingWalletCommand(wr walletregistry.Service) *cli.Command {
	return &cli.Command{
		Name:        "unwatch",
		Description: "Unregister a wallet from periodic refreshes.",
		Usage:       "Stops watching a wallet. Must provide the wallet id.",
		Flags: []cli.Flag{
			walletIDFlag(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return wr.StopWatching(ctx, c.String("wallet-id"))
		},
	}
}

package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/gabapcia/walletsync/internal/syncscheduler"
	"github.com/gabapcia/walletsync/internal/trade"
	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

// WalletSyncer is the synchronization surface driven by the CLI.
type WalletSyncer interface {
	ScanWallet(ctx context.Context, walletID, address string) (walletsync.ScanResult, error)
	RefreshWallet(ctx context.Context, walletID, address string) (walletsync.RefreshResult, error)
	SyncState(ctx context.Context, walletID string) (trade.SyncState, error)
	RevalueWallet(ctx context.Context, walletID string) (walletsync.RevalueResult, error)
}

// Run initializes and executes the walletsync CLI application.
//
// It registers all available commands:
//
//   - `scan`: Runs a full historical scan of a wallet.
//   - `refresh`: Ingests trades newer than the wallet's watermark.
//   - `status`: Prints the wallet's sync state.
//   - `revalue`: Recomputes placeholder valuations.
//   - `watch` / `unwatch`: Manage the wallets refreshed by the daemon.
//   - `daemon`: Refreshes every watched wallet on a schedule.
func Run(ctx context.Context, ws WalletSyncer, wr walletregistry.Service, sched syncscheduler.Service) error {
	return newApp(ws, wr, sched).Run(ctx, os.Args)
}

func newApp(ws WalletSyncer, wr walletregistry.Service, sched syncscheduler.Service) *cli.Command {
	return &cli.Command{
		EnableShellCompletion: true,
		Name:                  "walletsync",
		Description:           "Discovers and synchronizes the trades of Solana wallets.",
		Usage:                 "walletsync [command] [flags]",
		Commands: []*cli.Command{
			scanWalletCommand(ws, wr),
			refreshWalletCommand(ws, wr),
			walletStatusCommand(ws),
			revalueWalletCommand(ws),
			startWatchingWalletCommand(wr),
			stopWatchingWalletCommand(wr),
			daemonCommand(sched),
		},
	}
}

// writeJSON renders v as indented JSON on the command's writer.
func writeJSON(c *cli.Command, v any) error {
	var w io.Writer = os.Stdout
	if root := c.Root(); root != nil && root.Writer != nil {
		w = root.Writer
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

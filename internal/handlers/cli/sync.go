package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

func addressFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "address",
		Usage: "Wallet address; defaults to the address the wallet id is watched with",
	}
}

// resolveAddress returns the --address flag or, when absent, the address the
// wallet is registered with.
func resolveAddress(ctx context.Context, wr walletregistry.Service, c *cli.Command) (string, error) {
	if address := c.String("address"); address != "" {
		return address, nil
	}

	w, err := wr.Lookup(ctx, c.String("wallet-id"))
	if err != nil {
		return "", fmt.Errorf("no --address given and the wallet is not watched: %w", err)
	}

	return w.Address, nil
}

// reportView is the printed summary of a scan report.
type reportView struct {
	RunID      string                        `json:"run_id"`
	Mode       string                        `json:"mode"`
	Rounds     int                           `json:"rounds"`
	Accounts   int                           `json:"accounts"`
	Signatures int                           `json:"signatures"`
	Classified int                           `json:"classified"`
	Trades     int                           `json:"trades"`
	Inserted   int                           `json:"inserted"`
	Skipped    map[walletsync.SkipReason]int `json:"skipped,omitempty"`
	Duration   string                        `json:"duration"`
}

func newReportView(r walletsync.Report) reportView {
	return reportView{
		RunID:      r.RunID,
		Mode:       string(r.Mode),
		Rounds:     r.Rounds,
		Accounts:   r.Accounts,
		Signatures: r.Signatures,
		Classified: r.Classified,
		Trades:     r.Trades,
		Inserted:   r.Inserted,
		Skipped:    r.SkipCounts(),
		Duration:   r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	}
}

// scanWalletCommand returns a CLI command running a full historical scan.
//
// Usage example:
//
//	walletsync scan --wallet-id alice --address 9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM
func scanWalletCommand(ws WalletSyncer, wr walletregistry.Service) *cli.Command {
	return &cli.Command{
		Name:        "scan",
		Description: "Discover and persist every trade of a wallet.",
		Usage:       "Runs a historical scan and advances the wallet's watermark.",
		Flags:       []cli.Flag{walletIDFlag(), addressFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := resolveAddress(ctx, wr, c)
			if err != nil {
				return err
			}

			result, err := ws.ScanWallet(ctx, c.String("wallet-id"), address)
			if err != nil {
				return err
			}

			return writeJSON(c, map[string]any{
				"trades_found":  result.TradesFound,
				"new_trades":    result.NewTrades,
				"new_watermark": result.NewWatermark,
				"report":        newReportView(result.Report),
			})
		},
	}
}

// refreshWalletCommand returns a CLI command ingesting trades newer than the
// wallet's watermark.
//
// Usage example:
//
//	walletsync refresh --wallet-id alice
func refreshWalletCommand(ws WalletSyncer, wr walletregistry.Service) *cli.Command {
	return &cli.Command{
		Name:        "refresh",
		Description: "Ingest the trades of a wallet since its last sync.",
		Usage:       "Runs an incremental scan; wallets never scanned get a historical one.",
		Flags:       []cli.Flag{walletIDFlag(), addressFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := resolveAddress(ctx, wr, c)
			if err != nil {
				return err
			}

			result, err := ws.RefreshWallet(ctx, c.String("wallet-id"), address)
			if err != nil {
				return err
			}

			return writeJSON(c, map[string]any{
				"new_trades":    result.NewTradesCount,
				"new_watermark": result.NewWatermark,
				"report":        newReportView(result.Report),
			})
		},
	}
}

// walletStatusCommand returns a CLI command printing a wallet's sync state.
func walletStatusCommand(ws WalletSyncer) *cli.Command {
	return &cli.Command{
		Name:        "status",
		Description: "Show the synchronization state of a wallet.",
		Usage:       "Prints the scan mode and watermark of a wallet.",
		Flags:       []cli.Flag{walletIDFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			state, err := ws.SyncState(ctx, c.String("wallet-id"))
			if err != nil {
				return err
			}

			return writeJSON(c, map[string]any{
				"wallet_id":             state.WalletID,
				"address":               state.Address,
				"initial_scan_complete": state.InitialScanComplete,
				"next_mode":             state.Mode(),
				"watermark":             state.Watermark,
				"updated_at":            state.UpdatedAt,
			})
		},
	}
}

// revalueWalletCommand returns a CLI command that retries valuation of trades
// stored with placeholder prices.
func revalueWalletCommand(ws WalletSyncer) *cli.Command {
	return &cli.Command{
		Name:        "revalue",
		Description: "Recompute the valuation of trades stored without prices.",
		Usage:       "Revalues placeholder trades from current price data.",
		Flags:       []cli.Flag{walletIDFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			result, err := ws.RevalueWallet(ctx, c.String("wallet-id"))
			if err != nil {
				return err
			}

			return writeJSON(c, map[string]any{
				"checked": result.Checked,
				"updated": result.Updated,
			})
		},
	}
}

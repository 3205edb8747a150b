package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/gabapcia/walletsync/internal/syncscheduler"
)

// daemonCommand returns a CLI command that starts the refresh scheduler.
//
// Usage example:
//
//	walletsync daemon
//
// The process runs until it receives an interrupt (SIGINT or SIGTERM) or its
// context is canceled.
func daemonCommand(sched syncscheduler.Service) *cli.Command {
	return &cli.Command{
		Name:        "daemon",
		Description: "Periodically refreshes every watched wallet.",
		Usage:       "Runs the refresh scheduler. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Close()

			select {
			case <-quit:
			case <-ctx.Done():
			}
			return nil
		},
	}
}

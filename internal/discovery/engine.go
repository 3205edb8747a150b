// Package discovery finds every ledger address associated with a wallet: the
// wallet itself, the token accounts it owns today and, through the frontier,
// token accounts that only appear inside historical transaction bodies
// (closed or reopened accounts).
package discovery

import (
	"context"
	"fmt"

	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
)

// AccountLister lists the token accounts currently owned by an address.
type AccountLister interface {
	ListOwnedAccounts(ctx context.Context, owner string) ([]ledger.OwnedAccount, error)
}

type failureHandler func(ctx context.Context, account Account, err error)

// Engine explores a Frontier until it is exhausted.
type Engine struct {
	lister    AccountLister
	onFailure failureHandler
}

type config struct {
	onFailure failureHandler
}

// Option configures an Engine.
type Option func(*config)

// WithFailureHandler replaces the handler called when a non-root address
// cannot be listed. The default logs a warning.
func WithFailureHandler(fn func(ctx context.Context, account Account, err error)) Option {
	return func(c *config) {
		if fn != nil {
			c.onFailure = fn
		}
	}
}

// New returns an Engine listing accounts through lister.
func New(lister AccountLister, opts ...Option) *Engine {
	cfg := config{
		onFailure: defaultOnFailure,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		lister:    lister,
		onFailure: cfg.onFailure,
	}
}

func defaultOnFailure(ctx context.Context, account Account, err error) {
	logger.Warn(ctx, "account exploration skipped",
		"account.address", account.Address,
		"account.mint", account.Mint,
		"error", err,
	)
}

// Explore dequeues addresses until the frontier is empty and adds every token
// account they own. It returns how many new accounts were added.
//
// Failing to list the wallet address itself aborts exploration; failures on
// any other address are reported to the failure handler and skipped.
func (e *Engine) Explore(ctx context.Context, frontier *Frontier) (int, error) {
	added := 0

	for {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		account, ok := frontier.next()
		if !ok {
			return added, nil
		}

		owned, err := e.lister.ListOwnedAccounts(ctx, account.Address)
		if err != nil {
			if account.Address == frontier.Root() {
				return added, fmt.Errorf("list accounts owned by %s: %w", account.Address, err)
			}

			e.onFailure(ctx, account, err)
			continue
		}

		for _, o := range owned {
			if frontier.Add(o.Address, o.Mint) {
				added++
			}
		}
	}
}

// Package syncscheduler periodically refreshes every tracked wallet.
//
// Ticks are driven by a cron schedule. Each tick lists the registry's
// wallets and refreshes them through a bounded worker pool; a tick that is
// still running when the next one fires is skipped, and wallets whose scan is
// already in progress elsewhere are skipped without being counted as failures.
package syncscheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/robfig/cron/v3"

	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

// ErrServiceAlreadyStarted is returned by Start when the scheduler is running.
var ErrServiceAlreadyStarted = errors.New("service already started")

// Refresher runs an incremental refresh of one wallet.
type Refresher interface {
	RefreshWallet(ctx context.Context, walletID, address string) (walletsync.RefreshResult, error)
}

// WalletSource lists the wallets to refresh.
type WalletSource interface {
	Watched(ctx context.Context) ([]walletregistry.Wallet, error)
}

// Service controls the scheduler lifecycle.
type Service interface {
	// Start registers the schedule and begins ticking until ctx is done or
	// Close is called.
	Start(ctx context.Context) error

	// Close stops scheduling and waits for the running tick to finish.
	Close()
}

// Summary is the outcome of one tick.
type Summary struct {
	Wallets   int
	Refreshed int
	Skipped   int
	Failed    int
	NewTrades int
}

type config struct {
	spec       string
	workers    int
	runOnStart bool
}

// Option configures the scheduler.
type Option func(*config)

// WithSchedule sets the cron expression. Standard five-field expressions and
// descriptors such as "@every 5m" are accepted. Default: "@every 5m".
func WithSchedule(spec string) Option {
	return func(c *config) {
		if spec != "" {
			c.spec = spec
		}
	}
}

// WithConcurrency bounds how many wallets are refreshed at once. Default: 4.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithRunOnStart runs a tick as soon as the scheduler starts.
func WithRunOnStart(b bool) Option {
	return func(c *config) {
		c.runOnStart = b
	}
}

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc func()

	refresher Refresher
	wallets   WalletSource
	cfg       config
}

var _ Service = (*service)(nil)

// New returns a scheduler refreshing the wallets of source through refresher.
func New(refresher Refresher, source WalletSource, opts ...Option) *service {
	cfg := config{
		spec:    "@every 5m",
		workers: 4,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &service{
		refresher: refresher,
		wallets:   source,
		cfg:       cfg,
	}
}

// Start implements Service.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(s.cfg.spec, func() { s.RunOnce(ctx) })
	if err != nil {
		cancel()
		return err
	}

	// the first tick goes through the wrapped job so a scheduled tick firing
	// meanwhile is skipped
	var initial sync.WaitGroup
	if s.cfg.runOnStart {
		initial.Add(1)
		go func() {
			defer initial.Done()
			c.Entry(id).WrappedJob.Run()
		}()
	}

	c.Start()
	logger.Info(ctx, "sync scheduler started", "scheduler.spec", s.cfg.spec, "scheduler.workers", s.cfg.workers)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-c.Stop().Done()
			initial.Wait()
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	s.closeFunc = stop
	s.isStarted = true
	return nil
}

// Close implements Service.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isStarted {
		return
	}

	s.closeFunc()
	s.isStarted = false
}

// RunOnce refreshes every tracked wallet once and returns what happened.
func (s *service) RunOnce(ctx context.Context) Summary {
	wallets, err := s.wallets.Watched(ctx)
	if err != nil {
		logger.Error(ctx, "list tracked wallets failed", "error", err)
		return Summary{}
	}

	var refreshed, skipped, failed, newTrades atomic.Int64

	pool := pond.NewPool(s.cfg.workers)
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, w := range wallets {
		group.Submit(func() {
			wctx := logger.Derive(groupCtx, "wallet.id", w.ID)

			result, err := s.refresher.RefreshWallet(wctx, w.ID, w.Address)
			switch {
			case errors.Is(err, walletsync.ErrScanInProgress):
				skipped.Add(1)
				logger.Debug(wctx, "wallet skipped, scan in progress")
			case err != nil:
				failed.Add(1)
				logger.Warn(wctx, "wallet refresh failed", "error", err)
			default:
				refreshed.Add(1)
				newTrades.Add(int64(result.NewTradesCount))
			}
		})
	}

	_ = group.Wait()

	summary := Summary{
		Wallets:   len(wallets),
		Refreshed: int(refreshed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		NewTrades: int(newTrades.Load()),
	}

	logger.Info(ctx, "sync tick finished",
		"scheduler.wallets", summary.Wallets,
		"scheduler.refreshed", summary.Refreshed,
		"scheduler.skipped", summary.Skipped,
		"scheduler.failed", summary.Failed,
		"scheduler.new_trades", summary.NewTrades,
	)

	return summary
}

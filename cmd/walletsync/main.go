// Command walletsync discovers and synchronizes the trades of Solana wallets.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"

	"github.com/gabapcia/walletsync/internal/classifier"
	"github.com/gabapcia/walletsync/internal/config"
	"github.com/gabapcia/walletsync/internal/handlers/cli"
	"github.com/gabapcia/walletsync/internal/infra/ledger/solana"
	"github.com/gabapcia/walletsync/internal/infra/pricing/birdeye"
	"github.com/gabapcia/walletsync/internal/infra/storage/memory"
	"github.com/gabapcia/walletsync/internal/infra/storage/postgres"
	"github.com/gabapcia/walletsync/internal/infra/storage/redis"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/ratelimit"
	"github.com/gabapcia/walletsync/internal/pkg/resilience/retry"
	"github.com/gabapcia/walletsync/internal/pkg/telemetry"
	httptransport "github.com/gabapcia/walletsync/internal/pkg/transport/http"
	"github.com/gabapcia/walletsync/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/walletsync/internal/pricing"
	"github.com/gabapcia/walletsync/internal/sigcollect"
	"github.com/gabapcia/walletsync/internal/syncscheduler"
	"github.com/gabapcia/walletsync/internal/walletregistry"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

// stores groups the persistence backends selected by configuration.
type stores struct {
	trades  walletsync.TradeStorage
	states  walletsync.SyncStateStorage
	wallets walletregistry.WalletStorage
	guard   walletsync.ScanGuard
	assets  pricing.AssetCache
	close   []func()
}

func (s *stores) Close() {
	for i := len(s.close) - 1; i >= 0; i-- {
		s.close[i]()
	}
}

// openStores picks PostgreSQL for trades and state when a DSN is set, and
// Redis for the scan guard, asset cache and registry when an address is set.
// Whatever is not configured lives in process memory.
func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	mem := memory.New()
	s := &stores{trades: mem, states: mem, wallets: mem}

	if cfg.Postgres.DSN != "" {
		pg, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		s.close = append(s.close, pg.Close)

		if err := pg.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}

		s.trades, s.states, s.wallets = pg, pg, pg
	}

	if cfg.Redis.Addr != "" {
		rc, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.close = append(s.close, func() { _ = rc.Close() })

		s.guard, s.assets, s.wallets = rc, rc, rc
	}

	return s, nil
}

func newLedgerClient(cfg config.RPC) ledger.Client {
	httpClient := httptransport.NewClient(
		httptransport.WithTimeout(cfg.Timeout),
		httptransport.WithRetryMax(0),
	).StandardClient()

	conn := jsonrpc.NewClient(cfg.Endpoint, jsonrpc.WithHTTPClient(httpClient))

	return solana.NewClient(conn,
		solana.WithLimiter(ratelimit.New(cfg.RequestsPerWin, cfg.Window)),
		solana.WithRetry(cfg.RetryAttempts, cfg.RetryDelay, cfg.RetryMaxDelay),
		solana.WithCommitment(cfg.Commitment),
		solana.WithCallTimeout(cfg.Timeout),
	)
}

func newPricingGateway(cfg config.Pricing, cache pricing.AssetCache) *pricing.Gateway {
	provider := birdeye.NewClient(cfg.APIKey,
		birdeye.WithBaseURL(cfg.BaseURL),
		birdeye.WithLookupWindow(cfg.LookupWindow),
	)

	return pricing.New(provider,
		pricing.WithAssetCache(cache),
		pricing.WithLimiter(ratelimit.New(cfg.RequestsPerWin, cfg.Window)),
		pricing.WithRetry(retry.New(
			retry.WithAttempts(3),
			retry.WithDelay(500*time.Millisecond),
			retry.WithRetryIf(pricing.IsTransient),
		)),
		pricing.WithPriceBucket(cfg.PriceBucket),
	)
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName,
		telemetry.WithEnabled(cfg.Telemetry.Enabled),
		telemetry.WithSampleRatio(cfg.Telemetry.SampleRatio),
	)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn(ctx, "telemetry shutdown failed", "error", err)
		}
	}()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cls := classifier.New(newPricingGateway(cfg.Pricing, st.assets),
		classifier.WithDustThreshold(cfg.Scan.Dust()),
		classifier.WithMinNativeMovement(cfg.Scan.MinNative()),
	)

	opts := []walletsync.Option{
		walletsync.WithFetchWorkers(cfg.Scan.FetchWorkers),
		walletsync.WithPersistBatchSize(cfg.Scan.PersistBatchSize),
		walletsync.WithHistoricalLookback(cfg.Scan.HistoricalLookback),
		walletsync.WithCollectorOptions(
			sigcollect.WithPageSize(cfg.Scan.PageSize),
			sigcollect.WithMaxPages(cfg.Scan.MaxPages),
			sigcollect.WithWorkers(cfg.Scan.AccountWorkers),
		),
		walletsync.WithTracerProvider(otel.GetTracerProvider()),
		walletsync.WithMeterProvider(otel.GetMeterProvider()),
	}
	if st.guard != nil {
		opts = append(opts, walletsync.WithScanGuard(st.guard, cfg.Redis.LockTTL))
	}

	svc := walletsync.New(newLedgerClient(cfg.RPC), cls, st.trades, st.states, opts...)
	registry := walletregistry.New(st.wallets)
	scheduler := syncscheduler.New(svc, registry,
		syncscheduler.WithSchedule(cfg.Scheduler.Spec),
		syncscheduler.WithConcurrency(cfg.Scheduler.Concurrency),
		syncscheduler.WithRunOnStart(cfg.Scheduler.RunOnStart),
	)

	return cli.Run(ctx, svc, registry, scheduler)
}

func main() {
	ctx := context.Background()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "walletsync:", err)
		os.Exit(1)
	}
}

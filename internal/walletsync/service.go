// Package walletsync drives the wallet synchronization pipeline: account
// discovery, signature collection, classification and exactly-once
// persistence, anchored on a per-wallet watermark.
//
// A wallet without a completed first scan gets a historical scan that walks
// its whole history (or a configured lookback). Afterwards every scan is
// incremental and only looks at activity at or after the watermark.
package walletsync

import (
	"context"
	"errors"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/gabapcia/walletsync/internal/classifier"
	"github.com/gabapcia/walletsync/internal/discovery"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/sigcollect"
	"github.com/gabapcia/walletsync/internal/trade"
)

const instrumentationName = "github.com/gabapcia/walletsync/internal/walletsync"

var (
	// ErrScanInProgress is returned when the wallet already has a scan running,
	// in this process or, with a distributed ScanGuard, in another one.
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrPersistence wraps store failures. They abort the scan and the
	// watermark is not advanced past what was durably written.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidWallet is returned for an empty wallet id or an address that
	// is not a valid public key.
	ErrInvalidWallet = errors.New("invalid wallet")

	// ErrScanClaimLost aborts a scan whose distributed claim could not be
	// renewed; another process may own the wallet from then on.
	ErrScanClaimLost = errors.New("scan claim lost")
)

// Classifier turns transaction bodies into trades and values them.
type Classifier interface {
	Classify(ctx context.Context, tx ledger.Transaction, root string, sink classifier.AccountSink) ([]trade.Trade, error)
	Relevant(tx ledger.Transaction, root string, sink classifier.AccountSink) bool
	Revalue(ctx context.Context, t trade.Trade) trade.Valuation
}

// instruments are the scan metrics. They are no-ops until telemetry is enabled.
type instruments struct {
	scans      metric.Int64Counter
	signatures metric.Int64Counter
	skipped    metric.Int64Counter
	inserted   metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(meter metric.Meter) instruments {
	var (
		nop  = noop.Meter{}
		inst instruments
		err  error
	)

	if inst.scans, err = meter.Int64Counter("walletsync.scans", metric.WithDescription("Finished wallet scans.")); err != nil {
		inst.scans, _ = nop.Int64Counter("walletsync.scans")
	}
	if inst.signatures, err = meter.Int64Counter("walletsync.signatures", metric.WithDescription("Candidate signatures collected.")); err != nil {
		inst.signatures, _ = nop.Int64Counter("walletsync.signatures")
	}
	if inst.skipped, err = meter.Int64Counter("walletsync.transactions.skipped", metric.WithDescription("Transactions skipped during classification.")); err != nil {
		inst.skipped, _ = nop.Int64Counter("walletsync.transactions.skipped")
	}
	if inst.inserted, err = meter.Int64Counter("walletsync.trades.inserted", metric.WithDescription("Trades newly persisted.")); err != nil {
		inst.inserted, _ = nop.Int64Counter("walletsync.trades.inserted")
	}
	if inst.duration, err = meter.Float64Histogram("walletsync.scan.duration", metric.WithUnit("s")); err != nil {
		inst.duration, _ = nop.Float64Histogram("walletsync.scan.duration")
	}

	return inst
}

// Service synchronizes wallets. It is safe for concurrent use; scans of the
// same wallet are mutually exclusive.
type Service struct {
	ledger     ledger.Client
	classifier Classifier
	trades     TradeStorage
	states     SyncStateStorage

	discovery *discovery.Engine
	collector *sigcollect.Collector

	guard     ScanGuard
	guardTTL  time.Duration
	locks     *xsync.Map[string, struct{}]
	workers   int
	batchSize int
	lookback  time.Duration

	tracer  trace.Tracer
	metrics instruments
	now     func() time.Time
}

type config struct {
	guard          ScanGuard
	guardTTL       time.Duration
	fetchWorkers   int
	batchSize      int
	lookback       time.Duration
	collectorOpts  []sigcollect.Option
	discoveryOpts  []discovery.Option
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Service.
type Option func(*config)

// WithScanGuard adds cross-process exclusion. Claims expire after ttl and are
// renewed every ttl/3 while the scan runs.
func WithScanGuard(guard ScanGuard, ttl time.Duration) Option {
	return func(c *config) {
		if guard != nil {
			c.guard = guard
		}
		if ttl > 0 {
			c.guardTTL = ttl
		}
	}
}

// WithFetchWorkers bounds concurrent transaction fetch and classification. Default: 8.
func WithFetchWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.fetchWorkers = n
		}
	}
}

// WithPersistBatchSize sets how many trades are written per store call. Default: 250.
func WithPersistBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithHistoricalLookback bounds historical scans to activity newer than now
// minus d. Zero, the default, walks the full history.
func WithHistoricalLookback(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.lookback = d
		}
	}
}

// WithCollectorOptions configures the signature collector.
func WithCollectorOptions(opts ...sigcollect.Option) Option {
	return func(c *config) {
		c.collectorOpts = append(c.collectorOpts, opts...)
	}
}

// WithDiscoveryOptions configures the account discovery engine.
func WithDiscoveryOptions(opts ...discovery.Option) Option {
	return func(c *config) {
		c.discoveryOpts = append(c.discoveryOpts, opts...)
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

// WithMeterProvider replaces the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		if mp != nil {
			c.meterProvider = mp
		}
	}
}

// New returns a Service reading the ledger through client and persisting to
// trades and states.
func New(client ledger.Client, cls Classifier, trades TradeStorage, states SyncStateStorage, opts ...Option) *Service {
	cfg := config{
		guard:          nopScanGuard{},
		guardTTL:       30 * time.Minute,
		fetchWorkers:   8,
		batchSize:      250,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Service{
		ledger:     client,
		classifier: cls,
		trades:     trades,
		states:     states,
		discovery:  discovery.New(client, cfg.discoveryOpts...),
		collector:  sigcollect.New(client, cfg.collectorOpts...),
		guard:      cfg.guard,
		guardTTL:   cfg.guardTTL,
		locks:      xsync.NewMap[string, struct{}](),
		workers:    cfg.fetchWorkers,
		batchSize:  cfg.batchSize,
		lookback:   cfg.lookback,
		tracer:     cfg.tracerProvider.Tracer(instrumentationName),
		metrics:    newInstruments(cfg.meterProvider.Meter(instrumentationName)),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SyncState returns the persisted state of a wallet, or ErrNoSyncState.
func (s *Service) SyncState(ctx context.Context, walletID string) (trade.SyncState, error) {
	return s.states.LoadSyncState(ctx, walletID)
}

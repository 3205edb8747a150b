package walletsync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gabapcia/walletsync/internal/classifier"
	"github.com/gabapcia/walletsync/internal/discovery"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/types"
	"github.com/gabapcia/walletsync/internal/pkg/validator"
	"github.com/gabapcia/walletsync/internal/sigcollect"
	"github.com/gabapcia/walletsync/internal/trade"
)

// ScanResult is the outcome of ScanWallet.
type ScanResult struct {
	TradesFound  int // trades classified during the scan, stored before or not
	NewTrades    int // trades this scan persisted
	NewWatermark time.Time
	Report       Report
}

// RefreshResult is the outcome of RefreshWallet.
type RefreshResult struct {
	NewTradesCount int
	NewWatermark   time.Time
	Report         Report
}

// ScanWallet synchronizes the wallet and reports what it found. A wallet
// without a completed first scan gets a historical scan; otherwise only
// activity at or after the watermark is examined.
func (s *Service) ScanWallet(ctx context.Context, walletID, address string) (ScanResult, error) {
	report, state, err := s.sync(ctx, walletID, address)
	if err != nil {
		return ScanResult{Report: report}, err
	}

	return ScanResult{
		TradesFound:  report.Trades,
		NewTrades:    report.Inserted,
		NewWatermark: *state.Watermark,
		Report:       report,
	}, nil
}

// RefreshWallet brings an already scanned wallet up to date. It runs the same
// state machine as ScanWallet, so a wallet never scanned is backfilled.
func (s *Service) RefreshWallet(ctx context.Context, walletID, address string) (RefreshResult, error) {
	report, state, err := s.sync(ctx, walletID, address)
	if err != nil {
		return RefreshResult{Report: report}, err
	}

	return RefreshResult{
		NewTradesCount: report.Inserted,
		NewWatermark:   *state.Watermark,
		Report:         report,
	}, nil
}

// walletRef is the validated input of a scan.
type walletRef struct {
	ID      string `validate:"required,max=128"`
	Address string `validate:"required,solana_address"`
}

func validateWallet(walletID, address string) error {
	if err := validator.Validate(walletRef{ID: walletID, Address: address}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWallet, err)
	}
	return nil
}

// loadState returns the stored state of the wallet, or nil for a new wallet.
func (s *Service) loadState(ctx context.Context, walletID, address string) (*trade.SyncState, error) {
	state, err := s.states.LoadSyncState(ctx, walletID)
	switch {
	case errors.Is(err, ErrNoSyncState):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: load sync state: %w", ErrPersistence, err)
	case state.Address != "" && state.Address != address:
		return nil, fmt.Errorf("%w: wallet %s is tracked with address %s", ErrInvalidWallet, walletID, state.Address)
	}

	return &state, nil
}

// cutoffFor returns the inclusive lower bound on block time for a scan.
func (s *Service) cutoffFor(prev *trade.SyncState, startedAt time.Time) *time.Time {
	if prev.Mode() == trade.Incremental && prev.Watermark != nil {
		wm := *prev.Watermark
		return &wm
	}

	if s.lookback > 0 {
		c := startedAt.Add(-s.lookback)
		return &c
	}

	return nil
}

// sync runs one scan of the wallet under its lock and returns the new state.
func (s *Service) sync(ctx context.Context, walletID, address string) (report Report, state trade.SyncState, err error) {
	if err := validateWallet(walletID, address); err != nil {
		return Report{}, trade.SyncState{}, err
	}

	runID := uuid.Must(uuid.NewV7()).String()

	ctx, release, err := s.acquire(ctx, walletID, runID)
	if err != nil {
		return Report{}, trade.SyncState{}, err
	}
	defer release()

	ctx = logger.Derive(ctx, "wallet.id", walletID, "wallet.address", address, "scan.run_id", runID)
	ctx, span := s.tracer.Start(ctx, "walletsync.Sync", trace.WithAttributes(
		attribute.String("wallet.id", walletID),
		attribute.String("scan.run_id", runID),
	))
	defer span.End()

	prev, err := s.loadState(ctx, walletID, address)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, trade.SyncState{}, err
	}

	startedAt := s.now()
	report = Report{
		RunID:     runID,
		WalletID:  walletID,
		Address:   address,
		Mode:      prev.Mode(),
		Cutoff:    s.cutoffFor(prev, startedAt),
		StartedAt: startedAt,
	}
	span.SetAttributes(attribute.String("scan.mode", string(report.Mode)))

	defer func() {
		if cause := context.Cause(ctx); err != nil && errors.Is(cause, ErrScanClaimLost) {
			err = cause
		}

		report.FinishedAt = s.now()
		s.record(ctx, report, err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error(ctx, "wallet scan failed", "scan.mode", report.Mode, "error", err)
			return
		}
		report.log(ctx)
	}()

	logger.Info(ctx, "wallet scan started", "scan.mode", report.Mode, "scan.cutoff", report.Cutoff)

	skips := newSkipLog()
	trades, err := s.collectTrades(ctx, &report, skips)
	report.Skipped = skips.snapshot()
	if err != nil {
		return report, trade.SyncState{}, err
	}

	base := trade.SyncState{WalletID: walletID, Address: address}
	if prev != nil {
		base = *prev
		base.Address = address
	}

	persisted, err := s.persistAll(ctx, &report, base, trades)
	if err != nil {
		return report, trade.SyncState{}, err
	}

	next := base.Advance(nextWatermark(report.Mode, trades, persisted, startedAt, skips.earliestRetry()), s.now())
	if err := s.states.SaveSyncState(ctx, next); err != nil {
		return report, trade.SyncState{}, fmt.Errorf("%w: save sync state: %w", ErrPersistence, err)
	}

	return report, next, nil
}

// nextWatermark picks the watermark candidate of a successful scan. A
// historical scan anchors on the latest trade observed; an incremental scan
// on the latest trade it persisted. Without such a trade the scan start is
// used so the same empty range is not rescanned.
//
// The candidate never passes retryFrom, the earliest transaction whose fetch
// failed, so the next incremental scan collects it again. Trades already
// stored past that point are filtered by the persistence pre-check.
func nextWatermark(mode trade.Mode, observed, persisted []trade.Trade, startedAt time.Time, retryFrom *time.Time) time.Time {
	var candidate time.Time
	switch {
	case mode == trade.Historical && len(observed) > 0:
		candidate = trade.MaxTimestamp(observed)
	case mode == trade.Incremental && len(persisted) > 0:
		candidate = trade.MaxTimestamp(persisted)
	default:
		candidate = startedAt
	}

	if retryFrom != nil && retryFrom.Before(candidate) {
		return *retryFrom
	}
	return candidate
}

// collectTrades alternates discovery, collection and classification until
// classification stops revealing new accounts. Trades are returned ascending.
func (s *Service) collectTrades(ctx context.Context, report *Report, skips *skipLog) ([]trade.Trade, error) {
	var (
		root     = report.Address
		frontier = discovery.NewFrontier(root)
		cache    = newTxCache(s.ledger)
		seen     = types.NewSet[string]()
		filter   = relevance{classifier: s.classifier, root: root, sink: frontier}
		all      []trade.Trade
	)

	for {
		if _, err := s.discovery.Explore(ctx, frontier); err != nil {
			return nil, err
		}

		accounts := frontier.Uncollected()
		if len(accounts) == 0 {
			break
		}
		report.Rounds++

		result, err := s.collector.Collect(ctx, sigcollect.Request{
			Root:     root,
			Accounts: accounts,
			Cutoff:   report.Cutoff,
			Seen:     seen,
			Source:   cache,
			Filter:   filter,
		})
		if err != nil {
			return nil, err
		}

		for _, info := range result.Signatures {
			seen.Add(info.Signature)
		}
		report.AccountFailures += len(result.Failures)
		report.Signatures += len(result.Signatures)
		s.metrics.signatures.Add(ctx, int64(len(result.Signatures)))

		logger.Debug(ctx, "signatures collected",
			"scan.round", report.Rounds,
			"scan.round.accounts", len(accounts),
			"scan.round.signatures", len(result.Signatures),
			"sigcollect.pages", result.Stats.Pages,
			"sigcollect.filtered", result.Stats.Filtered,
		)

		trades, classified, err := s.classifyAll(ctx, root, result.Signatures, cache, frontier, skips)
		if err != nil {
			return nil, err
		}
		report.Classified += classified
		all = append(all, trades...)
	}

	report.Accounts = len(frontier.Accounts())
	report.Trades = len(all)

	trade.SortAscending(all)
	return all, nil
}

// classifyAll fetches and classifies infos on a bounded pool. Units that fail
// are recorded in skips; the returned trades follow the order of infos.
func (s *Service) classifyAll(ctx context.Context, root string, infos []ledger.SignatureInfo, cache *txCache, sink classifier.AccountSink, skips *skipLog) ([]trade.Trade, int, error) {
	if len(infos) == 0 {
		return nil, 0, nil
	}

	var (
		results    = make([][]trade.Trade, len(infos))
		classified atomic.Int64
		pool       = pond.NewPool(s.workers)
		group      = pool.NewGroupContext(ctx)
		groupCtx   = group.Context()
	)
	defer pool.StopAndWait()

	for i, info := range infos {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}

			trades, err := s.classifyOne(groupCtx, root, info.Signature, cache, sink)
			if err != nil {
				if groupCtx.Err() != nil {
					return
				}

				reason := skipReasonOf(err)
				skips.add(info.Signature, reason, info.BlockTime)
				s.metrics.skipped.Add(groupCtx, 1, metric.WithAttributes(attribute.String("skip.reason", string(reason))))
				logger.Warn(groupCtx, "transaction skipped", "tx.signature", info.Signature, "skip.reason", reason, "error", err)
				return
			}

			classified.Add(1)
			results[i] = trades
		})
	}

	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	var out []trade.Trade
	for _, trades := range results {
		out = append(out, trades...)
	}

	return out, int(classified.Load()), nil
}

func (s *Service) classifyOne(ctx context.Context, root, signature string, cache *txCache, sink classifier.AccountSink) ([]trade.Trade, error) {
	tx, err := cache.Transaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	defer cache.forget(signature)

	return s.classifier.Classify(ctx, tx, root, sink)
}

// persistAll writes trades in ascending batches and returns the trades this
// scan inserted. When a batch fails during an incremental scan, the state is
// advanced to the last fully persisted batch before the error is returned; a
// historical scan leaves the state untouched.
func (s *Service) persistAll(ctx context.Context, report *Report, base trade.SyncState, trades []trade.Trade) ([]trade.Trade, error) {
	var (
		persisted []trade.Trade
		durable   *time.Time
	)

	for _, batch := range batches(trades, s.batchSize) {
		written, inserted, err := s.persistTrades(ctx, report.WalletID, batch)
		if err != nil {
			s.savePartialProgress(ctx, report.Mode, base, durable)
			return nil, err
		}

		report.Inserted += inserted
		s.metrics.inserted.Add(ctx, int64(inserted))
		persisted = append(persisted, written...)

		latest := batch[len(batch)-1].Timestamp
		durable = &latest
	}

	return persisted, nil
}

// savePartialProgress records what an aborted incremental scan made durable.
func (s *Service) savePartialProgress(ctx context.Context, mode trade.Mode, base trade.SyncState, durable *time.Time) {
	if mode != trade.Incremental || durable == nil {
		return
	}

	next := base.Advance(*durable, s.now())
	if err := s.states.SaveSyncState(ctx, next); err != nil {
		logger.Warn(ctx, "failed to save partial progress", "scan.watermark", *durable, "error", err)
	}
}

// record emits the scan metrics.
func (s *Service) record(ctx context.Context, report Report, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrPersistence):
		outcome = "persistence_failure"
	case err != nil:
		outcome = "failure"
	}

	attrs := metric.WithAttributes(
		attribute.String("scan.mode", string(report.Mode)),
		attribute.String("scan.outcome", outcome),
	)
	s.metrics.scans.Add(ctx, 1, attrs)
	s.metrics.duration.Record(ctx, report.FinishedAt.Sub(report.StartedAt).Seconds(), attrs)
}

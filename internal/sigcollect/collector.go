// Package sigcollect walks the paginated signature listings of a wallet's
// accounts and merges them into one de-duplicated, chronologically ordered
// list of candidate transactions.
package sigcollect

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/gabapcia/walletsync/internal/discovery"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/types"
	"github.com/gabapcia/walletsync/internal/pkg/x/chflow"
)

const pageChannelBufferSize = 16

// SignatureLister pages an address's signature listing, newest first.
type SignatureLister interface {
	ListSignatures(ctx context.Context, address string, query ledger.SignatureQuery) ([]ledger.SignatureInfo, error)
}

// TransactionSource resolves transaction bodies, usually through a per-scan cache.
type TransactionSource interface {
	Transaction(ctx context.Context, signature string) (ledger.Transaction, error)
}

// Filter decides whether a transaction seen on a non-root account concerns the wallet.
type Filter interface {
	Relevant(tx ledger.Transaction) bool
}

// Request describes one collection pass.
type Request struct {
	Root     string
	Accounts []discovery.Account
	Cutoff   *time.Time        // inclusive lower bound on block time; nil walks the full history
	Seen     types.Set[string] // signatures collected earlier in the scan; read only during Collect

	// Source and Filter enable the pre-filter on non-root accounts. When
	// either is nil every listed signature is kept.
	Source TransactionSource
	Filter Filter
}

// AccountFailure records a non-root account whose listing could not be walked.
type AccountFailure struct {
	Account discovery.Account
	Err     error
}

// Stats counts what a collection pass saw and dropped.
type Stats struct {
	Pages       int
	Listed      int
	NoBlockTime int
	Failed      int
	Filtered    int
	Duplicates  int
}

// Result is the outcome of a collection pass.
type Result struct {
	Signatures []ledger.SignatureInfo // ascending by (block time, slot, signature)
	Failures   []AccountFailure
	Stats      Stats
}

// Collector walks signature listings concurrently.
type Collector struct {
	lister   SignatureLister
	pageSize int
	maxPages int
	workers  int
}

type config struct {
	pageSize int
	maxPages int
	workers  int
}

// Option configures a Collector.
type Option func(*config)

// WithPageSize sets the listing page size. Default: 1000, the node maximum.
func WithPageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPages bounds the pages walked per account. Zero means unbounded.
func WithMaxPages(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxPages = n
		}
	}
}

// WithWorkers sets how many accounts are paged at once. Default: 4.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// New returns a Collector listing signatures through lister.
func New(lister SignatureLister, opts ...Option) *Collector {
	cfg := config{
		pageSize: 1000,
		maxPages: 0,
		workers:  4,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Collector{
		lister:   lister,
		pageSize: cfg.pageSize,
		maxPages: cfg.maxPages,
		workers:  cfg.workers,
	}
}

// counters is the concurrent form of Stats.
type counters struct {
	pages, listed, noBlockTime, failed, filtered atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Pages:       int(c.pages.Load()),
		Listed:      int(c.listed.Load()),
		NoBlockTime: int(c.noBlockTime.Load()),
		Failed:      int(c.failed.Load()),
		Filtered:    int(c.filtered.Load()),
	}
}

// Collect pages every account of req and returns the merged candidates.
//
// A failure listing the root account aborts the pass; failures on other
// accounts are reported in Result.Failures.
func (c *Collector) Collect(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		stats    counters
		failMu   sync.Mutex
		failures []AccountFailure
		pages    = make(chan []ledger.SignatureInfo, pageChannelBufferSize)
		pool     = pond.NewPool(c.workers)
		group    = pool.NewGroupContext(ctx)
		groupCtx = group.Context()
	)
	defer pool.StopAndWait()

	for _, account := range req.Accounts {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}

			err := c.walk(groupCtx, req, account, pages, &stats)
			if err == nil || groupCtx.Err() != nil {
				return
			}

			if account.Address == req.Root {
				cancel(fmt.Errorf("list signatures of %s: %w", account.Address, err))
				return
			}

			logger.Warn(groupCtx, "signature listing skipped",
				"account.address", account.Address,
				"account.mint", account.Mint,
				"error", err,
			)

			failMu.Lock()
			failures = append(failures, AccountFailure{Account: account, Err: err})
			failMu.Unlock()
		})
	}

	go func() {
		_ = group.Wait()
		close(pages)
	}()

	var (
		seen       = types.NewSet[string]()
		merged     []ledger.SignatureInfo
		duplicates int
	)
	chflow.Drain(ctx, pages, func(page []ledger.SignatureInfo) {
		for _, info := range page {
			if !seen.AddNew(info.Signature) {
				duplicates++
				continue
			}
			merged = append(merged, info)
		}
	})

	if err := context.Cause(ctx); err != nil {
		return Result{}, err
	}

	SortAscending(merged)

	result := Result{
		Signatures: merged,
		Failures:   failures,
		Stats:      stats.stats(),
	}
	result.Stats.Duplicates = duplicates

	return result, nil
}

// walk pages one account backwards until the cutoff, a short page or the page cap.
func (c *Collector) walk(ctx context.Context, req Request, account discovery.Account, out chan<- []ledger.SignatureInfo, stats *counters) error {
	prefilter := account.Address != req.Root && req.Source != nil && req.Filter != nil
	before := ""

	for page := 0; c.maxPages == 0 || page < c.maxPages; page++ {
		infos, err := c.lister.ListSignatures(ctx, account.Address, ledger.SignatureQuery{
			Limit:  c.pageSize,
			Before: before,
		})
		if err != nil {
			return err
		}

		stats.pages.Add(1)
		stats.listed.Add(int64(len(infos)))

		kept, reachedCutoff := c.screen(req, infos, stats)

		if prefilter {
			kept, err = c.prefilter(ctx, req, kept, stats)
			if err != nil {
				return err
			}
		}

		if len(kept) > 0 && !chflow.Send(ctx, out, kept) {
			return ctx.Err()
		}

		if reachedCutoff || len(infos) < c.pageSize {
			return nil
		}

		before = infos[len(infos)-1].Signature
	}

	logger.Warn(ctx, "signature listing truncated by page cap",
		"account.address", account.Address,
		"sigcollect.max_pages", c.maxPages,
	)
	return nil
}

// screen drops entries without block time, failed entries, entries before
// the cutoff and already collected signatures. It reports whether the page
// reached past the cutoff.
func (c *Collector) screen(req Request, infos []ledger.SignatureInfo, stats *counters) ([]ledger.SignatureInfo, bool) {
	kept := make([]ledger.SignatureInfo, 0, len(infos))
	reachedCutoff := false

	for _, info := range infos {
		switch {
		case info.BlockTime == nil:
			stats.noBlockTime.Add(1)
		case req.Cutoff != nil && info.BlockTime.Before(*req.Cutoff):
			reachedCutoff = true
		case info.Failed:
			stats.failed.Add(1)
		case req.Seen.Has(info.Signature):
		default:
			kept = append(kept, info)
		}
	}

	return kept, reachedCutoff
}

// prefilter keeps the entries whose transaction concerns the wallet. Bodies
// that cannot be fetched right now are kept so classification decides later;
// bodies the node does not have are dropped.
func (c *Collector) prefilter(ctx context.Context, req Request, infos []ledger.SignatureInfo, stats *counters) ([]ledger.SignatureInfo, error) {
	kept := infos[:0]

	for _, info := range infos {
		tx, err := req.Source.Transaction(ctx, info.Signature)
		switch {
		case errors.Is(err, ledger.ErrTransactionNotFound):
			stats.filtered.Add(1)
			continue
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			kept = append(kept, info)
			continue
		}

		if !req.Filter.Relevant(tx) {
			stats.filtered.Add(1)
			continue
		}

		kept = append(kept, info)
	}

	return kept, nil
}

// SortAscending orders signatures by block time, then slot, then signature.
// Entries without block time sort first.
func SortAscending(infos []ledger.SignatureInfo) {
	slices.SortFunc(infos, func(a, b ledger.SignatureInfo) int {
		return cmp.Or(
			compareTime(a.BlockTime, b.BlockTime),
			cmp.Compare(a.Slot, b.Slot),
			cmp.Compare(a.Signature, b.Signature),
		)
	})
}

func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return a.Compare(*b)
	}
}

package walletsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gabapcia/walletsync/internal/classifier"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/trade"
)

// SkipReason explains why a collected signature produced no trade evaluation.
type SkipReason string

const (
	SkipNotFound    SkipReason = "not_found"    // the node has no body for the signature
	SkipFetchFailed SkipReason = "fetch_failed" // upstream kept failing after retries
	SkipMalformed   SkipReason = "malformed"    // the body could not be interpreted
)

// skipReasonOf maps a fetch or classification error to its reason.
func skipReasonOf(err error) SkipReason {
	switch {
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return SkipNotFound
	case errors.Is(err, classifier.ErrMalformedTransaction), errors.Is(err, ledger.ErrMalformedData):
		return SkipMalformed
	default:
		return SkipFetchFailed
	}
}

// Report describes one scan.
type Report struct {
	RunID      string
	WalletID   string
	Address    string
	Mode       trade.Mode
	Cutoff     *time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	Rounds          int
	Accounts        int // addresses explored, root included
	AccountFailures int // non-root addresses whose listing failed
	Signatures      int // candidates collected
	Classified      int // transactions classified without error
	Trades          int // trades produced
	Inserted        int // trades newly persisted

	Skipped map[string]SkipReason // signature -> reason
}

// skipLog collects skips from classification workers. It also remembers
// the earliest block time among fetch failures, the point a later scan has to
// start from to retry them.
type skipLog struct {
	mu        sync.Mutex
	entries   map[string]SkipReason
	retryFrom *time.Time
}

func newSkipLog() *skipLog {
	return &skipLog{entries: make(map[string]SkipReason)}
}

func (l *skipLog) add(signature string, reason SkipReason, blockTime *time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[signature] = reason

	if reason == SkipFetchFailed && blockTime != nil && (l.retryFrom == nil || blockTime.Before(*l.retryFrom)) {
		ts := *blockTime
		l.retryFrom = &ts
	}
}

// earliestRetry returns the earliest block time of a fetch failure, or nil.
func (l *skipLog) earliestRetry() *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.retryFrom
}

func (l *skipLog) snapshot() map[string]SkipReason {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]SkipReason, len(l.entries))
	for sig, reason := range l.entries {
		out[sig] = reason
	}
	return out
}

// SkipCounts aggregates skipped signatures per reason.
func (r Report) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, reason := range r.Skipped {
		counts[reason]++
	}
	return counts
}

// log writes the end-of-scan summary.
func (r Report) log(ctx context.Context) {
	counts := r.SkipCounts()

	logger.Info(ctx, "wallet scan finished",
		"scan.mode", r.Mode,
		"scan.rounds", r.Rounds,
		"scan.duration", r.FinishedAt.Sub(r.StartedAt).String(),
		"scan.accounts", r.Accounts,
		"scan.account_failures", r.AccountFailures,
		"scan.signatures", r.Signatures,
		"scan.classified", r.Classified,
		"scan.trades", r.Trades,
		"scan.inserted", r.Inserted,
		"scan.skipped.not_found", counts[SkipNotFound],
		"scan.skipped.fetch_failed", counts[SkipFetchFailed],
		"scan.skipped.malformed", counts[SkipMalformed],
	)

	for sig, reason := range r.Skipped {
		logger.Debug(ctx, "transaction skipped", "tx.signature", sig, "skip.reason", reason)
	}
}

package walletsync

import (
	"context"
	"errors"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/gabapcia/walletsync/internal/classifier"
	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/sigcollect"
)

// TransactionFetcher fetches one transaction body.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, signature string) (ledger.Transaction, error)
}

// txEntry is filled exactly once; concurrent readers wait on the once.
type txEntry struct {
	once sync.Once
	tx   ledger.Transaction
	err  error
}

// txCache shares transaction bodies between the collector's pre-filter and
// classification within one scan.
//
// Successful and not-found results are kept until forgotten; other failures
// are evicted so a later reader fetches again.
type txCache struct {
	fetcher TransactionFetcher
	entries *xsync.Map[string, *txEntry]
}

var _ sigcollect.TransactionSource = (*txCache)(nil)

func newTxCache(fetcher TransactionFetcher) *txCache {
	return &txCache{
		fetcher: fetcher,
		entries: xsync.NewMap[string, *txEntry](),
	}
}

// Transaction implements sigcollect.TransactionSource.
func (c *txCache) Transaction(ctx context.Context, signature string) (ledger.Transaction, error) {
	entry, _ := c.entries.LoadOrStore(signature, &txEntry{})
	entry.once.Do(func() {
		entry.tx, entry.err = c.fetcher.GetTransaction(ctx, signature)
	})

	if entry.err != nil && !errors.Is(entry.err, ledger.ErrTransactionNotFound) {
		c.entries.Delete(signature)
	}

	return entry.tx, entry.err
}

// forget releases a body once it has been classified.
func (c *txCache) forget(signature string) {
	c.entries.Delete(signature)
}

// Len returns the number of cached entries.
func (c *txCache) Len() int {
	return c.entries.Size()
}

// relevance adapts the classifier's cheap check to the collector's Filter.
type relevance struct {
	classifier Classifier
	root       string
	sink       classifier.AccountSink
}

var _ sigcollect.Filter = relevance{}

func (r relevance) Relevant(tx ledger.Transaction) bool {
	return r.classifier.Relevant(tx, r.root, r.sink)
}

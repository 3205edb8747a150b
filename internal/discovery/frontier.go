package discovery

import (
	"sync"

	"github.com/gabapcia/walletsync/internal/pkg/types"
)

// Account is a ledger address associated with a wallet.
type Account struct {
	Address string
	Mint    string // mint the account was discovered for; empty for the root
}

// IsRoot reports whether the account is the wallet address itself.
func (a Account) IsRoot() bool {
	return a.Mint == ""
}

// Frontier is the explicit work queue driving discovery. Every address enters
// it at most once; the visited set is never cleared during a scan.
//
// It is safe for concurrent use: the classifier feeds addresses found inside
// transaction bodies from worker goroutines while the orchestrator drains it.
type Frontier struct {
	mu        sync.Mutex
	root      string
	queue     []Account         // addresses waiting to be explored
	visited   types.Set[string] // every address ever added
	accounts  []Account         // discovery order
	collected int               // accounts[:collected] were handed to the collector
}

// NewFrontier returns a frontier seeded with the wallet address.
func NewFrontier(root string) *Frontier {
	rootAccount := Account{Address: root}

	return &Frontier{
		root:     root,
		queue:    []Account{rootAccount},
		visited:  types.NewSet(root),
		accounts: []Account{rootAccount},
	}
}

// Root returns the wallet address.
func (f *Frontier) Root() string {
	return f.root
}

// Add enqueues address unless it was seen before, and reports whether it was new.
func (f *Frontier) Add(address, mint string) bool {
	if address == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.visited.AddNew(address) {
		return false
	}

	account := Account{Address: address, Mint: mint}
	f.queue = append(f.queue, account)
	f.accounts = append(f.accounts, account)
	return true
}

// Known reports whether address was ever added.
func (f *Frontier) Known(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.visited.Has(address)
}

// next dequeues the oldest pending address.
func (f *Frontier) next() (Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return Account{}, false
	}

	account := f.queue[0]
	f.queue = f.queue[1:]
	return account, true
}

// Pending returns how many addresses wait to be explored.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.queue)
}

// Uncollected returns the accounts discovered since the previous call and
// moves the collection cursor past them.
func (f *Frontier) Uncollected() []Account {
	f.mu.Lock()
	defer f.mu.Unlock()

	batch := append([]Account(nil), f.accounts[f.collected:]...)
	f.collected = len(f.accounts)
	return batch
}

// Accounts returns every account discovered so far, root first.
func (f *Frontier) Accounts() []Account {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Account(nil), f.accounts...)
}

package walletsync_test

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pricing"
)

const (
	wallet    = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	walletATA = "7UX2i7SucgLMQcfZ75s3VXmZZY4YRUyJN9X1RgfMoDUi"
	closedATA = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	pool      = "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1"
	tokenT    = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	tokenU    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// fakeLedger is an in-memory ledger with paginated listings.
type fakeLedger struct {
	mu         sync.Mutex
	signatures map[string][]ledger.SignatureInfo // newest first
	txs        map[string]ledger.Transaction
	owned      map[string][]ledger.OwnedAccount
	fetches    map[string]int
	outage     map[string]bool // signatures whose fetch fails as transient

	// gate, when set, blocks listings until closed; entered is closed on the first listing.
	gate        chan struct{}
	entered     chan struct{}
	enteredOnce sync.Once
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		signatures: make(map[string][]ledger.SignatureInfo),
		txs:        make(map[string]ledger.Transaction),
		owned:      make(map[string][]ledger.OwnedAccount),
		fetches:    make(map[string]int),
		outage:     make(map[string]bool),
	}
}

// add registers tx and lists it under every address in listedUnder.
func (f *fakeLedger) add(tx ledger.Transaction, listedUnder ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.txs[tx.Signature] = tx

	failed := tx.Meta != nil && tx.Meta.Failed
	for _, address := range listedUnder {
		infos := append(f.signatures[address], ledger.SignatureInfo{
			Signature: tx.Signature,
			Slot:      tx.Slot,
			BlockTime: tx.BlockTime,
			Failed:    failed,
		})
		slices.SortFunc(infos, func(a, b ledger.SignatureInfo) int {
			return cmp.Or(b.BlockTime.Compare(*a.BlockTime), cmp.Compare(b.Slot, a.Slot))
		})
		f.signatures[address] = infos
	}
}

// list adds a signature with no retrievable body.
func (f *fakeLedger) list(address, signature string, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signatures[address] = append([]ledger.SignatureInfo{{Signature: signature, BlockTime: &ts}}, f.signatures[address]...)
}

func (f *fakeLedger) own(owner string, accounts ...ledger.OwnedAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.owned[owner] = append(f.owned[owner], accounts...)
}

func (f *fakeLedger) ListSignatures(ctx context.Context, address string, query ledger.SignatureQuery) ([]ledger.SignatureInfo, error) {
	if f.entered != nil {
		f.enteredOnce.Do(func() { close(f.entered) })
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	all := f.signatures[address]
	start := 0
	if query.Before != "" {
		start = len(all)
		for i, info := range all {
			if info.Signature == query.Before {
				start = i + 1
				break
			}
		}
	}
	end := min(start+query.Limit, len(all))

	return slices.Clone(all[start:end]), nil
}

func (f *fakeLedger) GetTransaction(_ context.Context, signature string) (ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches[signature]++

	if f.outage[signature] {
		return ledger.Transaction{}, ledger.ErrTransientUpstream
	}

	tx, ok := f.txs[signature]
	if !ok {
		return ledger.Transaction{}, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

func (f *fakeLedger) ListOwnedAccounts(_ context.Context, owner string) ([]ledger.OwnedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.owned[owner]), nil
}

func (f *fakeLedger) setOutage(signature string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.outage[signature] = down
}

func (f *fakeLedger) fetchCount(signature string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetches[signature]
}

// swapTx builds a swap where wallet pays a 5000 lamport fee, moves nativeLamports
// (before the fee) and its account holding mint goes from pre to post raw units
// (6 decimals).
func swapTx(sig string, ts time.Time, nativeLamports int64, account, mint string, pre, post int64) ledger.Transaction {
	const (
		fee     = 5000
		balance = 100_000_000_000
	)
	blockTime := ts

	return ledger.Transaction{
		Signature:   sig,
		Slot:        uint64(ts.Unix()),
		BlockTime:   &blockTime,
		AccountKeys: []string{wallet, account, pool},
		Meta: &ledger.Meta{
			Fee:          fee,
			PreBalances:  []uint64{balance, 2_039_280, balance},
			PostBalances: []uint64{uint64(balance + nativeLamports - fee), 2_039_280, uint64(balance - nativeLamports)},
			PreTokenBalances: []ledger.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: wallet, Amount: decimal.NewFromInt(pre).String(), Decimals: 6},
			},
			PostTokenBalances: []ledger.TokenBalance{
				{AccountIndex: 1, Mint: mint, Owner: wallet, Amount: decimal.NewFromInt(post).String(), Decimals: 6},
			},
		},
	}
}

func failedTx(sig string, ts time.Time) ledger.Transaction {
	tx := swapTx(sig, ts, -3_000_000_000, walletATA, tokenT, 0, 10_000_000)
	tx.Meta.Failed = true
	return tx
}

// valuer serves mutable quotes.
type valuer struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func newValuer(prices map[string]decimal.Decimal) *valuer {
	return &valuer{prices: prices}
}

func (v *valuer) set(mint string, price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.prices[mint] = price
}

func (v *valuer) AssetInfo(_ context.Context, mint string) (pricing.AssetInfo, error) {
	if mint == tokenT {
		return pricing.AssetInfo{Mint: mint, Symbol: "TTT"}, nil
	}
	return pricing.AssetInfo{}, pricing.ErrAssetNotFound
}

func (v *valuer) UnitPriceAt(_ context.Context, mint string, _ time.Time) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	price, ok := v.prices[mint]
	if !ok {
		return decimal.Zero, pricing.ErrValuationUnavailable
	}
	return price, nil
}

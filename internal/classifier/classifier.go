// Package classifier turns a decoded transaction into the trades it
// represents from a wallet's point of view, valuing them in USD.
//
// A transaction is a trade when the wallet's holdings of at least one
// non-native asset changed by more than the dust threshold and its native
// balance moved by at least the minimum movement. The asset with the largest
// absolute change is the primary leg and carries the native amount; other
// assets changed in the same transaction become secondary trades valued at
// their own market price.
package classifier

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/types"
	"github.com/gabapcia/walletsync/internal/pricing"
	"github.com/gabapcia/walletsync/internal/trade"
)

// ErrMalformedTransaction is returned for bodies that cannot be interpreted:
// missing metadata, missing block time or balance indexes outside the keys.
var ErrMalformedTransaction = errors.New("malformed transaction")

// Valuer provides prices and display metadata.
type Valuer interface {
	AssetInfo(ctx context.Context, mint string) (pricing.AssetInfo, error)
	UnitPriceAt(ctx context.Context, mint string, ts time.Time) (decimal.Decimal, error)
}

// AccountSink receives token accounts owned by the wallet, including ones
// that only appear in historical bodies, and knows which were seen before.
type AccountSink interface {
	Add(address, mint string) bool
	Known(address string) bool
}

// Classifier classifies transactions. It is safe for concurrent use.
type Classifier struct {
	valuer            Valuer
	dust              decimal.Decimal
	minNativeMovement decimal.Decimal
	nativeMint        string
	excludedOwners    types.Set[string]
}

type config struct {
	dust              decimal.Decimal
	minNativeMovement decimal.Decimal
	nativeMint        string
	excludedOwners    types.Set[string]
}

// Option configures a Classifier.
type Option func(*config)

// WithDustThreshold ignores token changes whose absolute value is below d.
// Default: 0.000001.
func WithDustThreshold(d decimal.Decimal) Option {
	return func(c *config) {
		c.dust = d.Abs()
	}
}

// WithMinNativeMovement sets the smallest native change, in SOL, that makes a
// transaction a trade. Default: 0.001.
func WithMinNativeMovement(d decimal.Decimal) Option {
	return func(c *config) {
		c.minNativeMovement = d.Abs()
	}
}

// WithNativeMint sets the wrapped native mint excluded from asset changes.
func WithNativeMint(mint string) Option {
	return func(c *config) {
		if mint != "" {
			c.nativeMint = mint
		}
	}
}

// WithExcludedOwners replaces the set of balance owners never attributed to a wallet.
func WithExcludedOwners(owners ...string) Option {
	return func(c *config) {
		c.excludedOwners = types.NewSet(owners...)
	}
}

// New returns a Classifier valuing trades through valuer.
func New(valuer Valuer, opts ...Option) *Classifier {
	cfg := config{
		dust:              decimal.New(1, -6),
		minNativeMovement: decimal.New(1, -3),
		nativeMint:        ledger.NativeMint,
		excludedOwners:    ledger.DefaultExcludedOwners(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Classifier{
		valuer:            valuer,
		dust:              cfg.dust,
		minNativeMovement: cfg.minNativeMovement,
		nativeMint:        cfg.nativeMint,
		excludedOwners:    cfg.excludedOwners,
	}
}

// assetChange is the net change of one mint across the wallet's accounts.
type assetChange struct {
	mint  string
	delta decimal.Decimal
}

// walletChanges feeds wallet-owned token accounts to sink and returns the
// non-dust asset changes of the wallet, largest absolute change first.
func (c *Classifier) walletChanges(tx ledger.Transaction, root string, sink AccountSink) ([]assetChange, error) {
	deltas, err := tx.TokenDeltas()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedTransaction, tx.Signature, err)
	}

	perMint := types.NewDefaultMap[string](func() decimal.Decimal { return decimal.Zero })
	for _, d := range deltas {
		if d.Owner == root {
			sink.Add(d.Account, d.Mint)
		}

		switch {
		case d.Owner != root && !sink.Known(d.Account):
		case d.Mint == c.nativeMint:
		case c.excludedOwners.Has(d.Owner):
		case d.Delta.Abs().LessThan(c.dust):
		default:
			perMint.Update(d.Mint, d.Delta.Add)
		}
	}

	changes := make([]assetChange, 0, perMint.Len())
	for mint, delta := range perMint.All() {
		if delta.Abs().LessThan(c.dust) || delta.IsZero() {
			continue
		}
		changes = append(changes, assetChange{mint: mint, delta: delta})
	}

	slices.SortFunc(changes, func(a, b assetChange) int {
		return cmp.Or(
			b.delta.Abs().Cmp(a.delta.Abs()),
			cmp.Compare(a.mint, b.mint),
		)
	})

	return changes, nil
}

// nativeMovement returns the wallet's native change net of the fee, and the
// fee it paid (zero when another account paid it).
func (c *Classifier) nativeMovement(tx ledger.Transaction, root string) (decimal.Decimal, decimal.Decimal, error) {
	delta, err := tx.NativeDelta(root)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s: %w", ErrMalformedTransaction, tx.Signature, err)
	}

	fee := decimal.Zero
	if tx.FeePayer() == root {
		fee = ledger.LamportsToSOL(tx.Meta.Fee)
		delta = delta.Add(fee)
	}

	return delta, fee, nil
}

// Relevant reports whether tx moved both a wallet-owned asset and enough
// native currency to possibly be a trade. It never calls the valuer.
func (c *Classifier) Relevant(tx ledger.Transaction, root string, sink AccountSink) bool {
	if tx.Meta == nil || tx.Meta.Failed {
		return false
	}

	changes, err := c.walletChanges(tx, root, sink)
	if err != nil || len(changes) == 0 {
		return false
	}

	native, _, err := c.nativeMovement(tx, root)
	return err == nil && !native.Abs().LessThan(c.minNativeMovement)
}

// Classify returns the trades tx represents for the wallet root, or none.
//
// Token accounts owned by root are reported to sink whether or not the
// transaction turns out to be a trade. Valuation failures never drop a trade:
// the symbol falls back to the shortened mint and prices to zero.
func (c *Classifier) Classify(ctx context.Context, tx ledger.Transaction, root string, sink AccountSink) ([]trade.Trade, error) {
	if tx.Meta == nil {
		return nil, fmt.Errorf("%w: %s: missing meta", ErrMalformedTransaction, tx.Signature)
	}

	if tx.Meta.Failed {
		return nil, nil
	}

	if tx.BlockTime == nil {
		return nil, fmt.Errorf("%w: %s: missing block time", ErrMalformedTransaction, tx.Signature)
	}

	changes, err := c.walletChanges(tx, root, sink)
	if err != nil {
		return nil, err
	}

	if len(changes) == 0 {
		return nil, nil
	}

	native, fee, err := c.nativeMovement(tx, root)
	if err != nil {
		return nil, err
	}

	if native.Abs().LessThan(c.minNativeMovement) || native.IsZero() {
		return nil, nil
	}

	ts := tx.BlockTime.UTC()
	trades := make([]trade.Trade, 0, len(changes))

	primary := changes[0]
	trades = append(trades, trade.Trade{
		Signature:    tx.Signature,
		Timestamp:    ts,
		Direction:    directionFromNative(native),
		Asset:        primary.mint,
		Amount:       primary.delta,
		NativeAmount: native,
		Fee:          fee,
		Valuation:    c.valuePrimary(ctx, primary, native, ts),
	})

	for _, secondary := range changes[1:] {
		trades = append(trades, trade.Trade{
			Signature:    tx.Signature,
			Timestamp:    ts,
			Direction:    directionFromAsset(secondary.delta),
			Asset:        secondary.mint,
			Amount:       secondary.delta,
			NativeAmount: decimal.Zero,
			Fee:          decimal.Zero,
			Valuation:    c.valueSecondary(ctx, secondary, ts),
		})
	}

	return trades, nil
}

// directionFromNative: spending native buys the asset, receiving it sells.
func directionFromNative(native decimal.Decimal) trade.Direction {
	if native.IsNegative() {
		return trade.Buy
	}
	return trade.Sell
}

func directionFromAsset(delta decimal.Decimal) trade.Direction {
	if delta.IsPositive() {
		return trade.Buy
	}
	return trade.Sell
}

// metadata resolves display fields, falling back to the shortened mint.
func (c *Classifier) metadata(ctx context.Context, mint string) (string, string) {
	info, err := c.valuer.AssetInfo(ctx, mint)
	if err != nil || info.Symbol == "" {
		if err != nil {
			logger.Debug(ctx, "asset metadata unavailable", "asset.mint", mint, "error", err)
		}
		return ledger.ShortAddress(mint), info.LogoURI
	}

	return info.Symbol, info.LogoURI
}

// price returns the unit price of mint at ts, or zero when unavailable.
func (c *Classifier) price(ctx context.Context, mint string, ts time.Time) decimal.Decimal {
	price, err := c.valuer.UnitPriceAt(ctx, mint, ts)
	if err != nil {
		logger.Debug(ctx, "price unavailable", "asset.mint", mint, "price.time", ts, "error", err)
		return decimal.Zero
	}

	return price
}

// priceDivisionPrecision bounds the digits kept when deriving a unit price.
const priceDivisionPrecision = 18

func (c *Classifier) valuePrimary(ctx context.Context, change assetChange, native decimal.Decimal, ts time.Time) trade.Valuation {
	symbol, logo := c.metadata(ctx, change.mint)
	nativePrice := c.price(ctx, c.nativeMint, ts)
	total := native.Abs().Mul(nativePrice)

	return trade.Valuation{
		AssetSymbol:     symbol,
		AssetLogoURI:    logo,
		NativeUnitPrice: nativePrice,
		AssetUnitPrice:  total.DivRound(change.delta.Abs(), priceDivisionPrecision),
		TotalValue:      total,
	}
}

func (c *Classifier) valueSecondary(ctx context.Context, change assetChange, ts time.Time) trade.Valuation {
	symbol, logo := c.metadata(ctx, change.mint)
	unitPrice := c.price(ctx, change.mint, ts)

	return trade.Valuation{
		AssetSymbol:     symbol,
		AssetLogoURI:    logo,
		NativeUnitPrice: c.price(ctx, c.nativeMint, ts),
		AssetUnitPrice:  unitPrice,
		TotalValue:      change.delta.Abs().Mul(unitPrice),
	}
}

// Revalue recomputes the valuation of t from current prices. The trade's
// amounts are left untouched.
func (c *Classifier) Revalue(ctx context.Context, t trade.Trade) trade.Valuation {
	change := assetChange{mint: t.Asset, delta: t.Amount}
	if !t.NativeAmount.IsZero() {
		return c.valuePrimary(ctx, change, t.NativeAmount, t.Timestamp)
	}

	return c.valueSecondary(ctx, change, t.Timestamp)
}

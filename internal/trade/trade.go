// Package trade defines the classified trade record and the per-wallet
// synchronization state persisted by the sync engine.
package trade

import (
	"cmp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade from the wallet's point of view.
type Direction string

const (
	// Buy means the wallet spent native currency to acquire the asset.
	Buy Direction = "BUY"

	// Sell means the wallet received native currency for the asset.
	Sell Direction = "SELL"
)

// Key uniquely identifies a trade: one transaction may produce one trade per asset.
type Key struct {
	Signature string
	Asset     string
}

// Valuation holds the fields of a trade that depend on external price data.
// They are the only fields that may change after the trade is recorded.
type Valuation struct {
	AssetSymbol     string
	AssetLogoURI    string
	NativeUnitPrice decimal.Decimal // USD per SOL at the trade time
	AssetUnitPrice  decimal.Decimal // USD per asset unit at the trade time
	TotalValue      decimal.Decimal // USD
}

// Placeholder reports whether the valuation still carries the zero price used
// when no quote was available.
func (v Valuation) Placeholder() bool {
	return v.TotalValue.IsZero() && v.AssetUnitPrice.IsZero()
}

// Trade is a classified, valued swap of the wallet.
type Trade struct {
	Signature    string
	Timestamp    time.Time
	Direction    Direction
	Asset        string          // mint address
	Amount       decimal.Decimal // signed asset change, in token units
	NativeAmount decimal.Decimal // signed native change net of fee, in SOL
	Fee          decimal.Decimal // SOL, zero when the wallet did not pay it
	Valuation
}

// Key returns the uniqueness key of t.
func (t Trade) Key() Key {
	return Key{Signature: t.Signature, Asset: t.Asset}
}

// SortAscending orders trades by timestamp, then signature, then asset.
func SortAscending(trades []Trade) {
	slices.SortStableFunc(trades, func(a, b Trade) int {
		return cmp.Or(
			a.Timestamp.Compare(b.Timestamp),
			cmp.Compare(a.Signature, b.Signature),
			cmp.Compare(a.Asset, b.Asset),
		)
	})
}

// MaxTimestamp returns the latest timestamp among trades, or the zero time.
func MaxTimestamp(trades []Trade) time.Time {
	var latest time.Time
	for _, t := range trades {
		if t.Timestamp.After(latest) {
			latest = t.Timestamp
		}
	}

	return latest
}

package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// nativeDecimals is the number of lamports per SOL as a power of ten.
const nativeDecimals = 9

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return lamportsDecimal(lamports).Shift(-nativeDecimals)
}

// lamportsDecimal converts a lamport count; total supply fits in an int64.
func lamportsDecimal(lamports uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(lamports))
}

// UIAmount converts the raw base-unit amount into token units.
func (b TokenBalance) UIAmount() (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: token amount %q: %v", ErrMalformedData, b.Amount, err)
	}

	return raw.Shift(-b.Decimals), nil
}

// TokenDelta is the change of one token account's balance across a transaction.
type TokenDelta struct {
	Account string // token account address
	Owner   string
	Mint    string
	Delta   decimal.Decimal // post minus pre, in token units
}

// IndexOf returns the position of address in the account keys, or -1.
func (tx Transaction) IndexOf(address string) int {
	for i, key := range tx.AccountKeys {
		if key == address {
			return i
		}
	}

	return -1
}

// FeePayer returns the first account key, or "" for an empty body.
func (tx Transaction) FeePayer() string {
	if len(tx.AccountKeys) == 0 {
		return ""
	}

	return tx.AccountKeys[0]
}

// NativeDelta returns post minus pre lamports of address, in SOL. Addresses
// absent from the body have a zero delta.
func (tx Transaction) NativeDelta(address string) (decimal.Decimal, error) {
	if tx.Meta == nil {
		return decimal.Zero, fmt.Errorf("%w: missing meta", ErrMalformedData)
	}

	idx := tx.IndexOf(address)
	if idx < 0 {
		return decimal.Zero, nil
	}

	if idx >= len(tx.Meta.PreBalances) || idx >= len(tx.Meta.PostBalances) {
		return decimal.Zero, fmt.Errorf("%w: native balance index %d out of range", ErrMalformedData, idx)
	}

	pre := lamportsDecimal(tx.Meta.PreBalances[idx])
	post := lamportsDecimal(tx.Meta.PostBalances[idx])
	return post.Sub(pre).Shift(-nativeDecimals), nil
}

// balanceKey identifies one token account holding one mint.
type balanceKey struct {
	index int
	mint  string
}

// TokenDeltas pairs pre and post token balances by (account index, mint) and
// returns post minus pre for each pair, a missing side counting as zero.
// Deltas are returned in first-seen order; zero deltas are kept.
func (tx Transaction) TokenDeltas() ([]TokenDelta, error) {
	if tx.Meta == nil {
		return nil, fmt.Errorf("%w: missing meta", ErrMalformedData)
	}

	var (
		order  []balanceKey
		deltas = make(map[balanceKey]*TokenDelta)
	)

	apply := func(balances []TokenBalance, sign int64) error {
		for _, b := range balances {
			if b.AccountIndex < 0 || b.AccountIndex >= len(tx.AccountKeys) {
				return fmt.Errorf("%w: token balance index %d outside %d account keys", ErrMalformedData, b.AccountIndex, len(tx.AccountKeys))
			}

			amount, err := b.UIAmount()
			if err != nil {
				return err
			}

			key := balanceKey{index: b.AccountIndex, mint: b.Mint}
			d, ok := deltas[key]
			if !ok {
				d = &TokenDelta{Account: tx.AccountKeys[b.AccountIndex], Mint: b.Mint}
				deltas[key] = d
				order = append(order, key)
			}

			if d.Owner == "" {
				d.Owner = b.Owner
			}
			d.Delta = d.Delta.Add(amount.Mul(decimal.NewFromInt(sign)))
		}
		return nil
	}

	if err := apply(tx.Meta.PreTokenBalances, -1); err != nil {
		return nil, err
	}
	if err := apply(tx.Meta.PostTokenBalances, 1); err != nil {
		return nil, err
	}

	out := make([]TokenDelta, 0, len(order))
	for _, key := range order {
		out = append(out, *deltas[key])
	}

	return out, nil
}

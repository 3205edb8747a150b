// Package ledger holds the chain-facing model shared by discovery, signature
// collection and classification: signature listings, decoded transaction
// bodies, owned token accounts and the errors an upstream ledger client may
// return.
//
// Sum-typed upstream answers are rendered as (value, error) pairs: success is a
// nil error, "no such transaction" is ErrTransactionNotFound, and failures wrap
// ErrTransientUpstream or ErrMalformedData.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransactionNotFound is returned when the node has no body for a signature.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransientUpstream marks failures worth retrying: timeouts, HTTP 429/5xx
	// and node-behind conditions.
	ErrTransientUpstream = errors.New("transient upstream failure")

	// ErrMalformedData marks upstream payloads that cannot be decoded.
	ErrMalformedData = errors.New("malformed upstream data")
)

// SignatureInfo is one entry of an address's signature listing, newest first
// as returned by the node.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	BlockTime *time.Time // nil when the node does not know the block time
	Failed    bool       // the transaction executed with an on-ledger error
}

// SignatureQuery pages a signature listing backwards from Before.
type SignatureQuery struct {
	Limit  int
	Before string // empty starts at the newest signature
}

// TokenBalance is a token holding snapshot taken before or after a transaction.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw base-unit integer, as reported by the node
	Decimals     int32
}

// Meta is the execution metadata of a transaction.
type Meta struct {
	Failed            bool
	Fee               uint64 // lamports
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Transaction is a decoded transaction body. AccountKeys lists static keys
// followed by addresses loaded from lookup tables; the fee payer is index 0.
type Transaction struct {
	Signature   string
	Slot        uint64
	BlockTime   *time.Time
	AccountKeys []string
	Meta        *Meta // nil when the node omitted execution metadata
}

// OwnedAccount is a token account held by an owner address.
type OwnedAccount struct {
	Address string
	Mint    string
}

// Client is the full ledger RPC surface used by the sync engine.
type Client interface {
	// ListSignatures returns one page of signatures touching address, newest first.
	ListSignatures(ctx context.Context, address string, query SignatureQuery) ([]SignatureInfo, error)

	// GetTransaction returns the decoded body for signature, or ErrTransactionNotFound.
	GetTransaction(ctx context.Context, signature string) (Transaction, error)

	// ListOwnedAccounts returns the token accounts currently owned by owner.
	ListOwnedAccounts(ctx context.Context, owner string) ([]OwnedAccount, error)
}

package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/transport/jsonrpc"
)

// accountKey accepts both renderings of an account key: a bare base58 string
// ("json" encoding) or an object carrying a pubkey ("jsonParsed" encoding).
type accountKey struct {
	Pubkey string
	parsed bool
}

func (k *accountKey) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &k.Pubkey)
	}

	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	k.Pubkey = obj.Pubkey
	k.parsed = true
	return nil
}

type uiTokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int32  `json:"decimals"`
}

type tokenBalanceEntry struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount uiTokenAmount `json:"uiTokenAmount"`
}

func (b tokenBalanceEntry) toLedger() ledger.TokenBalance {
	return ledger.TokenBalance{
		AccountIndex: b.AccountIndex,
		Mint:         b.Mint,
		Owner:        b.Owner,
		Amount:       b.UITokenAmount.Amount,
		Decimals:     b.UITokenAmount.Decimals,
	}
}

type loadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

type metaEntry struct {
	Err               json.RawMessage     `json:"err"`
	Fee               uint64              `json:"fee"`
	PreBalances       []uint64            `json:"preBalances"`
	PostBalances      []uint64            `json:"postBalances"`
	PreTokenBalances  []tokenBalanceEntry `json:"preTokenBalances"`
	PostTokenBalances []tokenBalanceEntry `json:"postTokenBalances"`
	LoadedAddresses   *loadedAddresses    `json:"loadedAddresses"`
}

func convertBalances(in []tokenBalanceEntry) []ledger.TokenBalance {
	out := make([]ledger.TokenBalance, 0, len(in))
	for _, b := range in {
		out = append(out, b.toLedger())
	}
	return out
}

type transactionEntry struct {
	Slot        uint64     `json:"slot"`
	BlockTime   *int64     `json:"blockTime"`
	Meta        *metaEntry `json:"meta"`
	Transaction struct {
		Signatures []string `json:"signatures"`
		Message    struct {
			AccountKeys []accountKey `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// toLedger builds the ledger body. Parsed-encoding keys already include
// lookup-table addresses; plain keys are followed by the loaded writable and
// then readonly addresses, matching the index space of the balance arrays.
func (e transactionEntry) toLedger(signature string) ledger.Transaction {
	keys := make([]string, 0, len(e.Transaction.Message.AccountKeys))
	parsed := false
	for _, k := range e.Transaction.Message.AccountKeys {
		keys = append(keys, k.Pubkey)
		parsed = parsed || k.parsed
	}

	tx := ledger.Transaction{
		Signature: signature,
		Slot:      e.Slot,
		BlockTime: unixTime(e.BlockTime),
	}

	if e.Meta != nil {
		if !parsed && e.Meta.LoadedAddresses != nil {
			keys = append(keys, e.Meta.LoadedAddresses.Writable...)
			keys = append(keys, e.Meta.LoadedAddresses.Readonly...)
		}

		tx.Meta = &ledger.Meta{
			Failed:            present(e.Meta.Err),
			Fee:               e.Meta.Fee,
			PreBalances:       e.Meta.PreBalances,
			PostBalances:      e.Meta.PostBalances,
			PreTokenBalances:  convertBalances(e.Meta.PreTokenBalances),
			PostTokenBalances: convertBalances(e.Meta.PostTokenBalances),
		}
	}

	tx.AccountKeys = keys
	return tx
}

func (c *client) fetchTransaction(ctx context.Context, signature, encoding string) (ledger.Transaction, error) {
	opts := map[string]any{
		"encoding":                       encoding,
		"maxSupportedTransactionVersion": 0,
		"commitment":                     c.commitment,
	}

	var entry transactionEntry
	found, err := c.call(ctx, &entry, "getTransaction", signature, opts)
	if err != nil {
		return ledger.Transaction{}, err
	}

	if !found {
		return ledger.Transaction{}, fmt.Errorf("%w: %s", ledger.ErrTransactionNotFound, signature)
	}

	return entry.toLedger(signature), nil
}

// shouldFallback reports whether a "json" request failed in a way the parsed
// encoding may not.
func shouldFallback(err error) bool {
	var providerErr *jsonrpc.ProviderError
	if errors.As(err, &providerErr) && providerErr.Code == codeInvalidParams {
		return true
	}

	return errors.Is(err, ledger.ErrMalformedData)
}

// GetTransaction implements ledger.Client. Bodies are requested in the
// plain "json" encoding first and in "jsonParsed" when the node rejects it or
// answers with a body that does not decode.
func (c *client) GetTransaction(ctx context.Context, signature string) (ledger.Transaction, error) {
	tx, err := c.fetchTransaction(ctx, signature, "json")
	if err == nil || !shouldFallback(err) {
		return tx, err
	}

	logger.Debug(ctx, "retrying transaction with parsed encoding", "tx.signature", signature, "error", err)
	return c.fetchTransaction(ctx, signature, "jsonParsed")
}

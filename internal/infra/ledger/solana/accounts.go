package solana

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabapcia/walletsync/internal/ledger"
	"github.com/gabapcia/walletsync/internal/pkg/logger"
)

// ownedAccountEntry keeps the account data raw: the node falls back to a
// ["<base64>", "base64"] pair for accounts it cannot parse.
type ownedAccountEntry struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Data json.RawMessage `json:"data"`
	} `json:"account"`
}

type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint string `json:"mint"`
		} `json:"info"`
	} `json:"parsed"`
}

type ownedAccountsResult struct {
	Value []ownedAccountEntry `json:"value"`
}

// mint extracts the token mint of a jsonParsed account.
func (e ownedAccountEntry) mint() (string, error) {
	var data parsedTokenAccount
	if err := json.Unmarshal(e.Account.Data, &data); err != nil {
		return "", fmt.Errorf("%w: account data of %q: %w", ledger.ErrMalformedData, e.Pubkey, err)
	}

	if e.Pubkey == "" || data.Parsed.Info.Mint == "" {
		return "", fmt.Errorf("%w: token account %q without address or mint", ledger.ErrMalformedData, e.Pubkey)
	}

	return data.Parsed.Info.Mint, nil
}

// ListOwnedAccounts implements ledger.Client. Accounts of every token program
// are listed; entries whose data does not carry a parsed mint are skipped.
func (c *client) ListOwnedAccounts(ctx context.Context, owner string) ([]ledger.OwnedAccount, error) {
	var accounts []ledger.OwnedAccount

	for _, program := range ledger.TokenPrograms {
		var result ownedAccountsResult
		_, err := c.call(ctx, &result, "getTokenAccountsByOwner",
			owner,
			map[string]any{"programId": program},
			map[string]any{"encoding": "jsonParsed", "commitment": c.commitment},
		)
		if err != nil {
			return nil, fmt.Errorf("list accounts of program %s: %w", program, err)
		}

		for _, entry := range result.Value {
			mint, err := entry.mint()
			if err != nil {
				logger.Warn(ctx, "owned account skipped",
					"account.owner", owner,
					"account.address", entry.Pubkey,
					"account.program", program,
					"error", err,
				)
				continue
			}

			accounts = append(accounts, ledger.OwnedAccount{Address: entry.Pubkey, Mint: mint})
		}
	}

	return accounts, nil
}

package solana

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gabapcia/walletsync/internal/ledger"
)

// signatureEntry is one element of a getSignaturesForAddress answer.
type signatureEntry struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

func (e signatureEntry) toLedger() ledger.SignatureInfo {
	return ledger.SignatureInfo{
		Signature: e.Signature,
		Slot:      e.Slot,
		BlockTime: unixTime(e.BlockTime),
		Failed:    present(e.Err),
	}
}

// unixTime converts an optional unix timestamp into UTC time.
func unixTime(sec *int64) *time.Time {
	if sec == nil {
		return nil
	}

	t := time.Unix(*sec, 0).UTC()
	return &t
}

// present reports whether an optional JSON field carries a non-null value.
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ListSignatures implements ledger.Client.
func (c *client) ListSignatures(ctx context.Context, address string, query ledger.SignatureQuery) ([]ledger.SignatureInfo, error) {
	opts := map[string]any{
		"commitment": c.commitment,
	}
	if query.Limit > 0 {
		opts["limit"] = query.Limit
	}
	if query.Before != "" {
		opts["before"] = query.Before
	}

	var entries []signatureEntry
	if _, err := c.call(ctx, &entries, "getSignaturesForAddress", address, opts); err != nil {
		return nil, err
	}

	infos := make([]ledger.SignatureInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.toLedger())
	}

	return infos, nil
}

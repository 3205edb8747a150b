package walletsync

import (
	"context"
	"fmt"

	"github.com/gabapcia/walletsync/internal/pkg/logger"
	"github.com/gabapcia/walletsync/internal/pkg/types"
	"github.com/gabapcia/walletsync/internal/trade"
)

// persistTrades writes the trades of batch that are not stored yet and
// returns them. Keys are checked against the store before inserting; the
// store's own insert-if-absent only covers races with concurrent writers.
func (s *Service) persistTrades(ctx context.Context, walletID string, batch []trade.Trade) ([]trade.Trade, int, error) {
	var (
		keys   = make([]trade.Key, 0, len(batch))
		unique = make([]trade.Trade, 0, len(batch))
		seen   = types.NewSet[trade.Key]()
	)
	for _, t := range batch {
		if seen.AddNew(t.Key()) {
			keys = append(keys, t.Key())
			unique = append(unique, t)
		}
	}

	if len(unique) == 0 {
		return nil, 0, nil
	}

	existing, err := s.trades.ExistingTradeKeys(ctx, walletID, keys)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: check existing trades: %w", ErrPersistence, err)
	}

	stored := types.NewSet(existing...)
	missing := make([]trade.Trade, 0, len(unique))
	for _, t := range unique {
		if !stored.Has(t.Key()) {
			missing = append(missing, t)
		}
	}

	if len(missing) == 0 {
		return nil, 0, nil
	}

	inserted, err := s.trades.InsertTrades(ctx, walletID, missing)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: insert trades: %w", ErrPersistence, err)
	}

	if inserted < len(missing) {
		logger.Debug(ctx, "trades written concurrently by another scan",
			"trades.candidates", len(missing),
			"trades.inserted", inserted,
		)
	}

	return missing, inserted, nil
}

// batches splits trades into consecutive chunks of at most size.
func batches(trades []trade.Trade, size int) [][]trade.Trade {
	out := make([][]trade.Trade, 0, (len(trades)+size-1)/size)
	for start := 0; start < len(trades); start += size {
		end := min(start+size, len(trades))
		out = append(out, trades[start:end])
	}
	return out
}

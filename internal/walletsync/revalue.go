package walletsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gabapcia/walletsync/internal/pkg/logger"
)

// RevalueResult is the outcome of RevalueWallet.
type RevalueResult struct {
	Checked int // stored trades still carrying the placeholder valuation
	Updated int // trades whose valuation could now be resolved
}

// RevalueWallet recomputes the valuation of stored trades that were recorded
// without a price. Resolved valuations replace the stored ones; trades whose
// price is still unavailable are left as they are.
//
// It holds the wallet's scan lock, so it fails with ErrScanInProgress while a
// scan is running.
func (s *Service) RevalueWallet(ctx context.Context, walletID string) (RevalueResult, error) {
	if walletID == "" {
		return RevalueResult{}, fmt.Errorf("%w: empty wallet id", ErrInvalidWallet)
	}

	ctx, release, err := s.acquire(ctx, walletID, uuid.Must(uuid.NewV7()).String())
	if err != nil {
		return RevalueResult{}, err
	}
	defer release()

	ctx = logger.Derive(ctx, "wallet.id", walletID)
	ctx, span := s.tracer.Start(ctx, "walletsync.Revalue")
	defer span.End()

	trades, err := s.trades.ListTrades(ctx, walletID)
	if err != nil {
		return RevalueResult{}, fmt.Errorf("%w: list trades: %w", ErrPersistence, err)
	}

	var result RevalueResult
	for _, t := range trades {
		if !t.Placeholder() {
			continue
		}
		result.Checked++

		v := s.classifier.Revalue(ctx, t)
		if v.Placeholder() {
			continue
		}

		if err := s.trades.UpdateTradeValuation(ctx, walletID, t.Key(), v); err != nil {
			return result, fmt.Errorf("%w: update valuation of %s: %w", ErrPersistence, t.Signature, err)
		}
		result.Updated++
	}

	logger.Info(ctx, "wallet revalued", "revalue.checked", result.Checked, "revalue.updated", result.Updated)
	return result, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gabapcia/walletsync/internal/trade"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

// LoadSyncState implements walletsync.SyncStateStorage.
func (s *Store) LoadSyncState(ctx context.Context, walletID string) (trade.SyncState, error) {
	var (
		state     = trade.SyncState{WalletID: walletID}
		watermark *time.Time
	)

	err := s.pool.QueryRow(ctx, `
		SELECT address, initial_scan_complete, watermark, updated_at
		FROM sync_states
		WHERE wallet_id = $1
	`, walletID).Scan(&state.Address, &state.InitialScanComplete, &watermark, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return trade.SyncState{}, walletsync.ErrNoSyncState
		}
		return trade.SyncState{}, fmt.Errorf("load sync state: %w", err)
	}

	if watermark != nil {
		wm := watermark.UTC()
		state.Watermark = &wm
	}
	state.UpdatedAt = state.UpdatedAt.UTC()

	return state, nil
}

// SaveSyncState implements walletsync.SyncStateStorage. GREATEST ignores
// NULL, so a stored watermark is never lowered or cleared.
func (s *Store) SaveSyncState(ctx context.Context, state trade.SyncState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_states (wallet_id, address, initial_scan_complete, watermark, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (wallet_id) DO UPDATE
		SET address = EXCLUDED.address,
		    initial_scan_complete = sync_states.initial_scan_complete OR EXCLUDED.initial_scan_complete,
		    watermark = GREATEST(sync_states.watermark, EXCLUDED.watermark),
		    updated_at = EXCLUDED.updated_at
	`, state.WalletID, state.Address, state.InitialScanComplete, state.Watermark, state.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}

	return nil
}

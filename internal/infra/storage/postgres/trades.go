package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/gabapcia/walletsync/internal/trade"
	"github.com/gabapcia/walletsync/internal/walletsync"
)

// ExistingTradeKeys implements walletsync.TradeStorage.
func (s *Store) ExistingTradeKeys(ctx context.Context, walletID string, keys []trade.Key) ([]trade.Key, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	signatures := make([]string, len(keys))
	assets := make([]string, len(keys))
	for i, k := range keys {
		signatures[i] = k.Signature
		assets[i] = k.Asset
	}

	rows, err := s.pool.Query(ctx, `
		SELECT t.signature, t.asset
		FROM trades t
		JOIN unnest($2::text[], $3::text[]) AS k(signature, asset)
		  ON t.signature = k.signature AND t.asset = k.asset
		WHERE t.wallet_id = $1
	`, walletID, signatures, assets)
	if err != nil {
		return nil, fmt.Errorf("query existing trades: %w", err)
	}

	existing, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (trade.Key, error) {
		var k trade.Key
		err := row.Scan(&k.Signature, &k.Asset)
		return k, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan existing trades: %w", err)
	}

	return existing, nil
}

const insertTrade = `
	INSERT INTO trades (
		wallet_id, signature, asset, traded_at, direction,
		amount, native_amount, fee,
		asset_symbol, asset_logo_uri, native_unit_price, asset_unit_price, total_value
	) VALUES (
		$1, $2, $3, $4, $5,
		$6::numeric, $7::numeric, $8::numeric,
		$9, $10, $11::numeric, $12::numeric, $13::numeric
	)
	ON CONFLICT (wallet_id, signature, asset) DO NOTHING
`

// InsertTrades implements walletsync.TradeStorage. The batch is written in
// one transaction; rows whose key exists are skipped by the conflict clause.
func (s *Store) InsertTrades(ctx context.Context, walletID string, trades []trade.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTrade,
			walletID, t.Signature, t.Asset, t.Timestamp.UTC(), string(t.Direction),
			t.Amount.String(), t.NativeAmount.String(), t.Fee.String(),
			t.AssetSymbol, t.AssetLogoURI, t.NativeUnitPrice.String(), t.AssetUnitPrice.String(), t.TotalValue.String(),
		)
	}

	results := tx.SendBatch(ctx, batch)

	inserted := 0
	for range trades {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert trade: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return inserted, nil
}

// ListTrades implements walletsync.TradeStorage.
func (s *Store) ListTrades(ctx context.Context, walletID string) ([]trade.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			signature, asset, traded_at, direction,
			amount::text, native_amount::text, fee::text,
			asset_symbol, asset_logo_uri,
			native_unit_price::text, asset_unit_price::text, total_value::text
		FROM trades
		WHERE wallet_id = $1
		ORDER BY traded_at ASC, signature ASC, asset ASC
	`, walletID)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}

	trades, err := pgx.CollectRows(rows, scanTrade)
	if err != nil {
		return nil, fmt.Errorf("scan trades: %w", err)
	}

	return trades, nil
}

func scanTrade(row pgx.CollectableRow) (trade.Trade, error) {
	var (
		t         trade.Trade
		ts        time.Time
		direction string
		numbers   [6]string
	)

	err := row.Scan(
		&t.Signature, &t.Asset, &ts, &direction,
		&numbers[0], &numbers[1], &numbers[2],
		&t.AssetSymbol, &t.AssetLogoURI,
		&numbers[3], &numbers[4], &numbers[5],
	)
	if err != nil {
		return trade.Trade{}, err
	}

	targets := []*decimal.Decimal{
		&t.Amount, &t.NativeAmount, &t.Fee,
		&t.NativeUnitPrice, &t.AssetUnitPrice, &t.TotalValue,
	}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(numbers[i]); err != nil {
			return trade.Trade{}, fmt.Errorf("parse numeric column %d: %w", i, err)
		}
	}

	t.Timestamp = ts.UTC()
	t.Direction = trade.Direction(direction)
	return t, nil
}

// UpdateTradeValuation implements walletsync.TradeStorage.
func (s *Store) UpdateTradeValuation(ctx context.Context, walletID string, key trade.Key, v trade.Valuation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trades
		SET asset_symbol = $4,
		    asset_logo_uri = $5,
		    native_unit_price = $6::numeric,
		    asset_unit_price = $7::numeric,
		    total_value = $8::numeric,
		    updated_at = NOW()
		WHERE wallet_id = $1 AND signature = $2 AND asset = $3
	`, walletID, key.Signature, key.Asset,
		v.AssetSymbol, v.AssetLogoURI, v.NativeUnitPrice.String(), v.AssetUnitPrice.String(), v.TotalValue.String())
	if err != nil {
		return fmt.Errorf("update trade valuation: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", walletsync.ErrTradeNotFound, key.Signature, key.Asset)
	}

	return nil
}

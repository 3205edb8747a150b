package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/gabapcia/walletsync/internal/pricing"
)

const (
	assetKeyPrefix = "pricing"

	// assetTTL bounds how long metadata is trusted before the provider is asked again.
	assetTTL = 7 * 24 * time.Hour
)

// assetKey builds the hash key holding the metadata of a mint.
//
// Format: "pricing:asset:{mint}"
func assetKey(mint string) string {
	return fmt.Sprintf("%s:asset:%s", assetKeyPrefix, mint)
}

// GetAssetInfo implements pricing.AssetCache.
func (c *client) GetAssetInfo(ctx context.Context, mint string) (pricing.AssetInfo, error) {
	fields, err := c.conn.HGetAll(ctx, assetKey(mint)).Result()
	if err != nil {
		return pricing.AssetInfo{}, err
	}

	if len(fields) == 0 {
		return pricing.AssetInfo{}, pricing.ErrAssetNotCached
	}

	return pricing.AssetInfo{
		Mint:    mint,
		Symbol:  fields["symbol"],
		LogoURI: fields["logo_uri"],
	}, nil
}

// SetAssetInfo implements pricing.AssetCache.
func (c *client) SetAssetInfo(ctx context.Context, info pricing.AssetInfo) error {
	key := assetKey(info.Mint)

	pipe := c.conn.TxPipeline()
	pipe.HSet(ctx, key, "symbol", info.Symbol, "logo_uri", info.LogoURI)
	pipe.Expire(ctx, key, assetTTL)

	_, err := pipe.Exec(ctx)
	return err
}

var _ pricing.AssetCache = new(client)

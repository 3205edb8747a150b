package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabapcia/walletsync/internal/walletsync"
)

// scanKeyPrefix is the namespace of scan claims.
const scanKeyPrefix = "walletsync"

// scanClaimKey builds the key holding the claim on a wallet.
//
// Format: "walletsync:scan:{walletID}"
func scanClaimKey(walletID string) string {
	return fmt.Sprintf("%s:scan:%s", scanKeyPrefix, walletID)
}

// releaseScript deletes the claim only while it still holds the caller's
// token, so an expired claim taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the claim's expiry only while it still holds the
// caller's token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// AcquireScan claims the wallet for token until ttl elapses. It returns false
// when another holder owns an unexpired claim.
func (c *client) AcquireScan(ctx context.Context, walletID, token string, ttl time.Duration) (bool, error) {
	return c.conn.SetNX(ctx, scanClaimKey(walletID), token, ttl).Result()
}

// ExtendScan renews the claim for another ttl. It returns false when the
// claim expired or now belongs to another token.
func (c *client) ExtendScan(ctx context.Context, walletID, token string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, c.conn, []string{scanClaimKey(walletID)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// ReleaseScan drops the claim if token still owns it.
func (c *client) ReleaseScan(ctx context.Context, walletID, token string) error {
	return releaseScript.Run(ctx, c.conn, []string{scanClaimKey(walletID)}, token).Err()
}

var _ walletsync.ScanGuard = new(client)

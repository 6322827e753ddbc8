package token

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// markUsedScript checks the user watermark and consumes the jti in one
// round trip. Returns 1 when the token was consumed now, 0 otherwise.
var markUsedScript = redis.NewScript(`
local wm = redis.call("GET", KEYS[2])
if wm and tonumber(ARGV[2]) <= tonumber(wm) then
  return 0
end
local set = redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[1])
if set then
  return 1
end
return 0
`)

// RedisStore is a ReplayStore backed by Redis, for deployments where
// multiple engine instances must agree on which refresh tokens are
// spent. Marks expire with the token they guard.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. prefix namespaces all keys; empty selects
// "authmode:replay".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "authmode:replay"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) usedKey(userID, jti string) string {
	return fmt.Sprintf("%s:used:%s:%s", r.prefix, userID, jti)
}

func (r *RedisStore) watermarkKey(userID string) string {
	return fmt.Sprintf("%s:wm:%s", r.prefix, userID)
}

// MarkUsed implements ReplayStore. SET NX inside the script makes the
// check-and-mark atomic across all engine instances.
func (r *RedisStore) MarkUsed(ctx context.Context, userID, jti string, issuedAt time.Time, retain time.Duration) error {
	if retain < time.Second {
		retain = time.Second
	}

	res, err := markUsedScript.Run(ctx, r.client,
		[]string{r.usedKey(userID, jti), r.watermarkKey(userID)},
		retain.Milliseconds(), issuedAt.UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("replay store: %w", err)
	}
	if res != 1 {
		return ErrTokenReused
	}
	return nil
}

// InvalidateUser implements ReplayStore. The watermark lives as long as
// the longest outstanding refresh token could.
func (r *RedisStore) InvalidateUser(ctx context.Context, userID string, at time.Time, retain time.Duration) error {
	if retain < time.Second {
		retain = time.Second
	}

	key := r.watermarkKey(userID)
	val := strconv.FormatInt(at.UnixMilli(), 10)

	// Keep the highest watermark if two invalidations race.
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil && current >= at.UnixMilli() {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, val, retain)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("replay store: %w", err)
	}
	return nil
}

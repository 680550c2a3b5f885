package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)

	// AcquireRunLock claims the session's run slot across server instances.
	// It reports false when another owner holds it.
	AcquireRunLock(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	// ReleaseRunLock frees the slot only if owner still holds it.
	ReleaseRunLock(ctx context.Context, sessionID uuid.UUID, owner string) error
	SetRunSnapshot(ctx context.Context, sessionID uuid.UUID, snapshot []byte, ttl time.Duration) error
	GetRunSnapshot(ctx context.Context, sessionID uuid.UUID) ([]byte, bool, error)
}

// releaseScript deletes the lock only when its value matches the owner, so
// an expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrScript increments a fixed-window counter and starts the window on the
// first hit only. A key left without a TTL gets one.
var incrScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// IncrWithExpiry counts a hit in the window identified by key. The window
// closes expiry after its first hit regardless of later traffic.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return incrScript.Run(ctx, c.client, []string{key}, expiry.Milliseconds()).Int64()
}

func (c *RedisCache) AcquireRunLock(ctx context.Context, sessionID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, RunLockKey(sessionID), owner, ttl).Result()
}

func (c *RedisCache) ReleaseRunLock(ctx context.Context, sessionID uuid.UUID, owner string) error {
	return releaseScript.Run(ctx, c.client, []string{RunLockKey(sessionID)}, owner).Err()
}

func (c *RedisCache) SetRunSnapshot(ctx context.Context, sessionID uuid.UUID, snapshot []byte, ttl time.Duration) error {
	return c.Set(ctx, RunSnapshotKey(sessionID), snapshot, ttl)
}

func (c *RedisCache) GetRunSnapshot(ctx context.Context, sessionID uuid.UUID) ([]byte, bool, error) {
	return c.Get(ctx, RunSnapshotKey(sessionID))
}

var _ Cache = (*RedisCache)(nil)

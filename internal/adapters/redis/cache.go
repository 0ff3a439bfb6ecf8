package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// AcquireSweepLock elects a sweep leader so overlapping sweeper instances
// do not scan the same expired set. Losing the lock is harmless: the
// per-row delete claim already makes concurrent sweeps safe.
func (c *Cache) AcquireSweepLock(ctx context.Context, instanceID string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "sweep:leader", instanceID, ttl)
	return res.Val(), res.Err()
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (c *Cache) ReleaseSweepLock(ctx context.Context, instanceID string) error {
	return releaseScript.Run(ctx, c.client, []string{"sweep:leader"}, instanceID).Err()
}

func (c *Cache) GetAvailability(ctx context.Context, venueID string) ([]byte, error) {
	val, err := c.client.Get(ctx, "avail:"+venueID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (c *Cache) SetAvailability(ctx context.Context, venueID string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, "avail:"+venueID, payload, ttl).Err()
}

// InvalidateAvailability drops the cached snapshot after any mutation so the
// advisory view lags by at most one read.
func (c *Cache) InvalidateAvailability(ctx context.Context, venueID string) error {
	return c.client.Del(ctx, "avail:"+venueID).Err()
}

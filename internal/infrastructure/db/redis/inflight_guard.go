package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

const defaultLockTTL = 30 * time.Second

// InflightGuard is a SETNX lock per request identity shared by every
// portal replica. Key format: portal:inflight:<kind>:<id>. The TTL bounds how
// long a crashed replica can hold a request.
type InflightGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInflightGuard(client *redis.Client, ttl time.Duration) *InflightGuard {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &InflightGuard{client: client, ttl: ttl}
}

// Acquire reports whether the lock for ref was taken by this call.
func (g *InflightGuard) Acquire(ctx context.Context, ref domain.RequestRef) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(ref), "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inflight acquire: %w", err)
	}
	return ok, nil
}

func (g *InflightGuard) Release(ctx context.Context, ref domain.RequestRef) error {
	return g.client.Del(ctx, g.key(ref)).Err()
}

func (g *InflightGuard) key(ref domain.RequestRef) string {
	return fmt.Sprintf("portal:inflight:%s:%s", ref.Kind, ref.ID)
}

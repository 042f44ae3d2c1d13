package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

// SessionStorage keeps the sessions of one client scope in Redis.
// Key format: portal:<scope>:<key>. Every save refreshes the TTL, so a
// session expires only after ttl without activity.
type SessionStorage struct {
	client *redis.Client
	scope  string
	ttl    time.Duration
}

// NewSessionStorage binds storage to scope. A ttl of zero keeps keys forever.
func NewSessionStorage(client *redis.Client, scope string, ttl time.Duration) *SessionStorage {
	return &SessionStorage{client: client, scope: scope, ttl: ttl}
}

func (s *SessionStorage) Load(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotStored
	}
	if err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}
	return raw, nil
}

func (s *SessionStorage) Save(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, s.key(key), data, s.ttl).Err()
}

func (s *SessionStorage) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *SessionStorage) key(key string) string {
	return fmt.Sprintf("portal:%s:%s", s.scope, key)
}

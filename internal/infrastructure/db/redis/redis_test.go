package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

// testClient connects to REDIS_ADDR, or skips when it is not set.
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := Connect(context.Background(), Config{Addr: addr, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestSessionStorage_RoundTrip(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	scope := uuid.NewString()
	s := NewSessionStorage(client, scope, time.Minute)
	t.Cleanup(func() { _ = s.Delete(ctx, "authState") })

	if _, err := s.Load(ctx, "authState"); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("expected ErrSessionNotStored, got %v", err)
	}
	if err := s.Save(ctx, "authState", []byte(`{"user":null}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := client.Get(ctx, "portal:"+scope+":authState").Bytes()
	if err != nil || string(raw) != `{"user":null}` {
		t.Fatalf("unexpected stored value %q: %v", raw, err)
	}
	if ttl := client.TTL(ctx, "portal:"+scope+":authState").Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected a ttl within one minute, got %v", ttl)
	}

	got, err := s.Load(ctx, "authState")
	if err != nil || string(got) != `{"user":null}` {
		t.Fatalf("load: %q %v", got, err)
	}
	if err := s.Delete(ctx, "authState"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Load(ctx, "authState"); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("expected ErrSessionNotStored after delete, got %v", err)
	}
}

func TestSessionStorage_ScopesAreIsolated(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	a := NewSessionStorage(client, uuid.NewString(), time.Minute)
	b := NewSessionStorage(client, uuid.NewString(), time.Minute)
	t.Cleanup(func() { _ = a.Delete(ctx, "authState") })

	if err := a.Save(ctx, "authState", []byte("a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := b.Load(ctx, "authState"); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("scope b must not see scope a, got %v", err)
	}
}

func TestInflightGuard_AcquireRelease(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()
	g := NewInflightGuard(client, 5*time.Second)
	ref := domain.RequestRef{ID: domain.ID(uuid.NewString()), Kind: domain.KindRoleChange}
	t.Cleanup(func() { _ = g.Release(ctx, ref) })

	ok, err := g.Acquire(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if n := client.Exists(ctx, "portal:inflight:role_change:"+string(ref.ID)).Val(); n != 1 {
		t.Fatalf("expected the lock key to exist")
	}

	ok, err = g.Acquire(ctx, ref)
	if err != nil || ok {
		t.Fatalf("second acquire must fail while held: ok=%v err=%v", ok, err)
	}

	other := domain.RequestRef{ID: ref.ID, Kind: domain.KindRegistration}
	t.Cleanup(func() { _ = g.Release(ctx, other) })
	if ok, _ := g.Acquire(ctx, other); !ok {
		t.Fatalf("same id with another kind is a different request")
	}

	if err := g.Release(ctx, ref); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := g.Acquire(ctx, ref); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

func TestStorage_ScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	base := New()
	a, b := base.Scoped("a"), base.Scoped("b")

	if err := a.Save(ctx, "authState", []byte(`{"role":"Admin"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := b.Load(ctx, "authState"); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("scope b must not see scope a, got %v", err)
	}
	raw, err := a.Load(ctx, "authState")
	if err != nil || string(raw) != `{"role":"Admin"}` {
		t.Fatalf("unexpected load: %q %v", raw, err)
	}

	_ = a.Delete(ctx, "authState")
	if _, err := a.Load(ctx, "authState"); !errors.Is(err, domain.ErrSessionNotStored) {
		t.Fatalf("expected ErrSessionNotStored after delete, got %v", err)
	}
}

func TestDecisionLog_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewDecisionLog()
	for _, id := range []domain.ID{"1", "2", "3"} {
		_ = log.Insert(ctx, domain.Decision{RequestID: id})
	}

	got, err := log.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].RequestID != "3" || got[1].RequestID != "2" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if all, _ := log.Recent(ctx, 0); len(all) != 3 {
		t.Fatalf("limit 0 should return everything, got %d", len(all))
	}
}

// Package memory is a process-local SessionStorage, used in tests and when
// the portal runs with SESSION_BACKEND=memory.
package memory

import (
	"context"
	"sync"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

type Storage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func New() *Storage {
	return &Storage{data: make(map[string][]byte)}
}

func (s *Storage) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, domain.ErrSessionNotStored
	}
	return append([]byte(nil), raw...), nil
}

func (s *Storage) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Scoped prefixes every key with scope so several client scopes can share
// one Storage.
func (s *Storage) Scoped(scope string) *ScopedStorage {
	return &ScopedStorage{base: s, prefix: scope + ":"}
}

type ScopedStorage struct {
	base   *Storage
	prefix string
}

func (s *ScopedStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return s.base.Load(ctx, s.prefix+key)
}

func (s *ScopedStorage) Save(ctx context.Context, key string, data []byte) error {
	return s.base.Save(ctx, s.prefix+key, data)
}

func (s *ScopedStorage) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, s.prefix+key)
}

// DecisionLog is an in-memory ports.DecisionRepository, newest last.
type DecisionLog struct {
	mu        sync.Mutex
	decisions []domain.Decision
}

func NewDecisionLog() *DecisionLog {
	return &DecisionLog{}
}

func (l *DecisionLog) Insert(_ context.Context, d domain.Decision) error {
	l.mu.Lock()
	l.decisions = append(l.decisions, d)
	l.mu.Unlock()
	return nil
}

// Recent returns up to limit decisions, newest first.
func (l *DecisionLog) Recent(_ context.Context, limit int) ([]domain.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.decisions) {
		limit = len(l.decisions)
	}
	out := make([]domain.Decision, 0, limit)
	for i := len(l.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.decisions[i])
	}
	return out, nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

// DefaultSessionKey is the storage key the session is persisted under.
const DefaultSessionKey = "authState"

const storageTimeout = 3 * time.Second

// SessionService holds the authenticated identity of one client scope and
// writes every change through to durable storage. Storage failures never
// reach the caller: at worst one update is not persisted.
type SessionService struct {
	storage ports.SessionStorage
	key     string
	log     zerolog.Logger

	mu      sync.RWMutex
	current domain.Session
}

func NewSessionService(storage ports.SessionStorage, key string, log zerolog.Logger) *SessionService {
	if key == "" {
		key = DefaultSessionKey
	}
	return &SessionService{
		storage: storage,
		key:     key,
		log:     log,
		current: domain.EmptySession(),
	}
}

// Initialize rehydrates the persisted session. Missing, undecodable or
// inconsistent data yields the empty session.
func (s *SessionService) Initialize(ctx context.Context) domain.Session {
	loaded := s.load(ctx)

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded
}

func (s *SessionService) load(ctx context.Context) domain.Session {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	raw, err := s.storage.Load(ctx, s.key)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotStored) {
			s.log.Warn().Err(err).Str("key", s.key).Msg("session load failed, starting logged out")
		}
		return domain.EmptySession()
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("persisted session is malformed, starting logged out")
		return domain.EmptySession()
	}
	if !sess.Consistent() {
		s.log.Warn().Str("key", s.key).Msg("persisted session is inconsistent, starting logged out")
		return domain.EmptySession()
	}
	return sess
}

// Get returns the current session.
func (s *SessionService) Get() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the session with one built from profile and persists it
// before returning.
func (s *SessionService) Set(ctx context.Context, profile domain.Profile) domain.Session {
	sess := domain.NewSession(profile)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
	s.persist(ctx, sess)
	return sess
}

// Clear logs the scope out and removes the durable copy.
func (s *SessionService) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = domain.EmptySession()

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	if err := s.storage.Delete(ctx, s.key); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("failed to delete persisted session")
	}
}

// persist must be called with s.mu held.
func (s *SessionService) persist(ctx context.Context, sess domain.Session) {
	raw, err := json.Marshal(sess)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode session")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()
	if err := s.storage.Save(ctx, s.key, raw); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("failed to persist session")
	}
}

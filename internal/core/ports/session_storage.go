package ports

import "context"

// SessionStorage is durable client-side storage addressed by key.
// Load returns domain.ErrSessionNotStored when nothing is stored under key.
type SessionStorage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

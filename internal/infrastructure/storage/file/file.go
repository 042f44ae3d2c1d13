// Package file persists sessions as one JSON document per key under a
// directory, the on-disk counterpart of browser local storage.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

type Storage struct {
	dir string
}

// New creates dir if needed.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

func (s *Storage) path(key string) string {
	return filepath.Join(s.dir, unsafeChars.ReplaceAllString(key, "_")+".json")
}

func (s *Storage) Load(_ context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrSessionNotStored
	}
	return raw, err
}

// Save writes through a temp file and rename so a crash never leaves a
// half-written session behind.
func (s *Storage) Save(_ context.Context, key string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

func (s *Storage) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Scoped returns a view whose keys are prefixed with scope.
func (s *Storage) Scoped(scope string) *ScopedStorage {
	return &ScopedStorage{base: s, prefix: scope + "."}
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

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

// CookieKey is the storage key the upstream cookies are persisted under,
// next to the session itself.
const CookieKey = "upstreamCookies"

const jarStorageTimeout = 3 * time.Second

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// persistentJar is a cookie jar that writes the cookies for the upstream
// API through to storage, so a rebuilt Client (after a restart, eviction
// or on another replica) keeps the upstream login.
type persistentJar struct {
	base    *url.URL
	storage ports.SessionStorage
	log     zerolog.Logger

	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newJar(base *url.URL, storage ports.SessionStorage, log zerolog.Logger) *persistentJar {
	j := &persistentJar{base: base, storage: storage, log: log, jar: emptyJar()}
	j.restore()
	return j
}

func emptyJar() *cookiejar.Jar {
	jar, _ := cookiejar.New(nil) // never fails with nil options
	return jar
}

func (j *persistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *persistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
	j.save()
}

// reset empties the jar and removes the durable copy.
func (j *persistentJar) reset(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = emptyJar()
	if j.storage == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, jarStorageTimeout)
	defer cancel()
	return j.storage.Delete(ctx, CookieKey)
}

func (j *persistentJar) restore() {
	if j.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jarStorageTimeout)
	defer cancel()

	raw, err := j.storage.Load(ctx, CookieKey)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotStored) {
			j.log.Warn().Err(err).Msg("upstream cookies not restored")
		}
		return
	}
	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		j.log.Warn().Err(err).Msg("persisted upstream cookies are malformed")
		return
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value, Path: "/"})
	}
	j.jar.SetCookies(j.base, cookies)
}

// save must be called with j.mu held. Storage errors are logged only: the
// in-memory jar keeps working for this process.
func (j *persistentJar) save() {
	if j.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), jarStorageTimeout)
	defer cancel()

	current := j.jar.Cookies(j.base)
	if len(current) == 0 {
		if err := j.storage.Delete(ctx, CookieKey); err != nil {
			j.log.Warn().Err(err).Msg("failed to delete persisted upstream cookies")
		}
		return
	}
	stored := make([]storedCookie, 0, len(current))
	for _, ck := range current {
		stored = append(stored, storedCookie{Name: ck.Name, Value: ck.Value})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to encode upstream cookies")
		return
	}
	if err := j.storage.Save(ctx, CookieKey, raw); err != nil {
		j.log.Warn().Err(err).Msg("failed to persist upstream cookies")
	}
}

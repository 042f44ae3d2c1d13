// Package gateway is the HTTP adapter for the upstream practice API. Each
// Client owns a cookie jar, so one Client serves exactly one client scope.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/domain"
	"github.com/practicebynumbers/portal/internal/core/ports"
)

const (
	csrfCookie = "csrftoken"
	csrfHeader = "X-CSRFToken"

	maxErrorBody    = 64 << 10
	defaultTimeout  = 15 * time.Second
	contentTypeJSON = "application/json"
)

var (
	_ ports.Gateway         = (*Client)(nil)
	_ ports.SessionResetter = (*Client)(nil)
)

type Client struct {
	base *url.URL
	jar  *persistentJar
	http *http.Client
	log  zerolog.Logger
}

// Factory hands out Clients for one upstream API, one per client scope.
type Factory struct {
	base    *url.URL
	timeout time.Duration
	log     zerolog.Logger
}

// NewFactory validates baseURL (for example http://localhost:8000/api).
func NewFactory(baseURL string, timeout time.Duration, log zerolog.Logger) (*Factory, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("gateway base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("gateway base url %q: scheme and host required", baseURL)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Factory{base: base, timeout: timeout, log: log}, nil
}

// ForScope returns a Client with a cookie jar of its own. When storage is
// non-nil the jar is restored from it and written back on every change.
func (f *Factory) ForScope(scope string, storage ports.SessionStorage) *Client {
	log := f.log
	if scope != "" {
		log = log.With().Str("scope", scope).Logger()
	}
	jar := newJar(f.base, storage, log)
	return &Client{
		base: f.base,
		jar:  jar,
		http: &http.Client{Jar: jar, Timeout: f.timeout},
		log:  log,
	}
}

// New returns a standalone Client for the API rooted at baseURL. Its
// cookies live in memory only.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	f, err := NewFactory(baseURL, timeout, log)
	if err != nil {
		return nil, err
	}
	return f.ForScope("", nil), nil
}

// ResetSession drops the upstream cookies, persisted ones included.
func (c *Client) ResetSession(ctx context.Context) error {
	return c.jar.reset(ctx)
}

func (c *Client) endpoint(path string) *url.URL {
	return c.base.ResolveReference(&url.URL{Path: strings.TrimLeft(path, "/")})
}

// do sends body as JSON and decodes a 2xx response into out (when non-nil).
// Anything else becomes a *domain.GatewayError.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	target := c.endpoint(path)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &domain.GatewayError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if method != http.MethodGet && method != http.MethodHead {
		if token := c.csrfToken(target); token != "" {
			req.Header.Set(csrfHeader, token)
		}
		req.Header.Set("Referer", c.base.String())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Str("path", target.Path).Msg("upstream call failed")
		return &domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", target.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("upstream call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.GatewayError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.GatewayError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) csrfToken(u *url.URL) string {
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

// errorMessage extracts the operator-facing text of an error body:
// "error", then "message", then "detail", then the first non-field error.
func errorMessage(raw []byte) string {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, field := range []string{"error", "message", "detail"} {
		if s := stringField(body[field]); s != "" {
			return s
		}
	}
	var list []string
	if err := json.Unmarshal(body["non_field_errors"], &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

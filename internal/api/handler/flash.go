package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/practicebynumbers/portal/internal/core/service"
)

const (
	flashSession = "portal_flash"
	flashMaxAge  = 300
)

// Flash carries notices across a redirect in a signed cookie, so they
// survive the next request landing on another replica. A nil *Flash is a
// no-op.
type Flash struct {
	store sessions.Store
	log   zerolog.Logger
}

func NewFlash(secret []byte, secure bool, log zerolog.Logger) *Flash {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Flash{store: store, log: log}
}

// Carry queues notices for the next response. Must run before the
// response headers are written.
func (f *Flash) Carry(c echo.Context, items []service.Notice) {
	if f == nil || len(items) == 0 {
		return
	}
	sess, err := f.store.Get(c.Request(), flashSession)
	if err != nil {
		f.log.Debug().Err(err).Msg("discarding unreadable flash cookie")
	}
	for _, n := range items {
		raw, err := json.Marshal(n)
		if err != nil {
			continue
		}
		sess.AddFlash(string(raw))
	}
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		f.log.Warn().Err(err).Msg("flash not saved")
	}
}

// Take returns the carried notices and clears them.
func (f *Flash) Take(c echo.Context) []service.Notice {
	if f == nil {
		return nil
	}
	if _, err := c.Cookie(flashSession); err != nil {
		return nil
	}
	sess, err := f.store.Get(c.Request(), flashSession)
	if err != nil {
		return nil
	}
	flashes := sess.Flashes()
	if len(flashes) == 0 {
		return nil
	}
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		f.log.Warn().Err(err).Msg("flash not cleared")
	}

	out := make([]service.Notice, 0, len(flashes))
	for _, v := range flashes {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n service.Notice
		if err := json.Unmarshal([]byte(s), &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

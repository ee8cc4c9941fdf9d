package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openbanklink/banklink/pkg/storage"
)

// cookieSlots binds the slot-store interface to one request's cookie jar.
// This is the only place the core's sealed strings touch HTTP transport.
type cookieSlots struct {
	c      echo.Context
	secure bool
}

func newCookieSlots(c echo.Context, secure bool) *cookieSlots {
	return &cookieSlots{c: c, secure: secure}
}

func (s *cookieSlots) Set(name, value string, maxAge time.Duration) error {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge.Seconds())
	}
	s.c.SetCookie(cookie)
	return nil
}

func (s *cookieSlots) Get(name string) (string, bool) {
	cookie, err := s.c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s *cookieSlots) Delete(name string) {
	s.c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

var _ storage.SlotStore = (*cookieSlots)(nil)

// Package server exposes the link and sync flows over HTTP. Handlers are
// thin: every decision belongs to the core packages, and the only work done
// here is moving sealed strings between cookies and those packages.
package server

import (
	"io"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/openbanklink/banklink/pkg/config"
	"github.com/openbanklink/banklink/pkg/csrf"
	"github.com/openbanklink/banklink/pkg/provider"
	"github.com/openbanklink/banklink/pkg/sealbox"
	"github.com/openbanklink/banklink/pkg/sync"
	"github.com/openbanklink/banklink/pkg/token"
)

// Server wires the credential lifecycle and sync engine to HTTP routes.
type Server struct {
	cfg      *config.Config
	provider *provider.Client
	engine   *sync.Engine
	codec    *sealbox.Codec
	echo     *echo.Echo
	verbose  bool
}

// NewServer builds the server from configuration. It fails when the sealed
// box secret is absent; missing provider credentials surface later as
// ConfigError from the flows that need them.
func NewServer(cfg *config.Config, verbose bool) (*Server, error) {
	codec, err := sealbox.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		return nil, err
	}

	providerClient := provider.NewClient(cfg.Provider)

	e := echo.New()
	e.Logger.SetOutput(io.Discard)
	e.Use(middleware.Recover())

	s := &Server{
		cfg:      cfg,
		provider: providerClient,
		engine:   sync.NewEngine(providerClient, nil),
		codec:    codec,
		echo:     e,
		verbose:  verbose,
	}

	if verbose {
		e.Use(s.loggingMiddleware())
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			log.Printf("Request: %s %s from %s", req.Method, req.URL.Path, req.RemoteAddr)
			return next(c)
		}
	}
}

func (s *Server) setupRoutes() {
	s.echo.GET("/link/connect", s.handleConnect)
	s.echo.GET("/link/callback", s.handleCallback)
	s.echo.POST("/link/disconnect", s.handleDisconnect)
	s.echo.POST("/api/sync", s.handleSync)
	s.echo.GET("/healthz", s.handleHealth)
}

// secureCookies is false only for plain-HTTP local development.
func (s *Server) secureCookies(c echo.Context) bool {
	return c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https"
}

func (s *Server) slots(c echo.Context) *cookieSlots {
	return newCookieSlots(c, s.secureCookies(c))
}

func (s *Server) tokenStore(c echo.Context) *token.Store {
	return token.NewStore(s.slots(c), s.codec)
}

// handleConnect issues the one-time state and redirects the user to the
// provider's authorization page.
func (s *Server) handleConnect(c echo.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "bank linking is not configured")
	}

	state, err := csrf.NewLedger(s.slots(c)).Issue()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start link flow")
	}

	return c.Redirect(http.StatusFound, s.provider.AuthURL(state))
}

// handleCallback consumes the state and exchanges the code. Every failure
// mode lands on the same generic redirect so the response does not reveal
// which check rejected the attempt.
func (s *Server) handleCallback(c echo.Context) error {
	failed := func() error {
		return c.Redirect(http.StatusFound, "/?link=failed")
	}

	if !csrf.NewLedger(s.slots(c)).Consume(c.QueryParam("state")) {
		return failed()
	}

	code := c.QueryParam("code")
	if code == "" {
		return failed()
	}

	bundle, err := s.provider.ExchangeCode(c.Request().Context(), code, s.cfg.Provider.RedirectURI)
	if err != nil {
		log.Printf("code exchange failed: %v", err)
		return failed()
	}

	if err := s.tokenStore(c).Persist(bundle); err != nil {
		log.Printf("failed to persist token bundle: %v", err)
		return failed()
	}

	return c.Redirect(http.StatusFound, "/?link=ok")
}

// handleDisconnect drops the stored bundle.
func (s *Server) handleDisconnect(c echo.Context) error {
	s.tokenStore(c).Clear()
	return c.NoContent(http.StatusNoContent)
}

// handleSync refreshes the session if needed and returns a snapshot.
func (s *Server) handleSync(c echo.Context) error {
	store := s.tokenStore(c)

	bundle := store.Read()
	if bundle == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "not_linked"})
	}

	fresh, err := token.EnsureValid(c.Request().Context(), bundle, s.provider)
	if err != nil {
		// The refresh token is dead; the caller must relink.
		store.Clear()
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "disconnected"})
	}

	if fresh != bundle {
		if err := store.Persist(fresh); err != nil {
			log.Printf("failed to persist refreshed bundle: %v", err)
		}
	}

	snapshot, err := s.engine.Sync(c.Request().Context(), fresh.AccessToken)
	if err != nil {
		log.Printf("sync failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "sync_failed"})
	}

	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Echo returns the underlying echo instance for serving and tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

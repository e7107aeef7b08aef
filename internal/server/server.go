package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mordechaipotash/talmudic-study-app/config"
	"github.com/mordechaipotash/talmudic-study-app/internal/commentary"
	"github.com/mordechaipotash/talmudic-study-app/internal/runtime"
	"github.com/mordechaipotash/talmudic-study-app/internal/sefaria"
	"github.com/mordechaipotash/talmudic-study-app/internal/store"
	"github.com/mordechaipotash/talmudic-study-app/internal/translation"
	"github.com/mordechaipotash/talmudic-study-app/internal/translator"
	"github.com/mordechaipotash/talmudic-study-app/session"
	"github.com/mordechaipotash/talmudic-study-app/session/inmemory"
	"github.com/mordechaipotash/talmudic-study-app/session/redisstore"
)

// Run wires the study service and blocks until SIGINT/SIGTERM, then shuts the
// listener down gracefully.
func Run(cfg *config.Config) error {
	logger := log.New(os.Stdout, "[HTTP] ", log.LstdFlags)

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	ctx, cancelInit := context.WithTimeout(context.Background(), 15*time.Second)
	st, err := store.NewWithDSN(ctx, dsn)
	cancelInit()
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer st.DB.Close()

	var sessions session.Store
	switch cfg.Session.Backend {
	case "redis":
		sessions, err = redisstore.NewStore(cfg.Databases.Redis.Addr(), cfg.Databases.Redis.Password, cfg.Databases.Redis.DB)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
	case "", "inmemory":
		sessions = inmemory.NewStore()
	default:
		return fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}

	if err := cfg.Providers.OpenRouter.Validate(); err != nil {
		return err
	}
	sef := sefaria.New(cfg.Sefaria)
	loader := commentary.NewLoader(sef, cfg.Study.MaxCommentaryDepth)
	svc := translation.NewService(st, translator.New(cfg.Providers.OpenRouter))

	e := newEcho(cfg, st, sef, loader, svc, sessions, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.General.Listen); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	logger.Printf("listening on %s", cfg.General.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newEcho assembles routes and middleware; split from Run so handler tests can
// build the server around fakes.
func newEcho(cfg *config.Config, st *store.Store, sef *sefaria.Client, loader *commentary.Loader, svc *translation.Service, sessions session.Store, logger *log.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.HTTPErrorHandler = jsonErrorHandler(logger)

	e.GET("/healthz", func(c echo.Context) error {
		if err := st.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	secret := []byte(cfg.General.JWTSecret)
	authn := runtime.EchoAuthMiddleware(secret)

	api := e.Group("/api")
	(&AuthHandler{Store: st, Secret: secret}).Register(api.Group("/auth"))
	(&TextsHandler{Sefaria: sef, Loader: loader, MaxDepth: cfg.Study.MaxCommentaryDepth, Logger: logger}).Register(api)

	// Navigation serves anonymous and signed-in callers alike; the optional
	// variant resolves user_id when a token is present so visits get journaled.
	optional := runtime.EchoOptionalAuthMiddleware(secret)
	(&NavigationHandler{Sessions: sessions, Store: st, SessionTTL: cfg.Session.TTL, Logger: logger}).Register(api.Group("", optional))

	translate := &TranslateHandler{Service: svc, Logger: logger}
	translate.Register(api.Group("", authn))

	return e
}

// jsonErrorHandler renders every error as a JSON envelope and logs 5xx causes.
func jsonErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal server error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			msg = fmt.Sprintf("%v", he.Message)
		}
		if code >= 500 {
			logger.Printf("%s %s -> %d: %v", c.Request().Method, c.Request().URL.Path, code, err)
		}
		if writeErr := c.JSON(code, HTTPError{Error: msg}); writeErr != nil {
			logger.Printf("writing error response: %v", writeErr)
		}
	}
}

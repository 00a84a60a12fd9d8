package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/integrations/nrecho-v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/config"
	"github.com/akave-ai/browserlog/internal/handler"
)

const (
	authRealm       = "Restricted Area"
	shutdownTimeout = 30 * time.Second
)

// Deps are the collaborators the routes are served from.
type Deps struct {
	Ingest    handler.Ingester
	Logs      handler.LogReader
	Failed    handler.FailedReader
	Artifacts handler.ArtifactReader
	// Closers are closed on Shutdown, after the HTTP server has drained.
	Closers []io.Closer
}

// Server holds the Echo app and the resources it shuts down.
type Server struct {
	Echo    *echo.Echo
	Config  *config.Config
	logger  zerolog.Logger
	closers []io.Closer
}

// New builds the Echo server and registers routes. nrApp may be nil.
func New(cfg *config.Config, logger zerolog.Logger, nrApp *newrelic.Application, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	if cfg.Ingest.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(middleware.Recover())
	if nrApp != nil {
		e.Use(nrecho.Middleware(nrApp))
	}
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		// Preflights on the receiver must reach the ingest service, which
		// answers every non-POST method with 404.
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == cfg.Ingest.Path
		},
		AllowOrigins: cfg.Server.CORSAllowedOrigins,
	}))
	e.Use(basicAuth(cfg))

	receiver := &handler.ReceiverHandler{
		Service:      deps.Ingest,
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
		Logger:       logger.With().Str("component", "receiver").Logger(),
	}
	logs := &handler.LogHandler{
		Logs:      deps.Logs,
		Failed:    deps.Failed,
		Artifacts: deps.Artifacts,
		Logger:    logger.With().Str("component", "logs").Logger(),
	}

	// Plugin-facing
	e.Any(cfg.Ingest.Path, receiver.Receive)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Operator-facing, behind basic auth
	e.GET("/logs", logs.List)
	e.GET("/logs/employees", logs.Employees)
	e.GET("/logs/export", logs.Export)
	e.GET("/logs/:id", logs.Get)
	e.GET("/logs/:id/html", logs.HTML)
	e.GET("/failed", logs.ListFailed)
	e.GET("/failed/:id/artifact", logs.Artifact)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{Echo: e, Config: cfg, logger: logger, closers: deps.Closers}
}

// basicAuth guards every route except the receiver and the health check with
// the single operator account.
func basicAuth(cfg *config.Config) echo.MiddlewareFunc {
	user := []byte(cfg.Auth.Username)
	pass := []byte(cfg.Auth.Password)
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == cfg.Ingest.Path || p == "/health"
		},
		Validator: func(u, p string, _ echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(u), user) == 1
			passOK := subtle.ConstantTimeCompare([]byte(p), pass) == 1
			return userOK && passOK, nil
		},
		Realm: authRealm,
	})
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	log := logger.With().Str("component", "http").Logger()
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogMethod:   true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// Start serves until ctx is cancelled or the listener fails. Cancelling ctx
// shuts the server down gracefully before Start returns.
func (s *Server) Start(ctx context.Context) error {
	addr := ":" + s.Config.Server.Port
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Str("receiver", s.Config.Ingest.Path).Msg("http server listening")
		errCh <- s.Echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down http server")
	return s.Shutdown(shutdownCtx)
}

// Shutdown drains in-flight requests, then closes the remaining resources.
func (s *Server) Shutdown(ctx context.Context) error {
	errs := []error{s.Echo.Shutdown(ctx)}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

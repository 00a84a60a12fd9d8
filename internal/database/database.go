package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/config"
)

const pingTimeout = 10 * time.Second

// DSN builds a postgres:// connection string from cfg.
func DSN(cfg *config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// NewPool opens and pings a connection pool. Queries are traced through New
// Relic when nrApp is set, otherwise logged through zerolog at queryLevel.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger, queryLevel string, nrApp *newrelic.Application) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxOpenConns))
	poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifetime) * time.Second
	poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleTime) * time.Second
	poolCfg.ConnConfig.Tracer = newTracer(logger, queryLevel, nrApp)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("connected to database")
	return pool, nil
}

func newTracer(logger zerolog.Logger, queryLevel string, nrApp *newrelic.Application) pgx.QueryTracer {
	if nrApp != nil {
		return nrpgx5.NewTracer()
	}
	level, err := tracelog.LogLevelFromString(queryLevel)
	if err != nil {
		level = tracelog.LogLevelWarn
	}
	return &tracelog.TraceLog{
		Logger:   zerologadapter.NewLogger(logger.With().Str("component", "pgx").Logger()),
		LogLevel: level,
	}
}

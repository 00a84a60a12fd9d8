package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/akave-ai/browserlog/internal/config"
	"github.com/akave-ai/browserlog/internal/database"
	"github.com/akave-ai/browserlog/internal/events"
	"github.com/akave-ai/browserlog/internal/ingest"
	"github.com/akave-ai/browserlog/internal/logger"
	"github.com/akave-ai/browserlog/internal/repository"
	"github.com/akave-ai/browserlog/internal/server"
	"github.com/akave-ai/browserlog/internal/storage"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(cfg.Observability)

	nrApp, err := logger.NewRelicApp(cfg.Observability)
	if err != nil {
		log.Fatal().Err(err).Msg("new relic")
	}
	if nrApp != nil {
		defer nrApp.Shutdown(10 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.RunMigrations(ctx, &cfg.Database, log); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}
	pool, err := database.NewPool(ctx, &cfg.Database, log, cfg.Observability.Logging.QueryLevel, nrApp)
	if err != nil {
		log.Fatal().Err(err).Msg("database pool")
	}

	var o3 *storage.O3Client
	if cfg.Storage != nil {
		o3, err = storage.NewO3Client(cfg.Storage.O3)
		if err != nil {
			log.Fatal().Err(err).Msg("o3 client")
		}
		if err := o3.EnsureBucket(ctx); err != nil {
			log.Warn().Err(err).Msg("o3 ensure bucket failed; artifact mirroring may fail")
		}
	}

	artifacts := storage.NewArtifacts(cfg.Ingest.FailureDir, o3)
	var closers []io.Closer
	opts := ingest.Options{
		Artifacts: artifacts,
		Logger:    log.With().Str("component", "ingest").Logger(),
	}
	if cfg.Events.Enabled() {
		pub, err := events.NewKafkaPublisher(cfg.Events, log)
		if err != nil {
			log.Fatal().Err(err).Msg("kafka publisher")
		}
		opts.Publisher = pub
		closers = append(closers, pub)
	}

	entries := repository.NewLogEntryRepository(pool)
	failures := repository.NewFailedLogRepository(pool)
	svc := ingest.NewService(ingest.NewValidator(cfg.Ingest), entries, failures, opts)

	srv := server.New(cfg, log, nrApp, server.Deps{
		Ingest:    svc,
		Logs:      entries,
		Failed:    failures,
		Artifacts: artifacts,
		Closers:   closers,
	})
	err = srv.Start(ctx)
	pool.Close()
	if err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
	log.Info().Msg("collector stopped")
}

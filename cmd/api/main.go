package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"taskplanner/api/internal/app"
	"taskplanner/api/internal/blob"
	"taskplanner/api/internal/config"
	"taskplanner/api/internal/email"
	"taskplanner/api/internal/search"
	"taskplanner/api/internal/session"
	"taskplanner/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "taskplanner-api").Logger()
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	log.Logger = logger
	return logger
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	db, dialect, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info().Str("dialect", string(dialect)).Msg("database connected")

	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		return err
	}
	dataStore := store.NewSQLStore(db, store.TxPolicy{Timeout: cfg.TxTimeout, MaxAttempts: cfg.TxMaxAttempts})

	deps := app.Dependencies{Store: dataStore, Logger: logger}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info().Msg("refresh sessions stored in redis")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err := blob.NewMinioStore(ctx, blob.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		deps.Blobs = blobs
		logger.Info().Str("bucket", cfg.MinioBucket).Msg("card files stored in minio")
	} else {
		logger.Warn().Msg("MINIO_ENDPOINT not set, card files are kept in memory")
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	searchService := search.NewService(meili, search.NewSQLSearch(db), logger)
	defer searchService.Close()
	deps.Search = searchService

	deps.Mailer = email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	service := app.New(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigins, cfg.MaxUploadBytes, logger)
	// No write timeout: event streams stay open until shutdown closes them.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(service.Events().Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		searchService.ReindexAll(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("taskplanner api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info().Msg("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

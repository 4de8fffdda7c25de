// Package main implements a Cloud Run service that checks Patreon membership
// pages and notifies when a watched tier becomes available. Each POST to
// /pollz runs one check cycle.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"patreon-tier-notifier/config"
	"patreon-tier-notifier/metrics"
	"patreon-tier-notifier/notify"
	"patreon-tier-notifier/poll"
	"patreon-tier-notifier/scraper"
	"patreon-tier-notifier/server"
	tierstore "patreon-tier-notifier/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel(),
	}))
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	recorder := metrics.NewPrometheus()
	scr := scraper.New(&http.Client{Timeout: 30 * time.Second}, logger)
	monitor := poll.New(scr, store, recorder, logger, poll.Concurrent)

	srv := server.New(&server.Config{
		Poller: monitor,
		Store:  store,
		Notifiers: func(ctx context.Context, s *config.SMSSettings) server.Deliverer {
			return notify.New(ctx, s, recorder, logger)
		},
		Metrics:    recorder.Handler(),
		Logger:     logger,
		ConfigJSON: os.Getenv("CONFIG_JSON"),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := srv.ListenAndServe(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// openStore picks the storage backend from the environment. With nothing
// configured it falls back to a local directory for development.
func openStore(ctx context.Context, logger *slog.Logger) (*tierstore.Store, func(), error) {
	localStorage := os.Getenv("LOCAL_STORAGE")
	redisAddr := os.Getenv("REDIS_ADDR")
	bucket := os.Getenv("STORAGE_BUCKET")

	// Default to local development mode if no backend specified
	if localStorage == "" && redisAddr == "" && bucket == "" {
		localStorage = tierstore.DefaultLocalPath
		logger.Info("No storage backend set, defaulting to local development mode", "storage_path", localStorage)
	}

	switch {
	case localStorage != "":
		logger.Info("Using local storage", "storage_path", localStorage)
		if err := os.MkdirAll(localStorage, 0o750); err != nil {
			return nil, nil, err
		}
		return tierstore.New(nil, "", nil, localStorage, logger), func() {}, nil

	case redisAddr != "":
		logger.Info("Using Redis storage", "addr", redisAddr)
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis not reachable at startup, continuing", "error", err)
		}
		return tierstore.New(nil, "", rdb, "", logger), func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close Redis client", "error", err)
			}
		}, nil

	default:
		logger.Info("Using Cloud Storage", "bucket", bucket)
		var opts []option.ClientOption
		if creds := os.Getenv("GOOGLE_CREDENTIALS_JSON"); creds != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		return tierstore.New(client, bucket, nil, "", logger), func() {
			if err := client.Close(); err != nil {
				logger.Error("Failed to close storage client", "error", err)
			}
		}, nil
	}
}

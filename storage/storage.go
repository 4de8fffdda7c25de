// Package storage persists the alert cache and the alert configuration.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"github.com/redis/go-redis/v9"

	"patreon-tier-notifier/config"
	"patreon-tier-notifier/tiers"
)

// Object names in the local directory and the GCS bucket.
const (
	ConfigObject = "config.json"
	CacheObject  = "alert-cache.json"
)

// Redis keys.
const (
	ConfigKey = "tier-alerter:config"
	CacheKey  = "tier-alerter:alert-cache"
)

// DefaultLocalPath is used when no backend is configured.
const DefaultLocalPath = "./data"

// ErrNotFound reports a missing object or key.
var ErrNotFound = errors.New("storage: object doesn't exist")

// Store handles persistence on one of three backends. A local path takes
// precedence over Redis, which takes precedence over GCS.
type Store struct {
	client    *storage.Client
	redis     redis.UniversalClient
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new storage handler.
func New(client *storage.Client, bucket string, rdb redis.UniversalClient, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		redis:     rdb,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// Backend names the active backend for logs.
func (s *Store) Backend() string {
	switch {
	case s.localPath != "":
		return "local"
	case s.redis != nil:
		return "redis"
	default:
		return "gcs"
	}
}

// LoadConfig reads and validates the stored configuration document.
// A missing document yields config.ErrMissing.
func (s *Store) LoadConfig(ctx context.Context) (*config.Config, error) {
	var data []byte
	var err error
	if s.localPath == "" && s.redis != nil {
		data, err = s.redis.Get(ctx, ConfigKey).Bytes()
		if errors.Is(err, redis.Nil) {
			err = ErrNotFound
		}
	} else {
		data, err = s.read(ctx, ConfigObject)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, config.ErrMissing
		}
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Configuration loaded from storage", "backend", s.Backend(), "creators", len(cfg.Creators))
	return cfg, nil
}

// LoadCache returns the persisted alert cache. A missing cache is empty.
func (s *Store) LoadCache(ctx context.Context) (tiers.Cache, error) {
	if s.localPath == "" && s.redis != nil {
		return s.loadRedisCache(ctx)
	}

	data, err := s.read(ctx, CacheObject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("No alert cache yet, starting empty", "backend", s.Backend())
			return tiers.Cache{}, nil
		}
		return nil, fmt.Errorf("load cache: %w", err)
	}

	cache := tiers.Cache{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("unmarshal cache: %w", err)
	}
	return cache, nil
}

// SaveCache replaces the persisted alert cache.
func (s *Store) SaveCache(ctx context.Context, cache tiers.Cache) error {
	if s.localPath == "" && s.redis != nil {
		return s.saveRedisCache(ctx, cache)
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := s.write(ctx, CacheObject, data); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	s.logger.Debug("Alert cache saved", "backend", s.Backend(), "entries", len(cache))
	return nil
}

func (s *Store) loadRedisCache(ctx context.Context) (tiers.Cache, error) {
	fields, err := s.redis.HGetAll(ctx, CacheKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	cache := make(tiers.Cache, len(fields))
	for k, v := range fields {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.logger.Warn("Ignoring malformed cache entry", "key", k, "value", v)
			continue
		}
		cache[k] = b
	}
	return cache, nil
}

func (s *Store) saveRedisCache(ctx context.Context, cache tiers.Cache) error {
	values := make(map[string]any, len(cache))
	for k, v := range cache {
		values[k] = strconv.FormatBool(v)
	}
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, CacheKey)
		if len(values) > 0 {
			pipe.HSet(ctx, CacheKey, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	s.logger.Debug("Alert cache saved", "backend", "redis", "entries", len(cache))
	return nil
}

// read loads a named object from the local directory or GCS.
func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	if s.localPath != "" {
		data, err := os.ReadFile(filepath.Join(s.localPath, name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		return data, nil
	}

	// Cloud Storage with retry logic for reliability
	var data []byte
	notFound := false
	err := retry.Do(
		func() error {
			r, openErr := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
			if openErr != nil {
				// Don't retry on "not found" errors
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					notFound = true
					return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
				}
				return fmt.Errorf("open storage reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					s.logger.Warn("Failed to close storage reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read from storage: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying load operation after error", "attempt", n, "object", name, "error", retryErr)
		}),
	)
	if notFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load after retries: %w", err)
	}
	return data, nil
}

// write stores a named object in the local directory or GCS.
func (s *Store) write(ctx context.Context, name string, data []byte) error {
	if s.localPath != "" {
		if err := os.MkdirAll(s.localPath, 0o750); err != nil {
			return fmt.Errorf("create local storage directory: %w", err)
		}
		target := filepath.Join(s.localPath, name)
		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		if err := os.Rename(tmp, target); err != nil {
			return fmt.Errorf("rename in local storage: %w", err)
		}
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err := retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying save operation after error", "attempt", n, "object", name, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

// Package storage abstracts the object store that holds audio chunks and
// word clips, and the key-value cache that holds completed run payloads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/lourdrickvalsote/tonguekeeper/internal/config"
)

// ErrNotFound is returned by Get and CacheGet when the key is absent.
var ErrNotFound = errors.New("storage: not found")

// Store puts bytes under a key and returns a retrieval handle (a URL the
// remote inference backend and frontend can dereference).
type Store interface {
	// Put stores data under key and returns its retrieval URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Type returns "worker", "s3", or "local".
	Type() string
}

// Cache is a best-effort key-value store for completed run payloads.
type Cache interface {
	CacheSet(ctx context.Context, key, value string, ttl time.Duration) error
	CacheGet(ctx context.Context, key string) (string, error)
}

// New builds a Store from config. Preference order: S3 when fully
// configured, otherwise the Cloudflare worker. The second return value is
// the result cache, which may be nil when the selected backend has none.
func New(cfg *config.Config, log zerolog.Logger) (Store, Cache, error) {
	if cfg.S3Enabled() {
		s3, err := NewS3Store(cfg, log)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 init: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s3.HeadBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("s3 startup check failed (bucket=%q endpoint=%q): %w",
				cfg.S3Bucket, cfg.S3Endpoint, err)
		}
		log.Info().Str("bucket", cfg.S3Bucket).Str("endpoint", cfg.S3Endpoint).Msg("s3 connection verified")
		return s3, nil, nil
	}

	if cfg.WorkerURL != "" {
		w := NewWorkerClient(cfg.WorkerURL, log)
		return w, w, nil
	}

	// Local fallback for offline runs. Only useful when the inference
	// backend can read file:// handles, i.e. it runs on the same host.
	if cfg.AudioDir != "" {
		log.Warn().Str("dir", cfg.AudioDir).Msg("no remote storage configured, using local audio directory")
		if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create audio dir: %w", err)
		}
		l := NewLocalStore(cfg.AudioDir)
		return l, l, nil
	}

	return nil, nil, fmt.Errorf("no storage backend configured")
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fundingwatch/internal/config"
)

var (
	// ErrNotFound indicates the backend holds no document yet.
	ErrNotFound = errors.New("storage: document not found")
	// ErrNotConfigured indicates the backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// BlobStore mirrors a single JSON document.
type BlobStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
}

// Nop is used when persistence is disabled: nothing is ever found and saves are discarded.
type Nop struct{}

func (Nop) Load(context.Context) ([]byte, error) { return nil, ErrNotFound }

func (Nop) Save(context.Context, []byte) error { return nil }

// Open builds the configured backend. The returned closer is never nil.
func Open(ctx context.Context, cfg config.PersistenceConfig, logger zerolog.Logger) (BlobStore, func(), error) {
	noop := func() {}
	if !cfg.Enabled() {
		return Nop{}, noop, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch cfg.Backend {
	case config.BackendJSONBin:
		return NewJSONBin(JSONBinOptions{
			BaseURL: cfg.JSONBin.BaseURL,
			BinID:   cfg.JSONBin.BinID,
			APIKey:  cfg.JSONBin.APIKey,
			Timeout: timeout,
		}, logger), noop, nil

	case config.BackendPostgres:
		store, err := OpenPostgres(ctx, cfg.Postgres, timeout)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil

	case config.BackendRedis:
		store := NewRedis(cfg.Redis, timeout)
		return store, store.Close, nil

	case config.BackendFile:
		store, err := OpenFile(cfg.File.Path, cfg.File.Key)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	}

	return nil, noop, fmt.Errorf("unsupported persistence backend %q", cfg.Backend)
}

var _ BlobStore = Nop{}

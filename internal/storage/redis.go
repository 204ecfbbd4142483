package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fundingwatch/internal/config"
)

// Redis keeps the document under a single key.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a client; connectivity is checked lazily on first use.
func NewRedis(cfg config.RedisConfig, timeout time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	key := cfg.Key
	if key == "" {
		key = "fundingwatch:state"
	}
	return &Redis{client: client, key: key}
}

// Close releases the client.
func (r *Redis) Close() {
	if r == nil || r.client == nil {
		return
	}
	_ = r.client.Close()
}

// Load reads the document key.
func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	payload, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return payload, nil
}

// Save overwrites the document key without expiry.
func (r *Redis) Save(ctx context.Context, payload []byte) error {
	if err := r.client.Set(ctx, r.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

var _ BlobStore = (*Redis)(nil)

// Package redis implements store.Backend on a Redis server, for setups where
// several assistants share one set of settings.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nadzzz/jarvis/internal/config"
)

// Backend stores each setting as a plain Redis string.
type Backend struct {
	client *redis.Client
	prefix string
}

// New connects to the configured Redis server. An unreachable server is
// logged, not fatal: every read then falls back to defaults.
func New(cfg config.RedisConfig) *Backend {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable", "addr", cfg.Addr, "error", err)
	} else {
		slog.Info("connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	}

	return &Backend{client: client, prefix: cfg.Prefix}
}

func (b *Backend) key(k string) string { return b.prefix + k }

// Load implements store.Backend.
func (b *Backend) Load(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting %s: %w", key, err)
	}
	return val, true, nil
}

// Save implements store.Backend. Settings never expire.
func (b *Backend) Save(ctx context.Context, key, value string) error {
	if err := b.client.Set(ctx, b.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Close implements store.Backend.
func (b *Backend) Close() error { return b.client.Close() }

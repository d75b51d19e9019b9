// Package ratecache fronts the rate configuration store with Redis.
package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wakala/payouts/internal/domain"
)

const key = "payouts:rate_config"

// Store is the persistent rate configuration.
type Store interface {
	GetRates(ctx context.Context) (domain.RateConfig, error)
	SaveRates(ctx context.Context, cfg domain.RateConfig) error
}

// kv is the subset of the Redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached reads through Redis and writes the saved config back on update.
// Read misses only fill an empty key, so a fill racing an update cannot
// replace the newer value. Redis failures fall back to the store; a nil
// client disables caching.
type Cached struct {
	store  Store
	client kv
	ttl    time.Duration
}

func New(store Store, client *redis.Client, ttl time.Duration) *Cached {
	c := &Cached{store: store, ttl: ttl}
	if client != nil {
		c.client = client
	}
	return c
}

// Open parses a redis:// URL and checks the server responds.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *Cached) GetRates(ctx context.Context) (domain.RateConfig, error) {
	if c.client != nil {
		data, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var cfg domain.RateConfig
			if jsonErr := json.Unmarshal(data, &cfg); jsonErr == nil {
				return cfg, nil
			}
			slog.Warn("discarding unreadable cached rates")
		case !errors.Is(err, redis.Nil):
			slog.Warn("rate cache read failed", "error", err)
		}
	}

	cfg, err := c.store.GetRates(ctx)
	if err != nil {
		return domain.RateConfig{}, err
	}

	if c.client != nil {
		if data, err := json.Marshal(cfg); err == nil {
			if err := c.client.SetNX(ctx, key, data, c.ttl).Err(); err != nil {
				slog.Warn("rate cache write failed", "error", err)
			}
		}
	}
	return cfg, nil
}

func (c *Cached) SaveRates(ctx context.Context, cfg domain.RateConfig) error {
	if err := c.store.SaveRates(ctx, cfg); err != nil {
		return err
	}
	if c.client == nil {
		return nil
	}
	data, err := json.Marshal(cfg)
	if err == nil {
		err = c.client.Set(ctx, key, data, c.ttl).Err()
	}
	if err != nil {
		slog.Warn("rate cache refresh failed, dropping key", "error", err)
		if err := c.client.Del(ctx, key).Err(); err != nil {
			slog.Warn("rate cache invalidation failed", "error", err)
		}
	}
	return nil
}

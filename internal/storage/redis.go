package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archquest/quest-engine/pkg/storage"
)

// keyPrefix namespaces engine keys so Clear never touches foreign data
// in a shared Redis.
const keyPrefix = "quest-engine:"

// Redis is the Adapter implementation backed by Redis. Save blobs have
// no TTL; progression must survive arbitrary gaps between sessions.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure Redis implements the Adapter and HealthChecker contracts.
var (
	_ storage.Adapter       = (*Redis)(nil)
	_ storage.HealthChecker = (*Redis)(nil)
)

// NewRedis creates a Redis adapter for the given address.
func NewRedis(redisURL string, logger *slog.Logger) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})
	return &Redis{client: rdb, logger: logger}
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// WaitForConnection waits for Redis to become available during startup.
func (r *Redis) WaitForConnection(ctx context.Context) error {
	const maxRetries = 30
	const retryDelay = 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func (r *Redis) GetItem(ctx context.Context, key string) (json.RawMessage, error) {
	cmd := r.client.Get(ctx, keyPrefix+key)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil // Key absent is not an error.
		}
		r.logger.Error("Redis GET failed", "key", key, "error", err)
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return json.RawMessage(cmd.Val()), nil
}

func (r *Redis) SetItem(ctx context.Context, key string, value json.RawMessage) error {
	if err := r.client.Set(ctx, keyPrefix+key, string(value), 0).Err(); err != nil {
		r.logger.Error("Redis SET failed", "key", key, "error", err)
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *Redis) RemoveItem(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		r.logger.Error("Redis DEL failed", "key", key, "error", err)
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Redis SCAN failed", "error", err)
		return fmt.Errorf("redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Error("Redis DEL failed", "keys", len(keys), "error", err)
		return fmt.Errorf("redis clear failed: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// Client exposes the underlying connection for components that share it
// (event bridge, command journal).
func (r *Redis) Client() *redis.Client {
	return r.client
}

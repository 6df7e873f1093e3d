package replay

import (
	"context"
	"fmt"
	"time"

	"school-bus/internal/general/config"
	"school-bus/internal/ports"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "schoolbus:scan:"

// RedisGuard shares the replay window between processes with SET NX PX.
type RedisGuard struct {
	client *redis.Client
	window time.Duration
}

var _ ports.ReplayGuard = (*RedisGuard)(nil)

// NewRedisClient connects and pings the configured Redis.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

func NewRedisGuard(client *redis.Client, window time.Duration) *RedisGuard {
	return &RedisGuard{client: client, window: window}
}

func (g *RedisGuard) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, redisKeyPrefix+key, 1, g.window).Result()
	if err != nil {
		return false, fmt.Errorf("replay setnx: %w", err)
	}
	return ok, nil
}

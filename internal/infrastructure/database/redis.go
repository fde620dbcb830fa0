package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tbag/core/internal/infrastructure/config"
	"github.com/tbag/core/internal/infrastructure/logger"
)

// NewRedis connects to Redis, retrying with exponential backoff
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	maxRetries := 5
	retryDelay := time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.GetAddr(),
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Infow("Redis connected", "addr", cfg.GetAddr(), "db", cfg.DB)
			return client, nil
		}
		client.Close()

		log.Warnw("Redis connection failed", "attempt", attempt, "max_attempts", maxRetries, "error", err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to Redis at %s after %d attempts", cfg.GetAddr(), maxRetries)
}

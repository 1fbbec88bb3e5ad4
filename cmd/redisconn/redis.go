package redisconn

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/arre-ops/arre_server/cmd/config"
	"github.com/redis/go-redis/v9"
)

// Connect opens the Redis connection used by the dedup window.
func Connect(cfg config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddr, err)
	}

	log.Printf("Redis connection established at %s", cfg.RedisAddr)
	return client, nil
}

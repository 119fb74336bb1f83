package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"partychat-go/pkg/log"
)

const (
	redisConnectAttempts  = 3
	redisConnectBaseDelay = 500 * time.Millisecond
)

// NewRedis constructs a Redis client and verifies the connection with a
// bounded retry loop. Each failed ping doubles the delay; after the last
// attempt the accumulated error is returned instead of retrying forever.
func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	delay := redisConnectBaseDelay
	var lastErr error
	for attempt := 1; attempt <= redisConnectAttempts; attempt++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			log.Info("Redis client connected successfully")
			return client, nil
		}
		log.Warnf("Redis ping failed (attempt %d/%d): %v", attempt, redisConnectAttempts, lastErr)
		if attempt == redisConnectAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		}
		delay *= 2
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", redisConnectAttempts, lastErr)
}

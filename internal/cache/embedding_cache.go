package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"partychat-go/pkg/log"
)

// EmbeddingCache maps normalized text to embedding vectors with a long
// TTL, since the underlying source documents rarely change.
type EmbeddingCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewEmbeddingCache creates an embedding cache over the given Redis client.
func NewEmbeddingCache(rdb *redis.Client, ttl time.Duration) *EmbeddingCache {
	return &EmbeddingCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached vector for the text, or false on a miss. Backend
// errors are logged and treated as a miss.
func (c *EmbeddingCache) Get(ctx context.Context, text string) ([]float32, bool) {
	key := EmbeddingKey(text)
	data, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warnw("[EmbeddingCache] get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	var vector []float32
	if err := json.Unmarshal([]byte(data), &vector); err != nil {
		log.Warnw("[EmbeddingCache] corrupt entry, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return vector, true
}

// Put stores the vector under the text's key. The returned error is a
// status the caller is free to ignore; a failed write only costs a future
// cache miss.
func (c *EmbeddingCache) Put(ctx context.Context, text string, vector []float32) error {
	key := EmbeddingKey(text)
	data, err := json.Marshal(vector)
	if err != nil {
		log.Warnw("[EmbeddingCache] failed to marshal vector", "key", key, "error", err)
		return err
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warnw("[EmbeddingCache] put failed", "key", key, "error", err)
		return err
	}
	return nil
}

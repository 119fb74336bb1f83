package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"partychat-go/internal/model"
	"partychat-go/pkg/log"
)

// SearchCache maps (query, party, limit, threshold) tuples to ranked
// retrieval results. Its TTL is shorter than the embedding cache's so
// stale rankings expire soon after a re-ingestion.
type SearchCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSearchCache creates a search result cache over the given Redis client.
func NewSearchCache(rdb *redis.Client, ttl time.Duration) *SearchCache {
	return &SearchCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached result list for the tuple, or false on a miss.
// Backend errors are logged and treated as a miss.
func (c *SearchCache) Get(ctx context.Context, query, partyCode string, limit int, minSimilarity float64) ([]model.RetrievalResult, bool) {
	key := SearchKey(query, partyCode, limit, minSimilarity)
	data, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warnw("[SearchCache] get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	var results []model.RetrievalResult
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		log.Warnw("[SearchCache] corrupt entry, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

// Put stores the result list under the tuple's key. The returned error is
// a status the caller is free to ignore.
func (c *SearchCache) Put(ctx context.Context, query, partyCode string, limit int, minSimilarity float64, results []model.RetrievalResult) error {
	key := SearchKey(query, partyCode, limit, minSimilarity)
	data, err := json.Marshal(results)
	if err != nil {
		log.Warnw("[SearchCache] failed to marshal results", "key", key, "error", err)
		return err
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warnw("[SearchCache] put failed", "key", key, "error", err)
		return err
	}
	return nil
}

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat-go/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestEmbeddingKeyNormalization(t *testing.T) {
	// Inputs equal after normalization must produce identical keys.
	k1 := EmbeddingKey("Climate Policy")
	k2 := EmbeddingKey("  climate\npolicy ")
	k3 := EmbeddingKey(`CLIMATE\nPOLICY`)
	assert.Equal(t, k1, k2)
	assert.Equal(t, k1, k3)

	assert.NotEqual(t, k1, EmbeddingKey("tax policy"))
}

func TestSearchKeyTuple(t *testing.T) {
	k1 := SearchKey("Climate Policy ", "AP", 8, 0.6)
	k2 := SearchKey("climate policy", "ap", 8, 0.6)
	assert.Equal(t, k1, k2)

	assert.NotEqual(t, k1, SearchKey("climate policy", "ap", 5, 0.6))
	assert.NotEqual(t, k1, SearchKey("climate policy", "ap", 8, 0.7))
	assert.NotEqual(t, k1, SearchKey("climate policy", "xx", 8, 0.6))
}

func TestSearchKeyThresholdPrecision(t *testing.T) {
	// Thresholds that agree to two decimals still get distinct keys, so
	// a list cached under a looser threshold is never served for a
	// stricter one.
	k1 := SearchKey("climate policy", "AP", 8, 0.601)
	k2 := SearchKey("climate policy", "AP", 8, 0.604)
	assert.NotEqual(t, k1, k2)

	assert.NotEqual(t,
		SearchKey("climate policy", "AP", 8, 0.6),
		SearchKey("climate policy", "AP", 8, 0.6000001))

	// The encoding stays deterministic for equal inputs.
	assert.Equal(t, k1, SearchKey("climate policy", "AP", 8, 0.601))
}

func TestEmbeddingCacheRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewEmbeddingCache(client, time.Hour)
	ctx := context.Background()

	vector := []float32{0.1, -0.25, 0.5}
	require.NoError(t, c.Put(ctx, "climate policy", vector))

	got, ok := c.Get(ctx, "Climate Policy")
	require.True(t, ok)
	require.Len(t, got, len(vector))
	for i := range vector {
		assert.InDelta(t, vector[i], got[i], 1e-6)
	}
}

func TestEmbeddingCacheMiss(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewEmbeddingCache(client, time.Hour)

	_, ok := c.Get(context.Background(), "never stored")
	assert.False(t, ok)
}

func TestEmbeddingCacheTTLExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewEmbeddingCache(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "climate policy", []float32{1}))
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "climate policy")
	assert.False(t, ok)
}

func TestEmbeddingCacheBackendErrorIsMiss(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewEmbeddingCache(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "climate policy", []float32{1}))
	mr.Close()

	_, ok := c.Get(ctx, "climate policy")
	assert.False(t, ok)

	// Put reports the failure as a status but callers may ignore it.
	assert.Error(t, c.Put(ctx, "climate policy", []float32{1}))
}

func TestSearchCacheRoundTrip(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewSearchCache(client, time.Hour)
	ctx := context.Background()

	results := []model.RetrievalResult{
		{Content: "chapter on climate", Similarity: 0.82, ChapterTitle: "Climate", PageNumber: 12},
		{Content: "energy transition", Similarity: 0.71},
	}
	require.NoError(t, c.Put(ctx, "climate policy", "AP", 8, 0.6, results))

	got, ok := c.Get(ctx, "Climate Policy ", "ap", 8, 0.6)
	require.True(t, ok)
	assert.Equal(t, results, got)
}

func TestSearchCacheDistinctTuples(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewSearchCache(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "climate policy", "AP", 8, 0.6, []model.RetrievalResult{{Content: "a", Similarity: 0.9}}))

	_, ok := c.Get(ctx, "climate policy", "AP", 4, 0.6)
	assert.False(t, ok)
}

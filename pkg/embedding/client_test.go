package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partychat-go/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.EmbeddingConfig{
		BaseURL: srv.URL,
		Model:   "test-model",
		APIKey:  "test-key",
	})
}

func TestCreateEmbeddingNormalizesInput(t *testing.T) {
	var gotInput []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotInput = req.Input
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{0.1, 0.2}}},
		})
	})

	vec, err := client.CreateEmbedding(context.Background(), "  Climate\\nPolicy ")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
	require.Len(t, gotInput, 1)
	assert.Equal(t, "climate policy", gotInput[0])
}

func TestCreateEmbeddingsOrderPreserving(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{1}},
				{"embedding": []float32{2}},
				{"embedding": []float32{3}},
			},
		})
	})

	vectors, err := client.CreateEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{1}, vectors[0])
	assert.Equal(t, []float32{2}, vectors[1])
	assert.Equal(t, []float32{3}, vectors[2])
}

func TestCreateEmbeddingsCountMismatchFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{1}}},
		})
	})

	_, err := client.CreateEmbeddings(context.Background(), []string{"a", "b"})
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
}

func TestCreateEmbeddingsNon200IsProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.CreateEmbeddings(context.Background(), []string{"a"})
	var provErr *ProviderError
	require.True(t, errors.As(err, &provErr))
}

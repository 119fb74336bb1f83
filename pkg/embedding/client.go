// Package embedding provides a client for an OpenAI-compatible embedding
// endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"partychat-go/internal/config"
	"partychat-go/pkg/log"
	"partychat-go/pkg/textnorm"
)

// ProviderError wraps any failure of the embedding provider: transport,
// non-200 status, or a malformed response. Batch calls are all-or-nothing;
// callers must not assume partial success.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("embedding provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Client defines the interface for an embedding client.
type Client interface {
	// CreateEmbedding embeds a single text. The input is normalized the
	// same way the embedding cache derives its keys, so the cache key and
	// the provider input come from the same canonical form.
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// CreateEmbeddings embeds a batch of texts, order-preserving and 1:1
	// with the input.
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client for the configured endpoint.
func NewClient(cfg config.EmbeddingConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbedding calls the embeddings API for a single normalized text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{textnorm.Normalize(text)})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// CreateEmbeddings calls the embeddings API with a batch of texts.
func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &ProviderError{Err: fmt.Errorf("empty input batch")}
	}
	log.Infof("[EmbeddingClient] calling embeddings API, model: %s, batch: %d", c.cfg.Model, len(texts))

	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      texts,
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("failed to marshal embedding request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &ProviderError{Err: fmt.Errorf("failed to create embedding request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] embeddings API call failed: %v", err)
		return nil, &ProviderError{Err: fmt.Errorf("failed to call embedding api: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] embeddings API returned non-200 status: %s", resp.Status)
		return nil, &ProviderError{Err: fmt.Errorf("embedding api returned non-200 status: %s", resp.Status)}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] failed to decode embeddings response: %v", err)
		return nil, &ProviderError{Err: fmt.Errorf("failed to decode embedding response: %w", err)}
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Errorf("[EmbeddingClient] embeddings response count mismatch: got %d, want %d", len(embeddingResp.Data), len(texts))
		return nil, &ProviderError{Err: fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddingResp.Data), len(texts))}
	}

	vectors := make([][]float32, len(embeddingResp.Data))
	for i, d := range embeddingResp.Data {
		if len(d.Embedding) == 0 {
			return nil, &ProviderError{Err: fmt.Errorf("received empty embedding at index %d", i)}
		}
		vectors[i] = d.Embedding
	}

	log.Infof("[EmbeddingClient] embeddings received, dimensions: %d", len(vectors[0]))
	return vectors, nil
}

package service

import (
	"context"
	"errors"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"partychat-go/internal/config"
	"partychat-go/internal/model"
	"partychat-go/internal/repository"
	"partychat-go/pkg/embedding"
	"partychat-go/pkg/log"
	"partychat-go/pkg/textnorm"
)

// RetrievalOptions overrides the configured retrieval defaults for a
// single call.
type RetrievalOptions struct {
	Limit         int
	MinSimilarity float64
}

// EmbeddingCache is the embedding cache surface the aggregator needs.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Put(ctx context.Context, text string, vector []float32) error
}

// SearchResultCache is the search cache surface the aggregator needs.
type SearchResultCache interface {
	Get(ctx context.Context, query, partyCode string, limit int, minSimilarity float64) ([]model.RetrievalResult, bool)
	Put(ctx context.Context, query, partyCode string, limit int, minSimilarity float64, results []model.RetrievalResult) error
}

// ContextService builds grounded retrieval contexts for the chat layer.
type ContextService interface {
	// BuildContext runs the single-party retrieval flow for the latest
	// user question in the conversation. It returns nil (without error)
	// when there is no party name, no extractable question, or no result
	// above the similarity threshold.
	BuildContext(ctx context.Context, partyName string, messages []model.ChatMessage, partyCode, traceID string, opts *RetrievalOptions) (*model.PartyContext, error)
	// BuildComparisonContext fans retrieval out across the given party
	// codes. It never fails: unknown codes and per-party errors yield
	// absent entries and the aggregate carries whatever subset produced
	// content.
	BuildComparisonContext(ctx context.Context, partyCodes []string, question, traceID string) *model.ComparisonContext
}

type contextService struct {
	embedCache    EmbeddingCache
	searchCache   SearchResultCache
	embedder      embedding.Client
	embeddingRepo repository.EmbeddingRepository
	partyRepo     repository.PartyRepository
	cfg           config.RetrievalConfig
}

// NewContextService creates a new ContextService instance.
func NewContextService(
	embedCache EmbeddingCache,
	searchCache SearchResultCache,
	embedder embedding.Client,
	embeddingRepo repository.EmbeddingRepository,
	partyRepo repository.PartyRepository,
	cfg config.RetrievalConfig,
) ContextService {
	return &contextService{
		embedCache:    embedCache,
		searchCache:   searchCache,
		embedder:      embedder,
		embeddingRepo: embeddingRepo,
		partyRepo:     partyRepo,
		cfg:           cfg,
	}
}

// BuildContext runs the single-party retrieval flow.
func (s *contextService) BuildContext(ctx context.Context, partyName string, messages []model.ChatMessage, partyCode, traceID string, opts *RetrievalOptions) (*model.PartyContext, error) {
	if partyName == "" {
		log.Infow("[ContextService] no party name, skipping retrieval", "trace_id", traceID)
		return nil, nil
	}

	question := model.LatestQuestion(messages)
	if question == "" {
		log.Infow("[ContextService] no extractable question, skipping retrieval", "trace_id", traceID)
		return nil, nil
	}

	limit, minSimilarity := s.params(opts)
	log.Infow("[ContextService] building context",
		"party", partyCode, "limit", limit, "min_similarity", minSimilarity, "trace_id", traceID)

	results, err := s.retrieve(ctx, question, partyCode, limit, minSimilarity, traceID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		log.Infow("[ContextService] no results above threshold", "party", partyCode, "trace_id", traceID)
		return nil, nil
	}

	return formatContext(partyName, partyCode, results), nil
}

// retrieve is the cache-through retrieval flow shared by both modes:
// search cache, then embedding cache, then provider, then vector search,
// writing back into both caches on the way out.
func (s *contextService) retrieve(ctx context.Context, question, partyCode string, limit int, minSimilarity float64, traceID string) ([]model.RetrievalResult, error) {
	if results, ok := s.searchCache.Get(ctx, question, partyCode, limit, minSimilarity); ok {
		log.Infow("[ContextService] search cache hit", "party", partyCode, "results", len(results), "trace_id", traceID)
		return results, nil
	}

	normalized := textnorm.Normalize(question)
	vector, ok := s.embedCache.Get(ctx, normalized)
	if !ok {
		var err error
		vector, err = s.embedder.CreateEmbedding(ctx, question)
		if err != nil {
			return nil, err
		}
		_ = s.embedCache.Put(ctx, normalized, vector)
	}

	results, err := s.embeddingRepo.SearchSimilar(ctx, vector, partyCode, limit, minSimilarity)
	if err != nil {
		return nil, err
	}

	_ = s.searchCache.Put(ctx, question, partyCode, limit, minSimilarity, results)
	return results, nil
}

// BuildComparisonContext fans retrieval out across party codes.
func (s *contextService) BuildComparisonContext(ctx context.Context, partyCodes []string, question, traceID string) *model.ComparisonContext {
	entries := make([]model.ComparisonEntry, len(partyCodes))

	g, gctx := errgroup.WithContext(ctx)
	for i, code := range partyCodes {
		i, code := i, code
		g.Go(func() error {
			entries[i] = model.ComparisonEntry{
				PartyCode: code,
				Context:   s.comparisonEntry(gctx, code, question, traceID),
			}
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, e := range entries {
		if e.Context != nil {
			total += e.Context.ResultsCount
		}
	}

	log.Infow("[ContextService] comparison context built",
		"parties", len(partyCodes), "total_results", total, "trace_id", traceID)
	return &model.ComparisonContext{PartyContexts: entries, TotalResultsCount: total}
}

// comparisonEntry resolves one party's context. Anything unexpected is
// caught and converted into an absent context; a single party must never
// take the aggregate down.
func (s *contextService) comparisonEntry(ctx context.Context, code, question, traceID string) (pc *model.PartyContext) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("[ContextService] panic during party lookup, yielding absent context",
				"party", code, "panic", r, "trace_id", traceID)
			pc = nil
		}
	}()

	party, err := s.partyRepo.FindByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infow("[ContextService] unknown party code, yielding absent context",
				"party", code, "trace_id", traceID)
		} else {
			log.Errorw("[ContextService] party lookup failed, yielding absent context",
				"party", code, "error", err, "trace_id", traceID)
		}
		return nil
	}

	limit, minSimilarity := s.params(nil)
	results, ok := s.searchCache.Get(ctx, question, code, limit, minSimilarity)
	if !ok {
		// A sibling request or an ongoing ingestion is expected to
		// populate the cache shortly; poll with backoff instead of
		// recomputing the embedding and search for every party at once.
		results, ok = s.pollSearchCache(ctx, question, code, limit, minSimilarity, traceID)
	}
	if !ok || len(results) == 0 {
		return nil
	}

	return formatContext(party.Name, party.ShortCode, results)
}

// pollSearchCache retries the cache lookup with exponential backoff until
// it hits, the attempts are exhausted, or the context is cancelled.
func (s *contextService) pollSearchCache(ctx context.Context, question, code string, limit int, minSimilarity float64, traceID string) ([]model.RetrievalResult, bool) {
	attempts := s.cfg.CachePollAttempts
	delay := s.cfg.CachePollBaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Infow("[ContextService] cache poll cancelled", "party", code, "trace_id", traceID)
			return nil, false
		case <-time.After(delay):
		}
		if results, ok := s.searchCache.Get(ctx, question, code, limit, minSimilarity); ok {
			log.Infow("[ContextService] cache poll succeeded",
				"party", code, "attempt", attempt, "trace_id", traceID)
			return results, true
		}
		delay *= 2
	}

	log.Infow("[ContextService] cache poll exhausted, yielding absent context",
		"party", code, "attempts", attempts, "trace_id", traceID)
	return nil, false
}

func (s *contextService) params(opts *RetrievalOptions) (int, float64) {
	limit := s.cfg.DefaultLimit
	minSimilarity := s.cfg.DefaultMinSimilarity
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.MinSimilarity > 0 {
			minSimilarity = opts.MinSimilarity
		}
	}
	return limit, minSimilarity
}

// formatContext assigns 1-based sequence ids in search order, classifies
// each result and computes the rounded mean similarity.
func formatContext(partyName, partyCode string, results []model.RetrievalResult) *model.PartyContext {
	sources := make([]model.ContextSource, len(results))
	sum := 0.0
	for i, r := range results {
		sources[i] = model.ContextSource{
			ID:           i + 1,
			Content:      r.Content,
			Similarity:   round2(r.Similarity),
			Relevance:    ClassifyRelevance(r.Similarity),
			ChapterTitle: r.ChapterTitle,
			PageNumber:   r.PageNumber,
		}
		sum += r.Similarity
	}

	return &model.PartyContext{
		PartyName:     partyName,
		PartyCode:     partyCode,
		Sources:       sources,
		ResultsCount:  len(results),
		AvgSimilarity: round2(sum / float64(len(results))),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

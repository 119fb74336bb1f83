// Package repository provides the data access layer.
package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"partychat-go/internal/model"
)

// StoreQueryError wraps a failed similarity search: connectivity loss or a
// malformed query against the vector store.
type StoreQueryError struct {
	Err error
}

func (e *StoreQueryError) Error() string {
	return fmt.Sprintf("vector store query: %v", e.Err)
}

func (e *StoreQueryError) Unwrap() error {
	return e.Err
}

// EmbeddingRepository defines the operations on the program_embeddings
// table, including the vector similarity search.
type EmbeddingRepository interface {
	BatchCreate(embeddings []*model.ProgramEmbedding) error
	DeleteByProgramID(programID uint) error
	CountByProgramID(programID uint) (int64, error)
	// SearchSimilar returns the embeddings of the given party's programs
	// whose cosine similarity to the query vector strictly exceeds
	// minSimilarity, ordered by descending similarity, at most limit rows.
	// Filtering, ordering and limiting all happen inside the query; the
	// corpus is unbounded by design and must never be sorted in the
	// application.
	SearchSimilar(ctx context.Context, queryVector []float32, partyCode string, limit int, minSimilarity float64) ([]model.RetrievalResult, error)
}

type embeddingRepository struct {
	db *gorm.DB
}

// NewEmbeddingRepository creates a new EmbeddingRepository instance.
func NewEmbeddingRepository(db *gorm.DB) EmbeddingRepository {
	return &embeddingRepository{db: db}
}

// BatchCreate inserts embedding records in batches of 100.
func (r *embeddingRepository) BatchCreate(embeddings []*model.ProgramEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	return r.db.CreateInBatches(embeddings, 100).Error
}

// DeleteByProgramID removes all embedding records of a program.
func (r *embeddingRepository) DeleteByProgramID(programID uint) error {
	return r.db.Where("program_id = ?", programID).Delete(&model.ProgramEmbedding{}).Error
}

// CountByProgramID counts the embedding records of a program.
func (r *embeddingRepository) CountByProgramID(programID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.ProgramEmbedding{}).Where("program_id = ?", programID).Count(&count).Error
	return count, err
}

const searchSimilarSQL = `
SELECT pe.content,
       1 - (pe.embedding <=> ?) AS similarity,
       pe.chapter_title,
       pe.page_number
FROM program_embeddings pe
JOIN party_programs pp ON pp.id = pe.program_id
JOIN parties p ON p.id = pp.party_id
WHERE LOWER(p.short_code) = LOWER(?)
  AND 1 - (pe.embedding <=> ?) > ?
ORDER BY similarity DESC
LIMIT ?`

// SearchSimilar runs the cosine similarity query against pgvector.
func (r *embeddingRepository) SearchSimilar(ctx context.Context, queryVector []float32, partyCode string, limit int, minSimilarity float64) ([]model.RetrievalResult, error) {
	vec := pgvector.NewVector(queryVector)

	var results []model.RetrievalResult
	err := r.db.WithContext(ctx).
		Raw(searchSimilarSQL, vec, partyCode, vec, minSimilarity, limit).
		Scan(&results).Error
	if err != nil {
		return nil, &StoreQueryError{Err: err}
	}
	return results, nil
}

package model

import "github.com/pgvector/pgvector-go"

// ProgramEmbedding stores one chunk's text together with its vector.
// The program id is denormalized onto the row so the similarity search
// can filter by party with a single join. The vector dimensionality is
// fixed by the embedding provider and must never be mixed with another
// provider's dimensionality in the same table.
type ProgramEmbedding struct {
	ID           uint            `gorm:"primaryKey;autoIncrement"`
	ProgramID    uint            `gorm:"not null;index"`
	Content      string          `gorm:"type:text;not null"`
	Embedding    pgvector.Vector `gorm:"type:vector(1536)"`
	ChapterTitle string          `gorm:"type:varchar(255)"`
	PageNumber   int
}

// TableName sets the table name for this model.
func (ProgramEmbedding) TableName() string {
	return "program_embeddings"
}

// RetrievalResult is one row returned by the similarity search. It is
// ephemeral: produced per query and persisted only in the search cache.
type RetrievalResult struct {
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
	ChapterTitle string  `json:"chapterTitle,omitempty"`
	PageNumber   int     `json:"pageNumber,omitempty"`
}

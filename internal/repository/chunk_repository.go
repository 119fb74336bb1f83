package repository

import (
	"gorm.io/gorm"

	"partychat-go/internal/model"
)

// ChunkRepository defines the operations on the program_chunks table.
// Chunks are immutable after creation and replaced wholesale when their
// program is reprocessed.
type ChunkRepository interface {
	BatchCreate(chunks []*model.ProgramChunk) error
	DeleteByProgramID(programID uint) error
	FindByProgramID(programID uint) ([]*model.ProgramChunk, error)
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository instance.
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

// BatchCreate inserts chunk records in batches of 100.
func (r *chunkRepository) BatchCreate(chunks []*model.ProgramChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// DeleteByProgramID removes all chunks of a program.
func (r *chunkRepository) DeleteByProgramID(programID uint) error {
	return r.db.Where("program_id = ?", programID).Delete(&model.ProgramChunk{}).Error
}

// FindByProgramID returns the chunks of a program in insertion order.
func (r *chunkRepository) FindByProgramID(programID uint) ([]*model.ProgramChunk, error) {
	var chunks []*model.ProgramChunk
	err := r.db.Where("program_id = ?", programID).Order("id").Find(&chunks).Error
	return chunks, err
}

package model

import "time"

// Processing status values for a party program. A program moves
// pending -> processing -> completed or failed; re-ingesting a completed
// program is a no-op unless forced.
const (
	ProgramStatusPending    = "pending"
	ProgramStatusProcessing = "processing"
	ProgramStatusCompleted  = "completed"
	ProgramStatusFailed     = "failed"
)

// PartyProgram is a party's program document and its ingestion state.
type PartyProgram struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PartyID         uint      `gorm:"not null;index" json:"partyId"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Year            int       `gorm:"not null" json:"year"`
	SourcePath      string    `gorm:"type:varchar(512);not null;uniqueIndex" json:"sourcePath"`
	FullText        string    `gorm:"type:text" json:"-"`
	PageCount       int       `json:"pageCount"`
	Status          string    `gorm:"type:varchar(20);not null;default:pending" json:"status"`
	ProcessingError string    `gorm:"type:text" json:"processingError,omitempty"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName sets the table name for this model.
func (PartyProgram) TableName() string {
	return "party_programs"
}

// ProgramChunk is a bounded span of a program's extracted text, the unit
// of embedding. Chunks are created in bulk during ingestion and replaced
// wholesale when the program is reprocessed.
type ProgramChunk struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ProgramID    uint   `gorm:"not null;index" json:"programId"`
	Content      string `gorm:"type:text;not null" json:"content"`
	ChapterTitle string `gorm:"type:varchar(255)" json:"chapterTitle,omitempty"`
	PageNumber   int    `json:"pageNumber,omitempty"`
}

// TableName sets the table name for this model.
func (ProgramChunk) TableName() string {
	return "program_chunks"
}

package repository

import (
	"gorm.io/gorm"

	"partychat-go/internal/model"
)

// ProgramRepository defines the operations on the party_programs table.
type ProgramRepository interface {
	FindOrCreateBySourcePath(program *model.PartyProgram) (*model.PartyProgram, error)
	FindByID(id uint) (*model.PartyProgram, error)
	FindAll() ([]model.PartyProgram, error)
	UpdateStatus(id uint, status string, processingError string) error
	Update(program *model.PartyProgram) error
}

type programRepository struct {
	db *gorm.DB
}

// NewProgramRepository creates a new ProgramRepository instance.
func NewProgramRepository(db *gorm.DB) ProgramRepository {
	return &programRepository{db: db}
}

// FindOrCreateBySourcePath returns the existing program for the source
// path or creates it in pending state.
func (r *programRepository) FindOrCreateBySourcePath(program *model.PartyProgram) (*model.PartyProgram, error) {
	var existing model.PartyProgram
	err := r.db.Where("source_path = ?", program.SourcePath).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	program.Status = model.ProgramStatusPending
	if err := r.db.Create(program).Error; err != nil {
		return nil, err
	}
	return program, nil
}

// FindByID returns the program with the given id.
func (r *programRepository) FindByID(id uint) (*model.PartyProgram, error) {
	var program model.PartyProgram
	err := r.db.First(&program, id).Error
	if err != nil {
		return nil, err
	}
	return &program, nil
}

// FindAll returns all programs, newest first.
func (r *programRepository) FindAll() ([]model.PartyProgram, error) {
	var programs []model.PartyProgram
	err := r.db.Order("year DESC, id").Find(&programs).Error
	return programs, err
}

// UpdateStatus sets the processing status and error message of a program.
func (r *programRepository) UpdateStatus(id uint, status string, processingError string) error {
	return r.db.Model(&model.PartyProgram{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"processing_error": processingError,
		}).Error
}

// Update saves the full program record.
func (r *programRepository) Update(program *model.PartyProgram) error {
	return r.db.Save(program).Error
}

package repository

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"partychat-go/internal/model"
)

// PartyRepository defines the operations on the parties reference table.
type PartyRepository interface {
	Seed(parties []model.Party) error
	FindAll() ([]model.Party, error)
	FindByCode(code string) (*model.Party, error)
}

type partyRepository struct {
	db *gorm.DB
}

// NewPartyRepository creates a new PartyRepository instance.
func NewPartyRepository(db *gorm.DB) PartyRepository {
	return &partyRepository{db: db}
}

// Seed upserts the static party reference data by short code. Called once
// on startup.
func (r *partyRepository) Seed(parties []model.Party) error {
	if len(parties) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "short_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "color"}),
	}).Create(&parties).Error
}

// FindAll returns all parties.
func (r *partyRepository) FindAll() ([]model.Party, error) {
	var parties []model.Party
	err := r.db.Order("name").Find(&parties).Error
	return parties, err
}

// FindByCode looks up a party by its short code, case-insensitively.
func (r *partyRepository) FindByCode(code string) (*model.Party, error) {
	var party model.Party
	err := r.db.Where("LOWER(short_code) = ?", strings.ToLower(code)).First(&party).Error
	if err != nil {
		return nil, err
	}
	return &party, nil
}

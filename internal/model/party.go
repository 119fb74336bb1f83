// Package model defines the database models and the DTOs shared between
// the service and handler layers.
package model

// Party is the static reference entry under which programs and their
// embeddings are grouped. Seeded once on startup from the config.
type Party struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"type:varchar(100);not null" json:"name"`
	ShortCode string `gorm:"type:varchar(10);not null;uniqueIndex" json:"shortCode"`
	Color     string `gorm:"type:varchar(7)" json:"color"`
}

// TableName sets the table name for this model.
func (Party) TableName() string {
	return "parties"
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/twalsh/matchup-edge/pkg/database"
)

// PickSheet is a saved snapshot of a picks board, frozen at save time so
// later refreshes never rewrite it.
type PickSheet struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Season    int            `gorm:"not null;index:idx_pick_sheets_window" json:"season"`
	Week      int            `gorm:"not null;index:idx_pick_sheets_window" json:"week"`
	Picks     datatypes.JSON `gorm:"not null" json:"picks"`
	Note      string         `gorm:"size:500" json:"note"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (PickSheet) TableName() string {
	return "pick_sheets"
}

// CreatePickSheet persists one saved sheet
func CreatePickSheet(db *database.DB, sheet *PickSheet) error {
	return db.Create(sheet).Error
}

// GetPickSheet fetches a saved sheet by id
func GetPickSheet(db *database.DB, id uuid.UUID) (*PickSheet, error) {
	var sheet PickSheet
	err := db.First(&sheet, "id = ?", id).Error
	return &sheet, err
}

// ListPickSheets returns the saved sheets for a window, newest first
func ListPickSheets(db *database.DB, season, week int) ([]PickSheet, error) {
	var sheets []PickSheet
	err := db.Where("season = ? AND week = ?", season, week).
		Order("created_at DESC").
		Find(&sheets).Error
	return sheets, err
}

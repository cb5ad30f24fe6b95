package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/twalsh/matchup-edge/pkg/database"
)

// TeamInfo stores full team information
type TeamInfo struct {
	Abbreviation string    `gorm:"primaryKey;size:10" json:"abbreviation"`
	FullName     string    `gorm:"size:100;not null" json:"full_name"`
	Conference   string    `gorm:"size:10" json:"conference"` // AFC, NFC
	Division     string    `gorm:"size:10" json:"division"`   // East, North, South, West
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MetricDefinition stores the metric glossary surfaced next to the board
type MetricDefinition struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Name       string         `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Category   string         `gorm:"size:50;not null" json:"category"` // offense, defense, provider, derived
	Definition string         `gorm:"type:text;not null" json:"definition"`
	Aliases    pq.StringArray `gorm:"type:text[]" json:"aliases"`
	Examples   datatypes.JSON `json:"examples"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// GetTeamByAbbreviation fetches team info by abbreviation
func GetTeamByAbbreviation(db *database.DB, abbreviation string) (*TeamInfo, error) {
	var team TeamInfo
	err := db.Where("abbreviation = ?", abbreviation).First(&team).Error
	return &team, err
}

// ListTeams returns all teams ordered by abbreviation
func ListTeams(db *database.DB) ([]TeamInfo, error) {
	var teams []TeamInfo
	err := db.Order("abbreviation ASC").Find(&teams).Error
	return teams, err
}

// GetMetricDefinitions fetches glossary entries with an optional category filter
func GetMetricDefinitions(db *database.DB, category string) ([]MetricDefinition, error) {
	var defs []MetricDefinition
	query := db.Model(&MetricDefinition{})

	if category != "" {
		query = query.Where("category = ?", category)
	}

	err := query.Order("name ASC").Find(&defs).Error
	return defs, err
}

// SearchMetricDefinitions matches names and definitions case-insensitively
func SearchMetricDefinitions(db *database.DB, search string) ([]MetricDefinition, error) {
	var defs []MetricDefinition
	pattern := "%" + strings.ToLower(search) + "%"
	err := db.Where("lower(name) LIKE ? OR lower(definition) LIKE ?", pattern, pattern).
		Order("name ASC").
		Find(&defs).Error
	return defs, err
}

package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/twalsh/matchup-edge/pkg/database"
)

// UploadRecord archives a raw metric upload for operator forensics. The
// session registry, not this table, is what refreshes read from.
type UploadRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	Format      string    `gorm:"size:20;not null" json:"format"`
	Season      int       `json:"season"`
	ThroughWeek int       `json:"through_week"`
	RowCount    int       `json:"row_count"`
	ColumnCount int       `json:"column_count"`
	Payload     []byte    `gorm:"type:bytea" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (UploadRecord) TableName() string {
	return "upload_records"
}

// CreateUploadRecord persists one upload archive row
func CreateUploadRecord(db *database.DB, record *UploadRecord) error {
	return db.Create(record).Error
}

// GetUploadRecord fetches an archived upload by id
func GetUploadRecord(db *database.DB, id uuid.UUID) (*UploadRecord, error) {
	var record UploadRecord
	err := db.First(&record, "id = ?", id).Error
	return &record, err
}

// ListUploadRecords returns recent uploads, newest first
func ListUploadRecords(db *database.DB, limit int) ([]UploadRecord, error) {
	var records []UploadRecord
	err := db.Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

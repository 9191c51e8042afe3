package models

import "time"

// SyncLog persists a per-cycle summary for the status API and
// troubleshooting. The full report is kept in memory only.
type SyncLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Trigger     string    `gorm:"type:varchar(20);not null" json:"trigger"` // "manual", "interval", "rule"
	Status      string    `gorm:"type:varchar(30);not null" json:"status"`  // "success", "completed_with_errors", "failed"
	Channels    int       `gorm:"not null" json:"channels"`
	Collections int       `gorm:"not null" json:"collections"`
	Added       int       `gorm:"not null" json:"added"`
	Removed     int       `gorm:"not null" json:"removed"`
	Warnings    int       `gorm:"not null" json:"warnings"`
	ErrorText   *string   `gorm:"type:text" json:"error_text,omitempty"`
	StartedAt   time.Time `gorm:"not null;index" json:"started_at"`
	DurationMS  int64     `gorm:"not null" json:"duration_ms"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for SyncLog
func (SyncLog) TableName() string {
	return "sync_logs"
}

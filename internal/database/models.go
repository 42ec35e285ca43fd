package database

import "time"

// AuditLog is one recorded operation against a remote connection.
type AuditLog struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      string    `gorm:"uniqueIndex;size:36" json:"event_id"`
	ConnectionID string    `gorm:"index;not null" json:"connection_id"`
	EventType    string    `gorm:"index;not null" json:"event_type"`
	Host         string    `json:"host"`
	Username     string    `json:"username"`
	Details      string    `json:"details"`
	Duration     int64     `json:"duration_ms"` // milliseconds
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

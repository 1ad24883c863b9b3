package models

import "time"

// ReadMarker records how far a user has read within a conversation. One row
// per (user, conversation); last_read_at is monotonically non-decreasing.
type ReadMarker struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       string    `gorm:"size:64;index:idx_read_marker,unique;not null" json:"user_id"`
	Conversation string    `gorm:"size:160;index:idx_read_marker,unique;not null" json:"conversation"`
	LastReadAt   time.Time `gorm:"not null" json:"last_read_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package models

import "time"

// MessageReaction is a (message, user, emoji) triple. The unique index keeps
// concurrent toggles from ever producing duplicate rows.
type MessageReaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"index:idx_message_reaction,unique;not null" json:"message_id"`
	UserID    string    `gorm:"size:64;index:idx_message_reaction,unique;not null" json:"user_id"`
	Emoji     string    `gorm:"size:32;index:idx_message_reaction,unique;not null" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

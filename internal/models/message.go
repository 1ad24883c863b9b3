package models

import "time"

// Message kinds. File and image messages carry a storage reference, text and
// link messages carry body content only.
const (
	MessageTypeText  = "text"
	MessageTypeFile  = "file"
	MessageTypeImage = "image"
	MessageTypeLink  = "link"
)

// Message is a channel message. Channel and sender never change after
// creation; edits touch content and updated_at only.
type Message struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ChannelID   uint       `gorm:"index;not null" json:"channel_id"`
	SenderID    string     `gorm:"size:64;index;not null" json:"sender_id"`
	Content     string     `gorm:"type:text" json:"content"`
	MessageType string     `gorm:"size:16;not null;default:text" json:"message_type"`
	FileURL     string     `gorm:"size:512" json:"file_url,omitempty"`
	FileMIME    string     `gorm:"size:100" json:"file_mime,omitempty"`
	IsPinned    bool       `gorm:"not null;default:false;index" json:"is_pinned"`
	PinnedAt    *time.Time `json:"pinned_at,omitempty"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DirectMessage is a message between two users outside any channel.
type DirectMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SenderID    string    `gorm:"size:64;index;not null" json:"sender_id"`
	RecipientID string    `gorm:"size:64;index;not null" json:"recipient_id"`
	Content     string    `gorm:"type:text" json:"content"`
	MessageType string    `gorm:"size:16;not null;default:text" json:"message_type"`
	FileURL     string    `gorm:"size:512" json:"file_url,omitempty"`
	FileMIME    string    `gorm:"size:100" json:"file_mime,omitempty"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation returns the DM pair key for the message.
func (m DirectMessage) Conversation() Conversation {
	return DirectConversation(m.SenderID, m.RecipientID)
}

// ThreadMessage is a reply attached to a parent message. Replies cannot be
// nested: the parent must be a top-level message. ChannelID is set for
// replies under channel messages and nil for replies under direct messages;
// together with ParentMessageID it names the parent unambiguously, since
// channel and direct messages number their rows independently.
type ThreadMessage struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ParentMessageID uint      `gorm:"index;not null" json:"parent_message_id"`
	ChannelID       *uint     `gorm:"index" json:"channel_id,omitempty"`
	SenderID        string    `gorm:"size:64;index;not null" json:"sender_id"`
	Content         string    `gorm:"type:text" json:"content"`
	MessageType     string    `gorm:"size:16;not null;default:text" json:"message_type"`
	FileURL         string    `gorm:"size:512" json:"file_url,omitempty"`
	FileMIME        string    `gorm:"size:100" json:"file_mime,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

// ValidMessageType reports whether the kind is one of the allowed variants.
func ValidMessageType(kind string) bool {
	switch kind {
	case MessageTypeText, MessageTypeFile, MessageTypeImage, MessageTypeLink:
		return true
	default:
		return false
	}
}

package dto

import (
	"time"

	"github.com/relaydesk/relay-go-api/internal/models"
)

// MessageSendRequest is the payload to send a message into a conversation.
type MessageSendRequest struct {
	Conversation string `json:"conversation" validate:"required,min=3,max=160"`
	Content      string `json:"content" validate:"omitempty,max=4000"`
	Type         string `json:"type" validate:"omitempty,oneof=text file image link"`
	FileURL      string `json:"file_url" validate:"omitempty,url,max=512"`
	FileMIME     string `json:"file_mime" validate:"omitempty,max=100"`
}

// MessageEditRequest updates the body of an existing message. Message ids are
// only unique within a conversation's table, so the conversation key is part
// of the address.
type MessageEditRequest struct {
	Conversation string `json:"conversation" validate:"required,min=3,max=160"`
	Content      string `json:"content" validate:"required,min=1,max=4000"`
}

// MessageHistoryQuery represents query filters for scroll-back pagination.
// Cursor is the created_at of the oldest message already loaded.
type MessageHistoryQuery struct {
	Conversation string     `query:"conversation" validate:"required,min=3,max=160"`
	Cursor       *time.Time `query:"cursor"`
	Limit        int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ThreadReplyCreateRequest creates a reply under a parent message. The
// conversation key scopes the parent id to its table.
type ThreadReplyCreateRequest struct {
	Conversation    string `json:"conversation" validate:"required,min=3,max=160"`
	ParentMessageID uint   `json:"parent_message_id" validate:"required"`
	Content         string `json:"content" validate:"omitempty,max=4000"`
	Type            string `json:"type" validate:"omitempty,oneof=text file image link"`
	FileURL         string `json:"file_url" validate:"omitempty,url,max=512"`
	FileMIME        string `json:"file_mime" validate:"omitempty,max=100"`
}

// MessageResponse is the serialized representation of a conversation message.
// Channel messages and direct messages share this shape; the conversation key
// tells them apart.
type MessageResponse struct {
	ID           uint       `json:"id"`
	Conversation string     `json:"conversation"`
	SenderID     string     `json:"sender_id"`
	RecipientID  string     `json:"recipient_id,omitempty"`
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	FileURL      string     `json:"file_url,omitempty"`
	FileMIME     string     `json:"file_mime,omitempty"`
	IsPinned     bool       `json:"is_pinned,omitempty"`
	PinnedAt     *time.Time `json:"pinned_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewMessageResponse converts a channel message model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	return MessageResponse{
		ID:           message.ID,
		Conversation: models.ChannelConversation(message.ChannelID).String(),
		SenderID:     message.SenderID,
		Content:      message.Content,
		Type:         message.MessageType,
		FileURL:      message.FileURL,
		FileMIME:     message.FileMIME,
		IsPinned:     message.IsPinned,
		PinnedAt:     message.PinnedAt,
		CreatedAt:    message.CreatedAt,
		UpdatedAt:    message.UpdatedAt,
	}
}

// NewMessageResponseSlice converts a slice of channel messages into DTOs.
func NewMessageResponseSlice(messages []models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}

// NewDirectMessageResponse converts a direct message model into a DTO.
func NewDirectMessageResponse(message models.DirectMessage) MessageResponse {
	return MessageResponse{
		ID:           message.ID,
		Conversation: message.Conversation().String(),
		SenderID:     message.SenderID,
		RecipientID:  message.RecipientID,
		Content:      message.Content,
		Type:         message.MessageType,
		FileURL:      message.FileURL,
		FileMIME:     message.FileMIME,
		CreatedAt:    message.CreatedAt,
		UpdatedAt:    message.UpdatedAt,
	}
}

// NewDirectMessageResponseSlice converts direct messages into DTOs.
func NewDirectMessageResponseSlice(messages []models.DirectMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewDirectMessageResponse(message))
	}
	return out
}

// ThreadReplyResponse describes a serialized thread reply.
type ThreadReplyResponse struct {
	ID              uint      `json:"id"`
	ParentMessageID uint      `json:"parent_message_id"`
	Conversation    string    `json:"conversation,omitempty"`
	SenderID        string    `json:"sender_id"`
	Content         string    `json:"content"`
	Type            string    `json:"type"`
	FileURL         string    `json:"file_url,omitempty"`
	FileMIME        string    `json:"file_mime,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewThreadReplyResponse converts a thread reply model into a DTO.
func NewThreadReplyResponse(reply models.ThreadMessage) ThreadReplyResponse {
	response := ThreadReplyResponse{
		ID:              reply.ID,
		ParentMessageID: reply.ParentMessageID,
		SenderID:        reply.SenderID,
		Content:         reply.Content,
		Type:            reply.MessageType,
		FileURL:         reply.FileURL,
		FileMIME:        reply.FileMIME,
		CreatedAt:       reply.CreatedAt,
	}
	if reply.ChannelID != nil {
		response.Conversation = models.ChannelConversation(*reply.ChannelID).String()
	}
	return response
}

// NewThreadReplyResponseSlice converts thread replies into DTOs.
func NewThreadReplyResponseSlice(replies []models.ThreadMessage) []ThreadReplyResponse {
	out := make([]ThreadReplyResponse, 0, len(replies))
	for _, reply := range replies {
		out = append(out, NewThreadReplyResponse(reply))
	}
	return out
}

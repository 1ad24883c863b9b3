package dto

import (
	"time"

	"github.com/relaydesk/relay-go-api/internal/models"
)

// ChannelCreateRequest is the payload to create a channel. Metadata is
// free-form but must conform to the channel metadata schema.
type ChannelCreateRequest struct {
	Name        string                 `json:"name" validate:"required,min=1,max=50"`
	Description string                 `json:"description" validate:"omitempty,max=200"`
	IsPrivate   bool                   `json:"is_private"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// ChannelDeleteRequest carries the out-of-band confirmation for the
// destructive cascade delete: the caller must echo the channel name.
type ChannelDeleteRequest struct {
	Confirm string `json:"confirm" validate:"required"`
}

// ChannelResponse is the serialized representation of a channel.
type ChannelResponse struct {
	ID             uint              `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	IsPrivate      bool              `json:"is_private"`
	OrganizationID string            `json:"organization_id"`
	CreatedBy      string            `json:"created_by"`
	Conversation   string            `json:"conversation"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewChannelResponse converts a model into a DTO.
func NewChannelResponse(channel models.Channel) ChannelResponse {
	response := ChannelResponse{
		ID:             channel.ID,
		Name:           channel.Name,
		Description:    channel.Description,
		IsPrivate:      channel.IsPrivate,
		OrganizationID: channel.OrganizationID,
		CreatedBy:      channel.CreatedBy,
		Conversation:   models.ChannelConversation(channel.ID).String(),
		CreatedAt:      channel.CreatedAt,
		UpdatedAt:      channel.UpdatedAt,
	}
	if channel.Metadata != nil {
		response.Metadata = make(map[string]string)
		for key, value := range channel.Metadata {
			if str, ok := value.(string); ok {
				response.Metadata[key] = str
			}
		}
	}
	return response
}

// NewChannelResponseSlice converts a slice of models into DTOs.
func NewChannelResponseSlice(channels []models.Channel) []ChannelResponse {
	out := make([]ChannelResponse, 0, len(channels))
	for _, channel := range channels {
		out = append(out, NewChannelResponse(channel))
	}
	return out
}

package dto

import (
	"time"

	"github.com/relaydesk/relay-go-api/internal/models"
)

// ReactionToggleRequest toggles an emoji reaction on a message.
type ReactionToggleRequest struct {
	MessageID uint   `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,min=1,max=32"`
}

// ReactionToggleResponse reports the post-toggle state of the triple.
type ReactionToggleResponse struct {
	MessageID uint   `json:"message_id"`
	Emoji     string `json:"emoji"`
	Applied   bool   `json:"applied"`
}

// ReactionResponse is the serialized representation of a reaction row.
type ReactionResponse struct {
	MessageID uint      `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// NewReactionResponseSlice converts reaction models into DTOs.
func NewReactionResponseSlice(reactions []models.MessageReaction) []ReactionResponse {
	out := make([]ReactionResponse, 0, len(reactions))
	for _, reaction := range reactions {
		out = append(out, ReactionResponse{
			MessageID: reaction.MessageID,
			UserID:    reaction.UserID,
			Emoji:     reaction.Emoji,
			CreatedAt: reaction.CreatedAt,
		})
	}
	return out
}

// PinToggleRequest pins or unpins a message.
type PinToggleRequest struct {
	Pinned bool `json:"pinned"`
}

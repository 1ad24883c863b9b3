package dto

import "time"

// MarkReadRequest moves the caller's read marker for a conversation.
type MarkReadRequest struct {
	Conversation string `json:"conversation" validate:"required,min=3,max=160"`
}

// UnreadCountResponse reports the unread count for one conversation.
type UnreadCountResponse struct {
	Conversation string `json:"conversation"`
	Unread       int64  `json:"unread"`
}

// UnreadSummaryResponse is the bulk sidebar-badge variant: unread counts for
// every conversation of the caller, computed in one aggregate pass.
type UnreadSummaryResponse struct {
	Channels map[uint]int64   `json:"channels"`
	Directs  map[string]int64 `json:"directs"`
}

// TypingRenewRequest renews the caller's ephemeral typing indicator.
type TypingRenewRequest struct {
	Conversation string `json:"conversation" validate:"required,min=3,max=160"`
}

// TypingStateResponse lists who is currently typing in a conversation.
type TypingStateResponse struct {
	Conversation string    `json:"conversation"`
	UserIDs      []string  `json:"user_ids"`
	ObservedAt   time.Time `json:"observed_at"`
}

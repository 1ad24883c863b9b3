package realtime

import "time"

// Entity identifies which table a change event refers to.
type Entity string

// Operation identifies the row-level mutation kind.
type Operation string

const (
	EntityMessage    Entity = "message"
	EntityReaction   Entity = "reaction"
	EntityReadMarker Entity = "read_marker"

	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Event is one row-level change on a conversation partition. Events for a
// single conversation are delivered in feed order; no ordering holds across
// conversations.
type Event struct {
	ConversationID string    `json:"conversation_id"`
	Entity         Entity    `json:"entity"`
	Operation      Operation `json:"operation"`
	RowID          uint      `json:"row_id"`
	Source         string    `json:"source,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

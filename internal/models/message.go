package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message persisted in a conversation.
// IDs are ULIDs, so lexicographic order matches creation order.
type Message struct {
	ID             string    `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender"`
	Body           string    `json:"msg"`
	CreatedAt      time.Time `json:"created_at"`
}

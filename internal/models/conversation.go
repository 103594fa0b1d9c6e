package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents a two-party message thread. It is created
// implicitly on the first message exchanged between two users.
type Conversation struct {
	ID          uuid.UUID `json:"id"`
	InitiatorID uuid.UUID `json:"chat_initiator"`
	RecipientID uuid.UUID `json:"chat_recipient"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasParticipant reports whether the given user is one of the two parties.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.InitiatorID == userID || c.RecipientID == userID
}

// ConversationSummary is a conversation row decorated with the most recent
// message, as returned by the chat list endpoint. PeerOnline reflects the
// other participant's presence mark and is always false without Redis.
type ConversationSummary struct {
	ID              uuid.UUID  `json:"id"`
	InitiatorID     uuid.UUID  `json:"chat_initiator"`
	RecipientID     uuid.UUID  `json:"chat_recipient"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
	PeerOnline      bool       `json:"peer_online"`
}

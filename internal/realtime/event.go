package realtime

import (
	"github.com/google/uuid"

	"github.com/provsalt/eldercare/internal/models"
)

// EventType distinguishes the message lifecycle variants of a chat event.
type EventType string

const (
	MessageCreated EventType = "message_created"
	MessageUpdated EventType = "message_updated"
	MessageDeleted EventType = "message_deleted"
)

// Event is an ephemeral notification of a committed message mutation,
// delivered to sockets subscribed to the conversation's channel. Events
// are never queued or replayed; a disconnected client resynchronizes with
// a full message list fetch.
type Event struct {
	ChatID    uuid.UUID `json:"chatId"`
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
	Message   string    `json:"message,omitempty"`
	Sender    string    `json:"sender,omitempty"`
}

// Created builds a message_created event from a persisted message.
func Created(msg *models.Message) Event {
	return Event{
		ChatID:    msg.ConversationID,
		Type:      MessageCreated,
		MessageID: msg.ID,
		Message:   msg.Body,
		Sender:    msg.SenderID.String(),
	}
}

// Updated builds a message_updated event carrying the replacement body.
func Updated(chatID uuid.UUID, messageID, body string) Event {
	return Event{ChatID: chatID, Type: MessageUpdated, MessageID: messageID, Message: body}
}

// Deleted builds a message_deleted event.
func Deleted(chatID uuid.UUID, messageID string) Event {
	return Event{ChatID: chatID, Type: MessageDeleted, MessageID: messageID}
}

// Broadcaster publishes chat events to subscribers of a conversation.
// Callers publish only after the corresponding store mutation has
// committed.
type Broadcaster interface {
	Publish(evt Event)
}

// Frame is the wire envelope for every message sent to a socket.
type Frame struct {
	Event   string `json:"event"`
	Payload Event  `json:"payload"`
}

// chatUpdateEvent is the single event name the server publishes.
const chatUpdateEvent = "chat_update"

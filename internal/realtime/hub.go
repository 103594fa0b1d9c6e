// Package realtime pushes chat events to connected WebSocket clients,
// scoped by conversation. Delivery is at-most-once and best-effort: a
// slow or disconnected subscriber never blocks the publisher.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/provsalt/eldercare/internal/metrics"
)

// client is one connected socket. Frames queue on the buffered send
// channel; the socket's write pump drains it.
type client struct {
	id     string
	userID uuid.UUID
	send   chan []byte
	chats  map[uuid.UUID]bool
}

// Hub manages socket subscriptions and fans events out per conversation.
//
// The run loop is the single broadcast source, so subscribers of one
// conversation observe events in publish order. There is no ordering
// guarantee across conversations.
type Hub struct {
	logger zerolog.Logger

	clients map[string]*client
	// chats maps conversation id to the set of subscribed client ids.
	chats map[uuid.UUID]map[string]bool

	register   chan *client
	unregister chan *client
	broadcast  chan Event

	mu sync.RWMutex
}

// NewHub creates a hub. Run must be started before events are published.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[string]*client),
		chats:      make(map[uuid.UUID]map[string]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 256),
	}
}

// Run processes registration and broadcast traffic until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			metrics.SocketsConnected.Inc()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				h.removeLocked(c)
			}
			h.mu.Unlock()
			metrics.SocketsConnected.Dec()

		case evt := <-h.broadcast:
			h.dispatch(evt)

		case <-ctx.Done():
			h.logger.Debug().Msg("hub stopping")
			return
		}
	}
}

// removeLocked deletes a client and its subscriptions. Callers hold h.mu.
func (h *Hub) removeLocked(c *client) {
	delete(h.clients, c.id)
	close(c.send)
	for chatID := range c.chats {
		if subs, ok := h.chats[chatID]; ok {
			delete(subs, c.id)
			if len(subs) == 0 {
				delete(h.chats, chatID)
			}
		}
	}
}

// dispatch delivers an event to every subscriber of its conversation.
// A client whose buffer is full is dropped rather than blocking delivery.
func (h *Hub) dispatch(evt Event) {
	data, err := json.Marshal(Frame{Event: chatUpdateEvent, Payload: evt})
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal chat event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.chats[evt.ChatID]
	if !ok {
		return
	}
	for id := range subs {
		c, exists := h.clients[id]
		if !exists {
			continue
		}
		select {
		case c.send <- data:
			metrics.EventsDelivered.WithLabelValues(string(evt.Type)).Inc()
		default:
			h.logger.Warn().Str("client", id).Msg("send buffer full, dropping client")
			h.removeLocked(c)
		}
	}
}

// Publish queues an event for fan-out. It never blocks: when the hub is
// saturated the event is dropped, consistent with best-effort delivery.
func (h *Hub) Publish(evt Event) {
	select {
	case h.broadcast <- evt:
		metrics.EventsPublished.WithLabelValues(string(evt.Type)).Inc()
	default:
		h.logger.Warn().Str("chat", evt.ChatID.String()).Msg("broadcast queue full, event dropped")
	}
}

// Subscribe adds a client to a conversation's channel.
func (h *Hub) Subscribe(c *client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.chats[chatID] == nil {
		h.chats[chatID] = make(map[string]bool)
	}
	h.chats[chatID][c.id] = true
	c.chats[chatID] = true
}

// Unsubscribe removes a client from a conversation's channel.
func (h *Hub) Unsubscribe(c *client, chatID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.chats[chatID]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(h.chats, chatID)
		}
	}
	delete(c.chats, chatID)
}

// SubscriberCount returns how many sockets are subscribed to a conversation.
func (h *Hub) SubscriberCount(chatID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}

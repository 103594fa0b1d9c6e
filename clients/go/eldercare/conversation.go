package eldercare

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// localIDPrefix marks optimistic entries. Server IDs are ULIDs, so the
// prefix can never collide with a confirmed message.
const localIDPrefix = "local-"

// ConversationView maintains the in-memory ordered message list for one
// displayed conversation, merging optimistic sends, server confirmations
// and broadcast events.
//
// Reconciliation model: a send appends an optimistic entry immediately;
// confirmation triggers a full authoritative re-fetch that replaces the
// list wholesale; a failed send removes the optimistic entry by its local
// id. Broadcast events patch the list incrementally. The optimistic entry
// and the broadcast of the user's own message can coexist briefly; the
// re-fetch collapses the duplicate within one round trip.
type ConversationView struct {
	client *Client
	chatID string

	mu       sync.Mutex
	messages []Message
}

// NewConversationView creates a view over one conversation.
func NewConversationView(client *Client, chatID string) *ConversationView {
	return &ConversationView{client: client, chatID: chatID}
}

// ChatID returns the conversation this view displays.
func (v *ConversationView) ChatID() string { return v.chatID }

// Refresh replaces the local list with the server's authoritative state.
func (v *ConversationView) Refresh(ctx context.Context) error {
	messages, err := v.client.ListMessages(ctx, v.chatID)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.messages = messages
	v.mu.Unlock()
	return nil
}

// Send appends an optimistic entry, posts the message, and reconciles:
// on success the list is re-fetched wholesale, on failure the optimistic
// entry is removed and the list reads as if the send never happened.
func (v *ConversationView) Send(ctx context.Context, body string) error {
	localID := localIDPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)

	v.mu.Lock()
	v.messages = append(v.messages, Message{
		ID:     localID,
		Msg:    body,
		Sender: v.client.UserID(),
	})
	v.mu.Unlock()

	if _, err := v.client.SendMessage(ctx, v.chatID, body); err != nil {
		v.removeByID(localID)
		return fmt.Errorf("send message: %w", err)
	}

	// The full re-fetch is the authoritative merge step; it discards the
	// optimistic entry together with any transient duplicate from our own
	// broadcast event.
	return v.Refresh(ctx)
}

// ApplyEvent patches the list from a broadcast event. Events for other
// conversations are ignored.
func (v *ConversationView) ApplyEvent(evt ChatEvent) {
	if evt.ChatID != v.chatID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	switch evt.Type {
	case EventMessageCreated:
		v.messages = append(v.messages, Message{
			ID:     evt.MessageID,
			Msg:    evt.Message,
			Sender: evt.Sender,
		})
	case EventMessageUpdated:
		for i := range v.messages {
			if v.messages[i].ID == evt.MessageID {
				v.messages[i].Msg = evt.Message
				break
			}
		}
	case EventMessageDeleted:
		kept := v.messages[:0]
		for _, m := range v.messages {
			if m.ID != evt.MessageID {
				kept = append(kept, m)
			}
		}
		v.messages = kept
	}
}

// Messages returns a snapshot of the current ordered list.
func (v *ConversationView) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()

	snapshot := make([]Message, len(v.messages))
	copy(snapshot, v.messages)
	return snapshot
}

func (v *ConversationView) removeByID(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	kept := v.messages[:0]
	for _, m := range v.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	v.messages = kept
}

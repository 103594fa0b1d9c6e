package eldercare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeChatServer serves a single conversation's message list and accepts
// or rejects sends, standing in for the real API.
type fakeChatServer struct {
	mu          sync.Mutex
	messages    []Message
	rejectSends bool
	nextID      int
}

func (s *fakeChatServer) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(s.messages))
		case http.MethodPost:
			if s.rejectSends {
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"error":"not a participant of this conversation"}`))
				return
			}
			var req struct {
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			s.nextID++
			msg := Message{
				ID:     fmt.Sprintf("01HSERVER%04d", s.nextID),
				Msg:    req.Message,
				Sender: "sender-1",
			}
			s.messages = append(s.messages, msg)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			require.NoError(t, json.NewEncoder(w).Encode(SendResponse{
				ID: msg.ID, ChatID: "chat-1", Msg: msg.Msg, Sender: msg.Sender,
			}))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newTestView(t *testing.T, server *fakeChatServer) *ConversationView {
	t.Helper()
	srv := httptest.NewServer(server.handler(t))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL)
	client.userID = "sender-1"
	return NewConversationView(client, "chat-1")
}

func TestSendSuccessConvergesToServerState(t *testing.T) {
	req := require.New(t)
	server := &fakeChatServer{
		messages: []Message{{ID: "01HAAA", Msg: "earlier", Sender: "sender-2"}},
	}
	view := newTestView(t, server)
	req.NoError(view.Refresh(context.Background()))

	req.NoError(view.Send(context.Background(), "hello"))

	messages := view.Messages()
	req.Len(messages, 2)
	req.Equal("earlier", messages[0].Msg)
	req.Equal("hello", messages[1].Msg)
	// The optimistic entry was replaced by the confirmed one.
	for _, m := range messages {
		req.False(strings.HasPrefix(m.ID, localIDPrefix), "local id leaked: %s", m.ID)
	}
}

func TestSendFailureRevertsOptimisticEntry(t *testing.T) {
	req := require.New(t)
	server := &fakeChatServer{
		messages:    []Message{{ID: "01HAAA", Msg: "earlier", Sender: "sender-2"}},
		rejectSends: true,
	}
	view := newTestView(t, server)
	req.NoError(view.Refresh(context.Background()))
	before := view.Messages()

	err := view.Send(context.Background(), "will be rejected")
	req.Error(err)

	var apiErr *APIError
	req.ErrorAs(err, &apiErr)
	req.Equal(http.StatusForbidden, apiErr.StatusCode)

	// The list reads as if the send never happened.
	req.Equal(before, view.Messages())
}

func TestApplyEventPatchesList(t *testing.T) {
	req := require.New(t)
	view := NewConversationView(NewClient("http://unused"), "chat-1")

	view.ApplyEvent(ChatEvent{
		ChatID: "chat-1", Type: EventMessageCreated,
		MessageID: "m1", Message: "first", Sender: "sender-2",
	})
	view.ApplyEvent(ChatEvent{
		ChatID: "chat-1", Type: EventMessageCreated,
		MessageID: "m2", Message: "second", Sender: "sender-2",
	})
	req.Len(view.Messages(), 2)

	view.ApplyEvent(ChatEvent{
		ChatID: "chat-1", Type: EventMessageUpdated,
		MessageID: "m1", Message: "first, edited",
	})
	messages := view.Messages()
	req.Equal("first, edited", messages[0].Msg)
	req.Equal("second", messages[1].Msg)

	view.ApplyEvent(ChatEvent{
		ChatID: "chat-1", Type: EventMessageDeleted, MessageID: "m1",
	})
	messages = view.Messages()
	req.Len(messages, 1)
	req.Equal("m2", messages[0].ID)
}

func TestApplyEventIgnoresOtherConversations(t *testing.T) {
	req := require.New(t)
	view := NewConversationView(NewClient("http://unused"), "chat-1")

	view.ApplyEvent(ChatEvent{
		ChatID: "chat-1", Type: EventMessageCreated,
		MessageID: "m1", Message: "ours",
	})
	view.ApplyEvent(ChatEvent{
		ChatID: "chat-9", Type: EventMessageCreated,
		MessageID: "m2", Message: "someone else's",
	})
	view.ApplyEvent(ChatEvent{
		ChatID: "chat-9", Type: EventMessageDeleted, MessageID: "m1",
	})

	messages := view.Messages()
	req.Len(messages, 1)
	req.Equal("m1", messages[0].ID)
	req.Equal("ours", messages[0].Msg)
}

func TestApplyEventUpdateForUnknownMessageIsNoop(t *testing.T) {
	req := require.New(t)
	view := NewConversationView(NewClient("http://unused"), "chat-1")

	view.ApplyEvent(ChatEvent{
		ChatID: "chat-1", Type: EventMessageUpdated,
		MessageID: "missing", Message: "ghost",
	})
	req.Empty(view.Messages())
}

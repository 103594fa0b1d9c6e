package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/provsalt/eldercare/internal/api/middleware"
	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/realtime"
	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

// recordingBroadcaster captures published events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBroadcaster) Publish(evt realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBroadcaster) Events() []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]realtime.Event, len(b.events))
	copy(out, b.events)
	return out
}

type chatFixture struct {
	handler     *Handler
	db          *store.SQLiteStore
	broadcaster *recordingBroadcaster
	alice       *models.User
	bob         *models.User
	carol       *models.User
	conv        *models.Conversation
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	alice, err := db.CreateUser(ctx, "Alice", "alice@example.com", "hash", "en", models.RoleUser)
	require.NoError(t, err)
	bob, err := db.CreateUser(ctx, "Bob", "bob@example.com", "hash", "en", models.RoleUser)
	require.NoError(t, err)
	carol, err := db.CreateUser(ctx, "Carol", "carol@example.com", "hash", "en", models.RoleUser)
	require.NoError(t, err)

	conv, err := db.GetOrCreateConversation(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	broadcaster := &recordingBroadcaster{}
	issuer := token.NewIssuer([]byte("handler_test_secret"), time.Hour)
	h := NewHandler(db, nil, issuer, broadcaster)

	return &chatFixture{
		handler:     h,
		db:          db,
		broadcaster: broadcaster,
		alice:       alice,
		bob:         bob,
		carol:       carol,
		conv:        conv,
	}
}

// router mounts the chat routes with the given caller pre-authenticated,
// so URL parameters resolve the same way they do in production.
func (f *chatFixture) router(caller *models.User) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), caller)))
		})
	})
	r.Get("/api/chats", f.handler.ListChats)
	r.Post("/api/chats", f.handler.StartChat)
	r.Get("/api/chats/{chatId}", f.handler.GetChatMessages)
	r.Post("/api/chats/{chatId}", f.handler.SendMessage)
	r.Put("/api/chats/{chatId}/{messageId}", f.handler.UpdateMessage)
	r.Delete("/api/chats/{chatId}/{messageId}", f.handler.DeleteMessage)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestSendMessagePersistsThenBroadcasts(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	router := f.router(f.alice)

	w := doJSON(t, router, http.MethodPost, "/api/chats/"+f.conv.ID.String(), `{"message":"hello"}`)
	req.Equal(http.StatusCreated, w.Code)

	var resp SendMessageResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.Equal("hello", resp.Msg)
	req.Equal(f.alice.ID.String(), resp.Sender)

	// The event corresponds to the durable message: same id, published
	// after the insert committed.
	events := f.broadcaster.Events()
	req.Len(events, 1)
	req.Equal(realtime.MessageCreated, events[0].Type)
	req.Equal(f.conv.ID, events[0].ChatID)
	req.Equal(resp.ID, events[0].MessageID)

	stored, err := f.db.GetMessage(context.Background(), resp.ID)
	req.NoError(err)
	req.Equal("hello", stored.Body)
}

func TestSendMessageNonParticipantForbidden(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	router := f.router(f.carol)

	w := doJSON(t, router, http.MethodPost, "/api/chats/"+f.conv.ID.String(), `{"message":"let me in"}`)
	req.Equal(http.StatusForbidden, w.Code)
	req.Empty(f.broadcaster.Events())
}

func TestSendMessageValidation(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	router := f.router(f.alice)

	w := doJSON(t, router, http.MethodPost, "/api/chats/"+f.conv.ID.String(), `{"message":""}`)
	req.Equal(http.StatusBadRequest, w.Code)
	req.Empty(f.broadcaster.Events())
}

func TestGetChatMessagesOrdered(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	bodies := []string{"one", "two", "three"}
	for _, b := range bodies {
		_, err := f.db.AppendMessage(ctx, f.conv.ID, f.alice.ID, b)
		req.NoError(err)
	}

	w := doJSON(t, f.router(f.bob), http.MethodGet, "/api/chats/"+f.conv.ID.String(), "")
	req.Equal(http.StatusOK, w.Code)

	var messages []MessageResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &messages))
	req.Len(messages, len(bodies))
	for i, m := range messages {
		req.Equal(bodies[i], m.Msg)
	}
}

func TestGetChatMessagesNotFound(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	w := doJSON(t, f.router(f.alice), http.MethodGet, "/api/chats/00000000-0000-0000-0000-000000000009", "")
	req.Equal(http.StatusNotFound, w.Code)
}

func TestStartChatCreatesConversation(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	router := f.router(f.alice)

	w := doJSON(t, router, http.MethodPost, "/api/chats",
		`{"recipient_id":"`+f.carol.ID.String()+`","message":"hi carol"}`)
	req.Equal(http.StatusCreated, w.Code)

	var resp SendMessageResponse
	req.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	req.NotEmpty(resp.ChatID)

	chats, err := f.db.ListConversationsForUser(context.Background(), f.carol.ID)
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal("hi carol", chats[0].LastMessage)
}

func TestStartChatUnknownRecipient(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)

	w := doJSON(t, f.router(f.alice), http.MethodPost, "/api/chats",
		`{"recipient_id":"b71d2cb0-788b-4afd-8e61-e1e1c22a7d14","message":"hi"}`)
	req.Equal(http.StatusNotFound, w.Code)
}

func TestUpdateMessageSenderOnly(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	msg, err := f.db.AppendMessage(ctx, f.conv.ID, f.alice.ID, "original")
	req.NoError(err)
	path := "/api/chats/" + f.conv.ID.String() + "/" + msg.ID

	// Bob participates but did not send the message.
	w := doJSON(t, f.router(f.bob), http.MethodPut, path, `{"message":"hijack"}`)
	req.Equal(http.StatusForbidden, w.Code)

	w = doJSON(t, f.router(f.alice), http.MethodPut, path, `{"message":"edited"}`)
	req.Equal(http.StatusOK, w.Code)

	events := f.broadcaster.Events()
	req.Len(events, 1)
	req.Equal(realtime.MessageUpdated, events[0].Type)
	req.Equal("edited", events[0].Message)

	stored, err := f.db.GetMessage(ctx, msg.ID)
	req.NoError(err)
	req.Equal("edited", stored.Body)
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	msg, err := f.db.AppendMessage(ctx, f.conv.ID, f.alice.ID, "to be removed")
	req.NoError(err)
	path := "/api/chats/" + f.conv.ID.String() + "/" + msg.ID

	w := doJSON(t, f.router(f.bob), http.MethodDelete, path, "")
	req.Equal(http.StatusForbidden, w.Code)

	w = doJSON(t, f.router(f.alice), http.MethodDelete, path, "")
	req.Equal(http.StatusOK, w.Code)

	events := f.broadcaster.Events()
	req.Len(events, 1)
	req.Equal(realtime.MessageDeleted, events[0].Type)
	req.Equal(msg.ID, events[0].MessageID)

	_, err = f.db.GetMessage(ctx, msg.ID)
	req.ErrorIs(err, store.ErrNotFound)
}

func TestListChats(t *testing.T) {
	req := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.db.AppendMessage(ctx, f.conv.ID, f.bob.ID, "latest")
	req.NoError(err)

	w := doJSON(t, f.router(f.alice), http.MethodGet, "/api/chats", "")
	req.Equal(http.StatusOK, w.Code)

	var chats []models.ConversationSummary
	req.NoError(json.Unmarshal(w.Body.Bytes(), &chats))
	req.Len(chats, 1)
	req.Equal(f.conv.ID, chats[0].ID)
	req.Equal("latest", chats[0].LastMessage)

	// A user with no conversations gets an empty list, not null.
	w = doJSON(t, f.router(f.carol), http.MethodGet, "/api/chats", "")
	req.Equal(http.StatusOK, w.Code)
	req.Equal("[]\n", w.Body.String())
}

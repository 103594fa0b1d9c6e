package eldercare

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/provsalt/eldercare/internal/api"
	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/realtime"
	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

// testBackend runs the full server stack (router, store, hub) against an
// in-memory database so client behavior is exercised end to end.
type testBackend struct {
	server *httptest.Server
	db     *store.SQLiteStore
	hub    *realtime.Hub
	alice  *models.User
	bob    *models.User
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(db.Close)

	issuer := token.NewIssuer([]byte("client_test_secret"), time.Hour)

	hub := realtime.NewHub(zerolog.Nop())
	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	go hub.Run(hubCtx)

	router := api.NewRouter(zerolog.Nop(), db, nil, issuer, hub)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	alice, err := db.CreateUser(ctx, "Alice", "alice@example.com", string(hash), "en", models.RoleUser)
	require.NoError(t, err)
	bob, err := db.CreateUser(ctx, "Bob", "bob@example.com", string(hash), "en", models.RoleUser)
	require.NoError(t, err)

	return &testBackend{server: server, db: db, hub: hub, alice: alice, bob: bob}
}

func (b *testBackend) login(t *testing.T, email string) *Client {
	t.Helper()
	client := NewClient(b.server.URL)
	_, err := client.Login(context.Background(), email, "password123")
	require.NoError(t, err)
	return client
}

func TestClientEndToEnd(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := newTestBackend(t)

	alice := backend.login(t, "alice@example.com")
	bob := backend.login(t, "bob@example.com")

	// Alice opens the conversation.
	first, err := alice.StartChat(ctx, backend.bob.ID.String(), "hello bob")
	req.NoError(err)
	req.NotEmpty(first.ChatID)
	chatID := first.ChatID

	// Bob sees it in his chat list.
	chats, err := bob.ListChats(ctx)
	req.NoError(err)
	req.Len(chats, 1)
	req.Equal(chatID, chats[0].ID)
	req.Equal("hello bob", chats[0].LastMessage)

	// Bob subscribes to the live feed before Alice sends again.
	events := make(chan ChatEvent, 16)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub, err := bob.Subscribe(subCtx, func(evt ChatEvent) { events <- evt })
	req.NoError(err)
	req.NoError(sub.Join(chatID))

	chatUUID, err := uuid.Parse(chatID)
	req.NoError(err)
	req.Eventually(func() bool {
		return backend.hub.SubscriberCount(chatUUID) == 1
	}, 2*time.Second, 10*time.Millisecond, "join was not processed")

	// Property under test: Bob learns of Alice's message through the
	// socket alone, without issuing another fetch.
	sent, err := alice.SendMessage(ctx, chatID, "are you there?")
	req.NoError(err)

	evt := waitForEvent(t, events)
	req.Equal(EventMessageCreated, evt.Type)
	req.Equal(chatID, evt.ChatID)
	req.Equal(sent.ID, evt.MessageID)
	req.Equal("are you there?", evt.Message)
	req.Equal(backend.alice.ID.String(), evt.Sender)

	// Edits and deletions arrive as patches too.
	_, err = alice.UpdateMessage(ctx, chatID, sent.ID, "are you around?")
	req.NoError(err)
	evt = waitForEvent(t, events)
	req.Equal(EventMessageUpdated, evt.Type)
	req.Equal("are you around?", evt.Message)

	req.NoError(alice.DeleteMessage(ctx, chatID, sent.ID))
	evt = waitForEvent(t, events)
	req.Equal(EventMessageDeleted, evt.Type)
	req.Equal(sent.ID, evt.MessageID)

	// After leaving, Bob stops receiving events for the conversation.
	req.NoError(sub.Leave(chatID))
	req.Eventually(func() bool {
		return backend.hub.SubscriberCount(chatUUID) == 0
	}, 2*time.Second, 10*time.Millisecond, "leave was not processed")

	_, err = alice.SendMessage(ctx, chatID, "talking to myself")
	req.NoError(err)
	select {
	case evt := <-events:
		t.Fatalf("received event after leave: %+v", evt)
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop after cancel")
	}
}

func TestClientViewReconciliation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	backend := newTestBackend(t)

	alice := backend.login(t, "alice@example.com")
	bob := backend.login(t, "bob@example.com")

	first, err := alice.StartChat(ctx, backend.bob.ID.String(), "hi")
	req.NoError(err)
	chatID := first.ChatID

	bobView := NewConversationView(bob, chatID)
	req.NoError(bobView.Refresh(ctx))
	req.Len(bobView.Messages(), 1)

	req.NoError(bobView.Send(ctx, "hey alice"))
	messages := bobView.Messages()
	req.Len(messages, 2)
	req.Equal("hey alice", messages[1].Msg)
	req.Equal(backend.bob.ID.String(), messages[1].Sender)

	// The view converged to server state: both participants read the
	// same ordered list.
	aliceView := NewConversationView(alice, chatID)
	req.NoError(aliceView.Refresh(ctx))
	req.Equal(messages, aliceView.Messages())
}

func TestSubscribeRejectsBadToken(t *testing.T) {
	req := require.New(t)
	backend := newTestBackend(t)

	client := NewClient(backend.server.URL)
	client.token = "not-a-token"

	_, err := client.Subscribe(context.Background(), func(ChatEvent) {})
	req.Error(err)
}

func waitForEvent(t *testing.T, events <-chan ChatEvent) ChatEvent {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return ChatEvent{}
	}
}

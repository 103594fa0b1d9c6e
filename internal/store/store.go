package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/provsalt/eldercare/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DataStore defines the interface for persistent storage of users,
// conversations and messages. Both PostgresStore and SQLiteStore implement
// this interface.
//
// Message mutation methods are ownership-agnostic: the sender-only rule for
// update/delete is enforced by the caller.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email, passwordHash, language string, role models.Role) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Conversation operations
	GetOrCreateConversation(ctx context.Context, initiator, recipient uuid.UUID) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
	CountConversations(ctx context.Context) (int64, error)

	// Message operations
	AppendMessage(ctx context.Context, conversationID, senderID uuid.UUID, body string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)
	UpdateMessage(ctx context.Context, messageID, body string) error
	DeleteMessage(ctx context.Context, messageID string) error
	CountMessages(ctx context.Context) (int64, error)
}

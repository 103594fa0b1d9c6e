package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/provsalt/eldercare/internal/models"
)

// SQLiteStore handles SQLite database operations. It is used for local
// development and tests; production runs on PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/eldercare.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/eldercare.db"
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		language TEXT DEFAULT '',
		profile_picture_url TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		initiator_id TEXT NOT NULL REFERENCES users(id),
		recipient_id TEXT NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (initiator_id, recipient_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_conversations_initiator ON conversations(initiator_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_recipient ON conversations(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash, language string, role models.Role) (*models.User, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id.String(), name, email, passwordHash, role, language, now, now)
	if err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Language,
		&user.ProfilePictureURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, language, profile_picture_url, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, language, profile_picture_url, created_at, updated_at
		FROM users WHERE email = ?
	`, email))
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) scanConversation(row *sql.Row) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var id, initiator, recipient string
	err := row.Scan(&id, &initiator, &recipient, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conv.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if conv.InitiatorID, err = uuid.Parse(initiator); err != nil {
		return nil, err
	}
	if conv.RecipientID, err = uuid.Parse(recipient); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetOrCreateConversation returns the conversation between two users,
// creating it if this is their first exchange.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, initiator, recipient uuid.UUID) (*models.Conversation, error) {
	conv, err := s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, recipient_id, created_at
		FROM conversations
		WHERE (initiator_id = ? AND recipient_id = ?)
		   OR (initiator_id = ? AND recipient_id = ?)
	`, initiator.String(), recipient.String(), recipient.String(), initiator.String()))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, initiator_id, recipient_id, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), initiator.String(), recipient.String(), now)
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.scanConversation(s.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, recipient_id, created_at
		FROM conversations WHERE id = ?
	`, id.String()))
}

// ListConversationsForUser retrieves all conversations a user participates
// in, newest activity first, each decorated with its most recent message.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.initiator_id, c.recipient_id,
		       COALESCE((SELECT body FROM messages WHERE conversation_id = c.id ORDER BY id DESC LIMIT 1), ''),
		       (SELECT created_at FROM messages WHERE conversation_id = c.id ORDER BY id DESC LIMIT 1)
		FROM conversations c
		WHERE c.initiator_id = ? OR c.recipient_id = ?
		ORDER BY (SELECT id FROM messages WHERE conversation_id = c.id ORDER BY id DESC LIMIT 1) DESC
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.ConversationSummary
	for rows.Next() {
		var cs models.ConversationSummary
		var id, initiator, recipient string
		if err := rows.Scan(&id, &initiator, &recipient, &cs.LastMessage, &cs.LastMessageTime); err != nil {
			return nil, err
		}
		if cs.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if cs.InitiatorID, err = uuid.Parse(initiator); err != nil {
			return nil, err
		}
		if cs.RecipientID, err = uuid.Parse(recipient); err != nil {
			return nil, err
		}
		summaries = append(summaries, cs)
	}
	return summaries, rows.Err()
}

// CountConversations returns the total number of conversations.
func (s *SQLiteStore) CountConversations(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}

// AppendMessage persists a new message.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, senderID uuid.UUID, body string) (*models.Message, error) {
	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID.String(), msg.SenderID.String(), msg.Body, msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves a conversation's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id ASC
	`, conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var convID, senderID string
		if err := rows.Scan(&m.ID, &convID, &senderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.ConversationID, err = uuid.Parse(convID); err != nil {
			return nil, err
		}
		if m.SenderID, err = uuid.Parse(senderID); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	msg := &models.Message{}
	var convID, senderID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages WHERE id = ?
	`, messageID).Scan(&msg.ID, &convID, &senderID, &msg.Body, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if msg.ConversationID, err = uuid.Parse(convID); err != nil {
		return nil, err
	}
	if msg.SenderID, err = uuid.Parse(senderID); err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateMessage replaces a message body.
func (s *SQLiteStore) UpdateMessage(ctx context.Context, messageID, body string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET body = ? WHERE id = ?`, body, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessage removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountMessages returns the total number of messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

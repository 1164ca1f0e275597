package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/rianhasansiam/digicam/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_name TEXT DEFAULT '',
		user_email TEXT DEFAULT '',
		is_guest BOOLEAN DEFAULT FALSE,
		last_message TEXT DEFAULT '',
		last_message_time TIMESTAMPTZ DEFAULT NOW(),
		unread_count BIGINT DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT DEFAULT '',
		sender_role TEXT NOT NULL,
		body TEXT NOT NULL,
		ts BIGINT NOT NULL,
		is_read BOOLEAN DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_time);
	CREATE INDEX IF NOT EXISTS idx_conversations_expires ON conversations(is_guest, expires_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateOrGetConversation returns the conversation for an identity,
// creating it on first contact. Guest expiry is set once on creation.
func (s *PostgresStore) CreateOrGetConversation(ctx context.Context, id, userName, userEmail string, isGuest bool) (*models.Conversation, error) {
	existing, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if isGuest {
		exp := now.Add(GuestTTL)
		expiresAt = &exp
	}
	if userEmail == "" {
		userEmail = "guest@temporary.com"
	}

	// ON CONFLICT DO NOTHING keeps concurrent first-contact requests from
	// racing; whoever loses just reads the winner's row back.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, '', $5, 0, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, id, userName, userEmail, isGuest, now, expiresAt)
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by identity id.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at
		FROM conversations WHERE id = $1
	`, id).Scan(
		&conv.ID,
		&conv.UserName,
		&conv.UserEmail,
		&conv.IsGuest,
		&conv.LastMessage,
		&conv.LastMessageTime,
		&conv.UnreadCount,
		&conv.CreatedAt,
		&conv.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return conv, nil
}

// ListConversations retrieves all conversations, most recent activity first.
func (s *PostgresStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at
		FROM conversations
		ORDER BY last_message_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.UserName,
			&conv.UserEmail,
			&conv.IsGuest,
			&conv.LastMessage,
			&conv.LastMessageTime,
			&conv.UnreadCount,
			&conv.CreatedAt,
			&conv.ExpiresAt,
		)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// AppendMessage appends a message and upserts the parent conversation's
// preview, activity time and unread counter in one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID, senderID, senderName string, role models.Role, body string) (*models.Message, error) {
	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		SenderRole:     role,
		Body:           body,
		Timestamp:      time.Now().UnixMilli(),
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role, body, ts, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, string(msg.SenderRole), msg.Body, msg.Timestamp)
	if err != nil {
		return nil, err
	}

	inc := 1
	if role == models.RoleAdmin {
		inc = 0
	}

	now := time.Now().UTC()
	isGuest := IsGuestID(conversationID)
	var expiresAt *time.Time
	if isGuest {
		exp := now.Add(GuestTTL)
		expiresAt = &exp
	}
	convName := ""
	if role != models.RoleAdmin {
		convName = senderName
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at)
		VALUES ($1, $2, 'guest@temporary.com', $3, $4, $5, $6, $5, $7)
		ON CONFLICT (id) DO UPDATE SET
			last_message = EXCLUDED.last_message,
			last_message_time = EXCLUDED.last_message_time,
			unread_count = conversations.unread_count + $6
	`, conversationID, convName, isGuest, preview(msg.Body), now, inc, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves a conversation's messages, oldest first.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, sender_role, body, ts, is_read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY ts ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var roleStr string
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.SenderName,
			&roleStr,
			&msg.Body,
			&msg.Timestamp,
			&msg.IsRead,
		)
		if err != nil {
			return nil, err
		}
		msg.SenderRole = models.Role(roleStr)
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkRead flips is_read on unread messages; resets the admin-facing
// unread counter only when an admin is the reader.
func (s *PostgresStore) MarkRead(ctx context.Context, conversationID string, byAdmin bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE WHERE conversation_id = $1 AND is_read = FALSE
	`, conversationID)
	if err != nil {
		return err
	}

	if byAdmin {
		_, err = s.pool.Exec(ctx, `
			UPDATE conversations SET unread_count = 0 WHERE id = $1
		`, conversationID)
	}
	return err
}

// DeleteExpired purges expired guest conversations and their messages.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	msgRes, err := tx.Exec(ctx, `
		DELETE FROM messages WHERE conversation_id IN (
			SELECT id FROM conversations
			WHERE is_guest = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
		)
	`, now.UTC())
	if err != nil {
		return 0, 0, err
	}

	convRes, err := tx.Exec(ctx, `
		DELETE FROM conversations
		WHERE is_guest = TRUE AND expires_at IS NOT NULL AND expires_at <= $1
	`, now.UTC())
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}

	return convRes.RowsAffected(), msgRes.RowsAffected(), nil
}

// Stats returns aggregate counts for the admin dashboard.
func (s *PostgresStore) Stats(ctx context.Context) (*ChatStats, error) {
	stats := &ChatStats{}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_guest),
		       COALESCE(SUM(unread_count), 0)
		FROM conversations
	`).Scan(&stats.TotalConversations, &stats.GuestConversations, &stats.TotalUnread)
	if err != nil {
		return nil, err
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

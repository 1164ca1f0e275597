package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/rianhasansiam/digicam/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/digicam.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/digicam.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_name TEXT DEFAULT '',
		user_email TEXT DEFAULT '',
		is_guest INTEGER DEFAULT 0,
		last_message TEXT DEFAULT '',
		last_message_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		unread_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT DEFAULT '',
		sender_role TEXT NOT NULL,
		body TEXT NOT NULL,
		ts INTEGER NOT NULL,
		is_read INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_time);
	CREATE INDEX IF NOT EXISTS idx_conversations_expires ON conversations(is_guest, expires_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
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

// CreateOrGetConversation returns the conversation for an identity,
// creating it on first contact. Guest conversations get an expiry of
// createdAt + GuestTTL, set once; re-fetching never refreshes it.
func (s *SQLiteStore) CreateOrGetConversation(ctx context.Context, id, userName, userEmail string, isGuest bool) (*models.Conversation, error) {
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

	isGuestInt := 0
	if isGuest {
		isGuestInt = 1
	}

	// ON CONFLICT DO NOTHING keeps concurrent first-contact requests from
	// racing; whoever loses just reads the winner's row back.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, '', ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, userName, userEmail, isGuestInt, now, now, expiresAt)
	if err != nil {
		return nil, err
	}

	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by identity id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv := &models.Conversation{}
	var isGuestInt int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at
		FROM conversations WHERE id = ?
	`, id).Scan(
		&conv.ID,
		&conv.UserName,
		&conv.UserEmail,
		&isGuestInt,
		&conv.LastMessage,
		&conv.LastMessageTime,
		&conv.UnreadCount,
		&conv.CreatedAt,
		&conv.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	conv.IsGuest = isGuestInt == 1
	return conv, nil
}

// ListConversations retrieves all conversations, most recent activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var isGuestInt int
		err := rows.Scan(
			&conv.ID,
			&conv.UserName,
			&conv.UserEmail,
			&isGuestInt,
			&conv.LastMessage,
			&conv.LastMessageTime,
			&conv.UnreadCount,
			&conv.CreatedAt,
			&conv.ExpiresAt,
		)
		if err != nil {
			return nil, err
		}
		conv.IsGuest = isGuestInt == 1
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// AppendMessage appends a message and updates the parent conversation's
// preview, activity time and admin-facing unread counter. The conversation
// row is upserted so a guest whose thread expired between a read and a
// write simply gets it recreated.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, senderID, senderName string, role models.Role, body string) (*models.Message, error) {
	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderName:     senderName,
		SenderRole:     role,
		Body:           body,
		Timestamp:      time.Now().UnixMilli(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role, body, ts, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, string(msg.SenderRole), msg.Body, msg.Timestamp)
	if err != nil {
		return nil, err
	}

	inc := 1
	if role == models.RoleAdmin {
		inc = 0
	}

	now := time.Now().UTC()
	isGuestInt := 0
	var expiresAt *time.Time
	if IsGuestID(conversationID) {
		isGuestInt = 1
		exp := now.Add(GuestTTL)
		expiresAt = &exp
	}
	convName := ""
	if role != models.RoleAdmin {
		convName = senderName
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_name, user_email, is_guest, last_message, last_message_time, unread_count, created_at, expires_at)
		VALUES (?, ?, 'guest@temporary.com', ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message = excluded.last_message,
			last_message_time = excluded.last_message_time,
			unread_count = conversations.unread_count + ?
	`, conversationID, convName, isGuestInt, preview(msg.Body), now, inc, now, expiresAt, inc)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves a conversation's messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, sender_name, sender_role, body, ts, is_read
		FROM messages
		WHERE conversation_id = ?
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
		var isReadInt int
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.SenderName,
			&roleStr,
			&msg.Body,
			&msg.Timestamp,
			&isReadInt,
		)
		if err != nil {
			return nil, err
		}
		msg.SenderRole = models.Role(roleStr)
		msg.IsRead = isReadInt == 1
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkRead flips is_read on all unread messages in a conversation. The
// admin-facing unread counter is reset only when an admin is the reader;
// a customer marking replies read does not clear the admin's counter.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID string, byAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1 WHERE conversation_id = ? AND is_read = 0
	`, conversationID)
	if err != nil {
		return err
	}

	if byAdmin {
		_, err = s.db.ExecContext(ctx, `
			UPDATE conversations SET unread_count = 0 WHERE id = ?
		`, conversationID)
	}
	return err
}

// DeleteExpired purges guest conversations whose expiry has passed, and
// their messages. Messages go first so a crash between the two statements
// never orphans them. Authenticated conversations are never touched.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	msgRes, err := tx.ExecContext(ctx, `
		DELETE FROM messages WHERE conversation_id IN (
			SELECT id FROM conversations
			WHERE is_guest = 1 AND expires_at IS NOT NULL AND expires_at <= ?
		)
	`, now.UTC())
	if err != nil {
		return 0, 0, err
	}

	convRes, err := tx.ExecContext(ctx, `
		DELETE FROM conversations
		WHERE is_guest = 1 AND expires_at IS NOT NULL AND expires_at <= ?
	`, now.UTC())
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	messages, _ := msgRes.RowsAffected()
	conversations, _ := convRes.RowsAffected()
	return conversations, messages, nil
}

// Stats returns aggregate counts for the admin dashboard.
func (s *SQLiteStore) Stats(ctx context.Context) (*ChatStats, error) {
	stats := &ChatStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(is_guest), 0), COALESCE(SUM(unread_count), 0) FROM conversations
	`).Scan(&stats.TotalConversations, &stats.GuestConversations, &stats.TotalUnread)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&stats.TotalMessages)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

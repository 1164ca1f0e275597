package store

import (
	"context"
	"strings"
	"time"

	"github.com/rianhasansiam/digicam/internal/models"
)

// GuestTTL is how long a guest conversation lives after creation.
const GuestTTL = 12 * time.Hour

// previewLen is the maximum length of a conversation's last-message preview.
const previewLen = 50

// ChatStore defines the interface for durable conversation and message
// storage. Both PostgresStore and SQLiteStore implement this interface.
// The realtime relay never touches it; persistence is driven by the
// request/response API.
type ChatStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Conversation operations
	CreateOrGetConversation(ctx context.Context, id, userName, userEmail string, isGuest bool) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	MarkRead(ctx context.Context, conversationID string, byAdmin bool) error

	// Message operations
	AppendMessage(ctx context.Context, conversationID, senderID, senderName string, role models.Role, body string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// Cleanup and reporting
	DeleteExpired(ctx context.Context, now time.Time) (conversations, messages int64, err error)
	Stats(ctx context.Context) (*ChatStats, error)
}

// ChatStats holds aggregate counts for the admin dashboard.
type ChatStats struct {
	TotalConversations int64 `json:"total_conversations"`
	GuestConversations int64 `json:"guest_conversations"`
	TotalMessages      int64 `json:"total_messages"`
	TotalUnread        int64 `json:"total_unread"`
}

// IsGuestID reports whether an identity id denotes an unauthenticated visitor.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, "guest_")
}

// preview truncates a message body for the conversation list.
func preview(body string) string {
	runes := []rune(body)
	if len(runes) > previewLen {
		return string(runes[:previewLen])
	}
	return body
}

package models

import "time"

// Conversation is the persisted thread between one non-admin identity and
// the support team. The identity id doubles as both the broadcast room key
// and the primary key: one conversation per customer.
type Conversation struct {
	ID              string     `json:"id"` // customer's user id or guest id
	UserName        string     `json:"user_name"`
	UserEmail       string     `json:"user_email"`
	IsGuest         bool       `json:"is_guest"`
	LastMessage     string     `json:"last_message"` // truncated preview
	LastMessageTime time.Time  `json:"last_message_time"`
	UnreadCount     int64      `json:"unread_count"` // admin-facing counter
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"` // guests only
}

package models

// Message is one entry in a conversation's append-only log.
type Message struct {
	ID             string `json:"id"` // ULID
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	SenderRole     Role   `json:"sender_role"`
	Body           string `json:"body"`
	Timestamp      int64  `json:"ts"` // Unix ms, server-assigned
	IsRead         bool   `json:"is_read"`
}

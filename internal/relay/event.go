package relay

import (
	"encoding/json"
	"time"
)

// Client → server event names.
const (
	EventJoin             = "join"
	EventSendMessage      = "send-message"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventAdminTyping      = "admin-typing"
	EventAdminStopTyping  = "admin-stop-typing"
	EventMessageDelivered = "message-delivered"
	EventMessageRead      = "message-read"
)

// Server → client event names. The admin typing events share their names
// with the inbound ones; the relay mirrors them into the conversation room.
const (
	EventNewMessage     = "new-message"
	EventNewUserMessage = "new-user-message"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventMessageStatus  = "message-status"
	EventAdminStatus    = "admin-status"
	EventUserPresence   = "user-presence"
)

// Message delivery states carried by EventMessageStatus.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Envelope is the wire format for every relay event, in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload binds a connection to an identity and role.
type JoinPayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// SendMessagePayload is a live message fan-out request. The durable write
// happens on the REST path; this only drives delivery to open connections.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
}

// NewMessagePayload is the canonical room echo for a sent message.
type NewMessagePayload struct {
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
}

// TypingPayload carries typing indicator events in both directions.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserName       string `json:"userName,omitempty"`
	AdminName      string `json:"adminName,omitempty"`
}

// MessageStatusPayload reports delivery/read state for a message.
type MessageStatusPayload struct {
	MessageID      string `json:"messageId"`
	Status         string `json:"status,omitempty"`
	ConversationID string `json:"conversationId"`
}

// AdminStatusPayload announces the aggregated support-team presence.
type AdminStatusPayload struct {
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// UserPresencePayload tells admins that a customer went on- or offline.
type UserPresencePayload struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// marshalEvent encodes an outbound envelope.
func marshalEvent(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

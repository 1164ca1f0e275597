package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rianhasansiam/digicam/internal/api/middleware"
	"github.com/rianhasansiam/digicam/internal/metrics"
	"github.com/rianhasansiam/digicam/internal/models"
)

// maxMessageLen is the longest accepted message body in bytes.
const maxMessageLen = 2000

// MessageListResponse represents a conversation's message log.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

// SendMessageRequest represents the durable message write.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

// SendMessageResponse wraps the stored message.
type SendMessageResponse struct {
	Message *models.Message `json:"message"`
}

// MarkReadRequest represents the mark-as-read request body.
type MarkReadRequest struct {
	ConversationID string `json:"conversationId"`
}

// GetMessages handles fetching a conversation's messages, oldest first.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		h.Error(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	if !h.mayAccessConversation(r, conversationID) {
		h.Error(w, http.StatusForbidden, "unauthorized access")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conversationID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, MessageListResponse{Messages: messages})
}

// SendMessage handles the durable message write. This is the path that
// counts: the relay's live fan-out is advisory and separate, so validation
// here is strict where the relay's is absent.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	req.UserName = sanitizeName(req.UserName)
	if req.ConversationID == "" || req.Message == "" || req.UserID == "" || req.UserName == "" {
		h.Error(w, http.StatusBadRequest, "conversationId, message, userId and userName are required")
		return
	}
	if len(req.Message) > maxMessageLen {
		h.Error(w, http.StatusUnprocessableEntity, "message too long (max 2000 bytes)")
		return
	}

	identity := middleware.IdentityFromContext(r.Context())
	role := models.RoleUser
	if identity != nil && identity.Role == models.RoleAdmin {
		role = models.RoleAdmin
	} else if !h.mayAccessConversation(r, req.ConversationID) {
		h.Error(w, http.StatusForbidden, "unauthorized access")
		return
	}

	msg, err := h.store.AppendMessage(r.Context(), req.ConversationID, req.UserID, req.UserName, role, req.Message)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.MessagesStored.WithLabelValues(string(role)).Inc()

	h.JSON(w, http.StatusCreated, SendMessageResponse{Message: msg})
}

// MarkRead flips unread messages to read. Only an admin reader resets the
// conversation's unread counter; a customer reading replies does not.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConversationID == "" {
		h.Error(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	if !h.mayAccessConversation(r, req.ConversationID) {
		h.Error(w, http.StatusForbidden, "unauthorized access")
		return
	}

	identity := middleware.IdentityFromContext(r.Context())
	byAdmin := identity != nil && identity.Role == models.RoleAdmin

	if err := h.store.MarkRead(r.Context(), req.ConversationID, byAdmin); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to mark messages as read")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

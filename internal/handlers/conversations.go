package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rianhasansiam/digicam/internal/api/middleware"
	"github.com/rianhasansiam/digicam/internal/metrics"
	"github.com/rianhasansiam/digicam/internal/models"
	"github.com/rianhasansiam/digicam/internal/store"
)

// ConversationListResponse represents the admin conversation list.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

// CreateConversationRequest represents the create-or-get request body.
type CreateConversationRequest struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
	IsGuest   bool   `json:"isGuest"`
}

// ConversationResponse wraps a single conversation.
type ConversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
}

// ListConversations handles the admin conversation overview, most recent
// activity first. Admin-only; the route group enforces it.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.store.ListConversations(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: conversations})
}

// CreateOrGetConversation handles first contact from a customer or guest.
// Idempotent: an existing conversation is returned as-is, expiry untouched.
func (h *Handler) CreateOrGetConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.UserName = sanitizeName(req.UserName)
	if req.UserID == "" || req.UserName == "" {
		h.Error(w, http.StatusBadRequest, "userId and userName are required")
		return
	}
	if !isValidEmail(req.UserEmail) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	if !h.mayAccessConversation(r, req.UserID) {
		h.Error(w, http.StatusForbidden, "unauthorized access")
		return
	}

	isGuest := req.IsGuest || store.IsGuestID(req.UserID)

	existing, err := h.store.GetConversation(r.Context(), req.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	conv, err := h.store.CreateOrGetConversation(r.Context(), req.UserID, req.UserName, req.UserEmail, isGuest)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	status := http.StatusOK
	if existing == nil {
		status = http.StatusCreated
		metrics.ConversationsCreated.Inc()
	}
	h.JSON(w, status, ConversationResponse{Conversation: conv})
}

// mayAccessConversation implements the self-or-guest rule: admins see
// everything, an authenticated user only their own thread, and guest
// threads are open to whoever holds the unguessable guest id.
func (h *Handler) mayAccessConversation(r *http.Request, conversationID string) bool {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		return store.IsGuestID(conversationID)
	}
	if identity.Role == models.RoleAdmin {
		return true
	}
	if identity.ID != "" && identity.ID == conversationID {
		return true
	}
	return store.IsGuestID(conversationID)
}

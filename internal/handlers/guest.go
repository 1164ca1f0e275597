package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

// GuestResponse carries a freshly issued guest identity.
type GuestResponse struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// CreateGuest issues a temporary identity for an unauthenticated visitor.
// The id doubles as the conversation id and room key; its conversation
// expires twelve hours after creation.
func (h *Handler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusCreated, GuestResponse{
		UserID:   "guest_" + uuid.NewString(),
		UserName: "Guest User",
	})
}

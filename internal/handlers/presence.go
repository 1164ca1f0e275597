package handlers

import (
	"net/http"
	"time"
)

// PresenceResponse is the mirrored presence snapshot for one identity.
type PresenceResponse struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// Presence returns the last mirrored presence snapshot for an identity.
// Admin-only; the route group enforces it. The snapshot is advisory: the
// relay's in-memory registry is the routing truth, this mirror serves the
// dashboard's "last seen" column.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		h.Error(w, http.StatusServiceUnavailable, "presence mirror not configured")
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	entry, err := h.redis.GetPresence(r.Context(), userID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch presence")
		return
	}
	if entry == nil {
		h.Error(w, http.StatusNotFound, "identity never seen")
		return
	}

	h.JSON(w, http.StatusOK, PresenceResponse{
		UserID:   userID,
		Role:     entry.Role,
		Online:   entry.Online,
		LastSeen: entry.LastSeen,
	})
}

package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/rianhasansiam/digicam/internal/sweep"
)

// CleanupResponse reports what a cleanup run deleted.
type CleanupResponse struct {
	Deleted *sweep.Result `json:"deleted"`
}

// Cleanup purges expired guest conversations. Gated by a shared secret in
// the X-Api-Key header; meant to be hit by a scheduler, and safe to invoke
// repeatedly.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h.cleanupSecret == "" {
		h.Error(w, http.StatusServiceUnavailable, "cleanup not configured")
		return
	}

	apiKey := r.Header.Get("X-Api-Key")
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(h.cleanupSecret)) != 1 {
		h.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.sweeper.Sweep(r.Context(), time.Now())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to cleanup expired conversations")
		return
	}

	h.JSON(w, http.StatusOK, CleanupResponse{Deleted: result})
}

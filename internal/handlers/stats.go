package handlers

import "net/http"

// Stats returns aggregate chat counts for the admin dashboard. Admin-only;
// the route group enforces it.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}

	h.JSON(w, http.StatusOK, stats)
}

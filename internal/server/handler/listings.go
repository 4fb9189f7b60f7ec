package handler

import (
	"errors"
	"net/http"

	"github.com/calebtran/momentdeals/internal/domain"
	"github.com/calebtran/momentdeals/internal/tracker"
)

// ListingsHandler serves the tracked listing book.
type ListingsHandler struct {
	svc *tracker.Service
}

// NewListingsHandler creates the handler.
func NewListingsHandler(svc *tracker.Service) *ListingsHandler {
	return &ListingsHandler{svc: svc}
}

// List handles GET /api/listings. Results come from the in-memory book,
// newest first, re-scored against the current floor where one is known.
func (h *ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	f := parseFilter(r)
	listings := h.svc.ListActive(r.Context(), f)

	writeJSON(w, http.StatusOK, map[string]any{
		"listings": toListingResponses(listings),
		"count":    len(listings),
	})
}

// Get handles GET /api/listings/{id}.
func (h *ListingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "missing listing id")
		return
	}

	l, err := h.svc.Get(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

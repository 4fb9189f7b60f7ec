package handler

import (
	"encoding/json"
	"net/http"

	"github.com/calebtran/momentdeals/internal/domain"
	"github.com/calebtran/momentdeals/internal/tracker"
)

// AdminHandler exposes operator maintenance actions.
type AdminHandler struct {
	svc *tracker.Service
}

// NewAdminHandler creates the handler.
func NewAdminHandler(svc *tracker.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// resetSoldRequest narrows which sold listings to reopen. All fields
// optional; an empty body reopens every sold listing.
type resetSoldRequest struct {
	GroupID    string `json:"groupId"`
	PlayerName string `json:"playerName"`
	Seller     string `json:"seller"`
}

// ResetSold handles POST /api/admin/reset-sold. It reopens sold listings in
// both the store and the in-memory book, for recovery after a bad
// reconciliation run.
func (h *AdminHandler) ResetSold(w http.ResponseWriter, r *http.Request) {
	var req resetSoldRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	count, err := h.svc.ResetSoldToActive(r.Context(), domain.ListingFilter{
		GroupID:    req.GroupID,
		PlayerName: req.PlayerName,
		Seller:     req.Seller,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reset": count})
}

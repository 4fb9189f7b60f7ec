package handler

import (
	"errors"
	"net/http"

	"github.com/calebtran/momentdeals/internal/domain"
	"github.com/calebtran/momentdeals/internal/tracker"
)

// VerifyHandler exposes the on-demand ledger verification check.
type VerifyHandler struct {
	verifier *tracker.Verifier
}

// NewVerifyHandler creates the handler.
func NewVerifyHandler(verifier *tracker.Verifier) *VerifyHandler {
	return &VerifyHandler{verifier: verifier}
}

// Verify handles POST /api/listings/{id}/verify. An unverifiable listing is
// not an HTTP error: the result carries outcome "unknown" with the reason.
func (h *VerifyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, "missing listing id")
		return
	}

	res, err := h.verifier.Verify(r.Context(), itemID)
	if err != nil && !errors.Is(err, domain.ErrUnverifiable) {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":        res.ID.String(),
		"itemId":    res.ItemID,
		"outcome":   string(res.Outcome),
		"reason":    res.Reason,
		"checkedAt": res.CheckedAt,
	})
}

package handler

import (
	"net/http"
	"time"

	"github.com/calebtran/momentdeals/internal/tracker"
)

// HealthHandler reports process liveness and tracker state.
type HealthHandler struct {
	svc       *tracker.Service
	poller    *tracker.Poller
	mode      string
	startedAt time.Time
}

// NewHealthHandler creates the handler. poller may be nil in server-only mode.
func NewHealthHandler(svc *tracker.Service, poller *tracker.Poller, mode string) *HealthHandler {
	return &HealthHandler{
		svc:       svc,
		poller:    poller,
		mode:      mode,
		startedAt: time.Now().UTC(),
	}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	active, seen, sold, unlisted := h.svc.Stats()

	body := map[string]any{
		"status":        "ok",
		"mode":          h.mode,
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
		"book": map[string]int{
			"active":   active,
			"seen":     seen,
			"sold":     sold,
			"unlisted": unlisted,
		},
	}
	if h.poller != nil {
		body["cursorHeight"] = h.poller.Cursor()
	}
	writeJSON(w, http.StatusOK, body)
}

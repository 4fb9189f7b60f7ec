package handler

import (
	"net/http"

	"github.com/calebtran/momentdeals/internal/domain"
)

// ArchivesHandler lists archive objects in blob storage so operators can
// locate swept listings and raw event windows.
type ArchivesHandler struct {
	reader domain.BlobReader
}

// NewArchivesHandler creates the handler.
func NewArchivesHandler(reader domain.BlobReader) *ArchivesHandler {
	return &ArchivesHandler{reader: reader}
}

// List handles GET /api/admin/archives. The prefix query parameter narrows
// the listing; it defaults to the listing archive tree.
func (h *ArchivesHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "archive/"
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "archive listing failed")
		return
	}

	type archiveObject struct {
		Path         string `json:"path"`
		Size         int64  `json:"size"`
		LastModified string `json:"lastModified"`
	}
	objects := make([]archiveObject, 0, len(infos))
	for _, info := range infos {
		objects = append(objects, archiveObject{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"prefix":  prefix,
		"objects": objects,
		"count":   len(objects),
	})
}

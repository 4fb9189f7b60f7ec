package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calebtran/momentdeals/internal/domain"
)

// ListingArchiveStore is the slice of the listing store the retention sweep
// needs: reading aged terminal rows and deleting them once archived.
type ListingArchiveStore interface {
	ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Listing, error)
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver: aged sold/unlisted listings are
// serialized to JSONL and uploaded before the rows are deleted, and raw
// event windows are uploaded for later replay. Every sweep is recorded in
// the audit log.
type Archiver struct {
	writer   domain.BlobWriter
	listings ListingArchiveStore
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewArchiver creates an Archiver over the blob writer and listing store.
func NewArchiver(writer domain.BlobWriter, listings ListingArchiveStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		listings: listings,
		audit:    audit,
		logger:   logger.With("component", "archiver"),
	}
}

// ArchiveListings uploads terminal listings last touched before the cutoff
// and deletes them from the durable store. The delete only runs after the
// upload succeeded, so a failed sweep never loses rows.
func (a *Archiver) ArchiveListings(ctx context.Context, before time.Time) (int64, error) {
	listings, err := a.listings.ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings query: %w", err)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(listings)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings marshal: %w", err)
	}

	path := archivePath("listings", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive listings upload: %w", err)
	}

	deleted, err := a.listings.DeleteTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive listings delete: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.listings", map[string]any{
		"path":    path,
		"count":   len(listings),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		a.logger.Warn("archive audit write failed", "error", err)
	}

	a.logger.Info("listings archived", "path", path, "count", len(listings), "deleted", deleted)
	return deleted, nil
}

// ArchiveEventWindow uploads the raw events of one fetched block window.
func (a *Archiver) ArchiveEventWindow(ctx context.Context, w domain.EventWindow) error {
	if len(w.Events) == 0 {
		return nil
	}

	buf, err := marshalJSONL(w.Events)
	if err != nil {
		return fmt.Errorf("s3blob: archive event window marshal: %w", err)
	}

	path := fmt.Sprintf("raw/events/%s/%d-%d.jsonl", w.FetchedAt.Format("2006-01-02"), w.Start, w.End)

	// Large replay windows go through the multipart path.
	var uploadErr error
	if len(buf) > multipartThreshold {
		uploadErr = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	} else {
		uploadErr = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if uploadErr != nil {
		return fmt.Errorf("s3blob: archive event window upload: %w", uploadErr)
	}
	return nil
}

// multipartThreshold is the payload size above which uploads switch to the
// multipart API.
const multipartThreshold = 8 << 20

// archivePath builds the key for an archive file, partitioned by the
// year-month of the cutoff:
//
//	archive/listings/2026-03.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)

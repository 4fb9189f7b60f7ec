package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebtran/momentdeals/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL. The full
// listing is stored as a JSON blob; status, seller, and the timestamps are
// mirrored into indexed columns for querying.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Upsert inserts or fully replaces the row for the listing's item id.
func (s *ListingStore) Upsert(ctx context.Context, l domain.Listing) error {
	record, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("postgres: marshal listing %s: %w", l.ItemID, err)
	}

	const query = `
		INSERT INTO listings (item_id, status, seller_address, listed_at, updated_at, record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id) DO UPDATE SET
			status         = EXCLUDED.status,
			seller_address = EXCLUDED.seller_address,
			listed_at      = EXCLUDED.listed_at,
			updated_at     = EXCLUDED.updated_at,
			record         = EXCLUDED.record`

	_, err = s.pool.Exec(ctx, query,
		l.ItemID, string(l.Status), l.SellerAddress, l.ListedAt, l.UpdatedAt, record,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert listing %s: %w", l.ItemID, err)
	}
	return nil
}

// GetByItemID retrieves a listing by its primary key.
func (s *ListingStore) GetByItemID(ctx context.Context, itemID string) (domain.Listing, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM listings WHERE item_id = $1`, itemID,
	).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", itemID, err)
	}

	var l domain.Listing
	if err := json.Unmarshal(record, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("postgres: unmarshal listing %s: %w", itemID, err)
	}
	return l, nil
}

// SetSold flips the row to sold and records the buyer. Missing rows are
// ignored: the event may concern a listing that predates the mirror.
func (s *ListingStore) SetSold(ctx context.Context, itemID, buyerAddress string, at time.Time) error {
	const query = `
		UPDATE listings SET
			status     = 'sold',
			updated_at = $2,
			record     = record
				|| jsonb_build_object('Status', 'sold', 'BuyerAddress', $3::text)
				|| jsonb_build_object('UpdatedAt', to_jsonb($2::timestamptz))
		WHERE item_id = $1`

	if _, err := s.pool.Exec(ctx, query, itemID, at, buyerAddress); err != nil {
		return fmt.Errorf("postgres: set listing %s sold: %w", itemID, err)
	}
	return nil
}

// SetUnlisted flips the row to unlisted.
func (s *ListingStore) SetUnlisted(ctx context.Context, itemID string, at time.Time) error {
	const query = `
		UPDATE listings SET
			status     = 'unlisted',
			updated_at = $2,
			record     = record
				|| jsonb_build_object('Status', 'unlisted')
				|| jsonb_build_object('UpdatedAt', to_jsonb($2::timestamptz))
		WHERE item_id = $1`

	if _, err := s.pool.Exec(ctx, query, itemID, at); err != nil {
		return fmt.Errorf("postgres: set listing %s unlisted: %w", itemID, err)
	}
	return nil
}

// ResetSoldToActive flips matching sold rows back to active and returns the
// number of rows changed. Only the filter fields mirrored into columns or
// addressable in the blob participate.
func (s *ListingStore) ResetSoldToActive(ctx context.Context, f domain.ListingFilter) (int64, error) {
	query := `
		UPDATE listings SET
			status     = 'active',
			updated_at = NOW(),
			record     = record
				|| jsonb_build_object('Status', 'active', 'BuyerAddress', '')
		WHERE status = 'sold'`
	args := []any{}
	argIdx := 1

	if f.Seller != "" {
		query += fmt.Sprintf(" AND seller_address = $%d", argIdx)
		args = append(args, f.Seller)
		argIdx++
	}
	if f.GroupID != "" {
		query += fmt.Sprintf(" AND record->>'GroupID' = $%d", argIdx)
		args = append(args, f.GroupID)
		argIdx++
	}
	if f.PlayerName != "" {
		query += fmt.Sprintf(" AND record->>'PlayerName' = $%d", argIdx)
		args = append(args, f.PlayerName)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: reset sold listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListSince returns listings touched after the cutoff, newest first.
func (s *ListingStore) ListSince(ctx context.Context, since time.Time) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM listings WHERE updated_at > $1 ORDER BY updated_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings since %s: %w", since, err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// ListTerminalBefore returns sold/unlisted listings last touched before the
// cutoff, oldest first, for the retention sweep.
func (s *ListingStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM listings
		 WHERE status IN ('sold', 'unlisted') AND updated_at < $1
		 ORDER BY updated_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// DeleteTerminalBefore removes sold/unlisted rows last touched before the
// cutoff and returns the number deleted.
func (s *ListingStore) DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings
		 WHERE status IN ('sold', 'unlisted') AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete terminal listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanListings(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		var l domain.Listing
		if err := json.Unmarshal(record, &l); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: listing rows: %w", err)
	}
	return listings, nil
}

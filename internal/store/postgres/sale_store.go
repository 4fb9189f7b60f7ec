package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/calebtran/momentdeals/internal/domain"
)

// SaleStore implements domain.SaleStore using PostgreSQL.
type SaleStore struct {
	pool *pgxpool.Pool
}

// NewSaleStore creates a SaleStore backed by the given connection pool.
func NewSaleStore(pool *pgxpool.Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Insert appends one completed sale.
func (s *SaleStore) Insert(ctx context.Context, sale domain.Sale) error {
	const query = `
		INSERT INTO sales (item_id, group_id, listing_ref, price, seller_address, buyer_address, sold_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		sale.ItemID, sale.GroupID, sale.ListingRef, sale.Price.String(),
		sale.SellerAddress, sale.BuyerAddress, sale.SoldAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert sale %s: %w", sale.ItemID, err)
	}
	return nil
}

// GroupAverage returns the mean sale price for an edition since the cutoff.
// ErrNotFound when the edition has no sales in the window.
func (s *SaleStore) GroupAverage(ctx context.Context, groupID string, since time.Time) (decimal.Decimal, error) {
	var avg string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(price)::text, '')
		 FROM sales WHERE group_id = $1 AND sold_at >= $2`,
		groupID, since,
	).Scan(&avg)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("postgres: average sale price %s: %w", groupID, err)
	}
	if avg == "" {
		return decimal.Decimal{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(avg)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("postgres: parse average %q: %w", avg, err)
	}
	return price, nil
}

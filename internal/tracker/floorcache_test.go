package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebtran/momentdeals/internal/domain"
)

type stubPriceSource struct {
	floors    map[string]decimal.Decimal
	avgs      map[string]decimal.Decimal
	floorErr  error
	avgErr    error
	floorHits int
	avgHits   int
}

func (s *stubPriceSource) FloorPrice(_ context.Context, groupID string) (decimal.Decimal, error) {
	s.floorHits++
	if s.floorErr != nil {
		return decimal.Decimal{}, s.floorErr
	}
	p, ok := s.floors[groupID]
	if !ok {
		return decimal.Decimal{}, domain.ErrNoFloorPrice
	}
	return p, nil
}

func (s *stubPriceSource) AverageSalePrice(_ context.Context, groupID string) (decimal.Decimal, error) {
	s.avgHits++
	if s.avgErr != nil {
		return decimal.Decimal{}, s.avgErr
	}
	p, ok := s.avgs[groupID]
	if !ok {
		return decimal.Decimal{}, domain.ErrNotFound
	}
	return p, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFloorCache(src domain.PriceSource, capacity int) (*FloorCache, *time.Time) {
	c := NewFloorCache(src, 5*time.Minute, 30*time.Second, capacity, testLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	return c, &clock
}

func TestFloorCache_ReadThroughAndTTL(t *testing.T) {
	src := &stubPriceSource{floors: map[string]decimal.Decimal{"ed-1": dec("25")}}
	c, clock := newTestFloorCache(src, 100)
	ctx := context.Background()

	p, ok := c.Floor(ctx, "ed-1")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("25")))
	assert.Equal(t, 1, src.floorHits)

	// Second read within the TTL is served from cache.
	_, ok = c.Floor(ctx, "ed-1")
	require.True(t, ok)
	assert.Equal(t, 1, src.floorHits)

	// Past the TTL the entry is treated as absent and refreshed.
	*clock = clock.Add(6 * time.Minute)
	src.floors["ed-1"] = dec("30")
	p, ok = c.Floor(ctx, "ed-1")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("30")))
	assert.Equal(t, 2, src.floorHits)
}

func TestFloorCache_LookupFailureReportsNotOK(t *testing.T) {
	src := &stubPriceSource{floors: map[string]decimal.Decimal{}}
	c, _ := newTestFloorCache(src, 100)

	_, ok := c.Floor(context.Background(), "ed-missing")
	assert.False(t, ok)

	_, ok = c.Average(context.Background(), "ed-missing")
	assert.False(t, ok)
}

func TestFloorCache_UndercutGuardWindow(t *testing.T) {
	src := &stubPriceSource{floors: map[string]decimal.Decimal{"ed-1": dec("50")}}
	c, clock := newTestFloorCache(src, 100)
	ctx := context.Background()

	_, ok := c.Floor(ctx, "ed-1")
	require.True(t, ok)

	// Fresh entry: an undercut within the guard window is ignored.
	c.Undercut(ctx, "ed-1", dec("10"))
	p, ok := c.Floor(ctx, "ed-1")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("50")))

	// After the guard window a lower price replaces the cached floor.
	*clock = clock.Add(time.Minute)
	c.Undercut(ctx, "ed-1", dec("10"))
	p, ok = c.Floor(ctx, "ed-1")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("10")))

	// A higher price never replaces it.
	*clock = clock.Add(time.Minute)
	c.Undercut(ctx, "ed-1", dec("40"))
	p, ok = c.Floor(ctx, "ed-1")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("10")))
}

func TestFloorCache_UndercutSeedsMissingEntry(t *testing.T) {
	src := &stubPriceSource{floors: map[string]decimal.Decimal{}}
	c, _ := newTestFloorCache(src, 100)
	ctx := context.Background()

	c.Undercut(ctx, "ed-9", dec("12"))
	p, ok := c.Floor(ctx, "ed-9")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("12")))
	assert.Zero(t, src.floorHits, "seeded entry should satisfy the read")
}

func TestFloorCache_EvictsOldestTwentyPercent(t *testing.T) {
	src := &stubPriceSource{floors: map[string]decimal.Decimal{}}
	for i := 0; i < 11; i++ {
		src.floors[fmt.Sprintf("ed-%d", i)] = dec("5")
	}
	c, clock := newTestFloorCache(src, 10)
	ctx := context.Background()

	for i := 0; i < 11; i++ {
		*clock = clock.Add(time.Second)
		_, ok := c.Floor(ctx, fmt.Sprintf("ed-%d", i))
		require.True(t, ok)
	}

	// Cap 10 exceeded at the 11th insert: the oldest 20% (2 entries) go.
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.floors, 9)
	_, ok := c.floors["ed-0"]
	assert.False(t, ok)
	_, ok = c.floors["ed-1"]
	assert.False(t, ok)
	_, ok = c.floors["ed-10"]
	assert.True(t, ok)
}

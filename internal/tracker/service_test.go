package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebtran/momentdeals/internal/domain"
)

// ---------------------------------------------------------------------------
// In-memory fakes shared by the service, poller, and verifier tests.
// ---------------------------------------------------------------------------

type memListingStore struct {
	mu       sync.Mutex
	rows     map[string]domain.Listing
	failing  bool
	resetN   int64
}

func newMemListingStore() *memListingStore {
	return &memListingStore{rows: make(map[string]domain.Listing)}
}

func (s *memListingStore) Upsert(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return assert.AnError
	}
	s.rows[l.ItemID] = l
	return nil
}

func (s *memListingStore) GetByItemID(_ context.Context, itemID string) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[itemID]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *memListingStore) SetSold(_ context.Context, itemID, buyer string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return assert.AnError
	}
	if l, ok := s.rows[itemID]; ok {
		l.Status = domain.ListingStatusSold
		l.BuyerAddress = buyer
		l.UpdatedAt = at
		s.rows[itemID] = l
	}
	return nil
}

func (s *memListingStore) SetUnlisted(_ context.Context, itemID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.rows[itemID]; ok {
		l.Status = domain.ListingStatusUnlisted
		l.UpdatedAt = at
		s.rows[itemID] = l
	}
	return nil
}

func (s *memListingStore) ResetSoldToActive(_ context.Context, f domain.ListingFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, l := range s.rows {
		if l.Status == domain.ListingStatusSold && f.Matches(l) {
			l.Status = domain.ListingStatusActive
			l.BuyerAddress = ""
			s.rows[id] = l
			n++
		}
	}
	s.resetN = n
	return n, nil
}

func (s *memListingStore) ListSince(_ context.Context, since time.Time) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.rows {
		if l.UpdatedAt.After(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memListingStore) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Listing, error) {
	return nil, nil
}

func (s *memListingStore) DeleteTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (s *memListingStore) get(itemID string) (domain.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rows[itemID]
	return l, ok
}

type memSaleStore struct {
	mu    sync.Mutex
	sales []domain.Sale
}

func (s *memSaleStore) Insert(_ context.Context, sale domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, sale)
	return nil
}

func (s *memSaleStore) GroupAverage(_ context.Context, groupID string, _ time.Time) (decimal.Decimal, error) {
	return decimal.Decimal{}, domain.ErrNotFound
}

func (s *memSaleStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}

type memBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{messages: make(map[string][][]byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages[channel])
}

type stubTransfers struct {
	mu    sync.Mutex
	calls []string
}

func (t *stubTransfers) SignalTransfer(_ context.Context, itemID, from, to string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, itemID+":"+from+":"+to)
	return nil
}

func (t *stubTransfers) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// staticOracle serves fixed floor/average prices and records undercuts.
type staticOracle struct {
	mu        sync.Mutex
	floors    map[string]decimal.Decimal
	avgs      map[string]decimal.Decimal
	undercuts []decimal.Decimal
}

func (o *staticOracle) Floor(_ context.Context, groupID string) (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.floors[groupID]
	return p, ok
}

func (o *staticOracle) Average(_ context.Context, groupID string) (decimal.Decimal, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.avgs[groupID]
	return p, ok
}

func (o *staticOracle) Undercut(_ context.Context, _ string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.undercuts = append(o.undercuts, price)
}

func newTestService(t *testing.T, opts ServiceOptions) (*Service, *memListingStore, *staticOracle) {
	t.Helper()
	store := newMemListingStore()
	oracle := &staticOracle{
		floors: map[string]decimal.Decimal{"ed-1": dec("100")},
		avgs:   map[string]decimal.Decimal{},
	}
	svc := NewService(NewBook(defaultCaps()), store, oracle, opts, testLogger())
	return svc, store, oracle
}

// ---------------------------------------------------------------------------
// Service tests
// ---------------------------------------------------------------------------

func TestService_UpsertPersistsAsync(t *testing.T) {
	svc, store, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	svc.Upsert(ctx, activeListing("m-1", "ref-1", time.Now()))

	require.Eventually(t, func() bool {
		_, ok := store.get("m-1")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestService_PersistFailureDoesNotBlockReads(t *testing.T) {
	svc, store, _ := newTestService(t, ServiceOptions{})
	store.failing = true
	ctx := context.Background()

	svc.Upsert(ctx, activeListing("m-1", "ref-1", time.Now()))

	// Memory stays authoritative even though the durable write failed.
	got, err := svc.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, got.Status)
}

func TestService_MarkSoldSignalsTransferAndRecordsSale(t *testing.T) {
	sales := &memSaleStore{}
	transfers := &stubTransfers{}
	bus := newMemBus()
	svc, _, _ := newTestService(t, ServiceOptions{Sales: sales, Transfers: transfers, Bus: bus})
	ctx := context.Background()

	l := activeListing("m-1", "ref-1", time.Now())
	l.SellerAddress = "0xseller"
	svc.Upsert(ctx, l)
	svc.MarkSold(ctx, "m-1", "0xbuyer", time.Now())

	require.Eventually(t, func() bool { return transfers.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return sales.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, bus.count(ChannelSales))
}

func TestService_MarkSoldResolvesSellerFromStoreAfterRestart(t *testing.T) {
	transfers := &stubTransfers{}
	svc, store, _ := newTestService(t, ServiceOptions{Transfers: transfers})
	ctx := context.Background()

	// The record exists durably but not in memory (fresh process).
	l := activeListing("m-1", "ref-1", time.Now())
	l.SellerAddress = "0xseller"
	require.NoError(t, store.Upsert(ctx, l))

	svc.MarkSold(ctx, "m-1", "0xbuyer", time.Now())

	require.Eventually(t, func() bool { return transfers.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestService_MarkSoldWithoutBuyerSkipsTransfer(t *testing.T) {
	transfers := &stubTransfers{}
	svc, _, _ := newTestService(t, ServiceOptions{Transfers: transfers})
	ctx := context.Background()

	l := activeListing("m-1", "ref-1", time.Now())
	l.SellerAddress = "0xseller"
	svc.Upsert(ctx, l)
	svc.MarkSold(ctx, "m-1", "", time.Now())

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, transfers.count())
}

func TestService_MarkUnlistedRefGuardCoversDurableOnlyRecords(t *testing.T) {
	svc, store, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	// The re-listing under ref-2 exists durably but not in memory, as after
	// an eviction or a restart.
	l := activeListing("m-1", "ref-2", time.Now())
	require.NoError(t, store.Upsert(ctx, l))

	svc.MarkUnlisted(ctx, "m-1", "ref-1", time.Now())

	time.Sleep(50 * time.Millisecond)
	row, ok := store.get("m-1")
	require.True(t, ok)
	assert.Equal(t, domain.ListingStatusActive, row.Status,
		"stale removal must not flip the durable record")
}

func TestService_MarkUnlistedMatchingRefFlipsDurableOnlyRecord(t *testing.T) {
	svc, store, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	l := activeListing("m-1", "ref-1", time.Now())
	require.NoError(t, store.Upsert(ctx, l))

	svc.MarkUnlisted(ctx, "m-1", "ref-1", time.Now())

	require.Eventually(t, func() bool {
		row, ok := store.get("m-1")
		return ok && row.Status == domain.ListingStatusUnlisted
	}, time.Second, 5*time.Millisecond)
}

func TestService_DealAlertOnHighScore(t *testing.T) {
	bus := newMemBus()
	svc, _, _ := newTestService(t, ServiceOptions{Bus: bus, AlertScore: dec("60")})
	ctx := context.Background()

	bargain := activeListing("m-1", "ref-1", time.Now())
	bargain.DealPercent = dec("75")
	svc.Upsert(ctx, bargain)

	fair := activeListing("m-2", "ref-2", time.Now())
	fair.DealPercent = dec("10")
	svc.Upsert(ctx, fair)

	assert.Equal(t, 1, bus.count(ChannelDeals))
	assert.Equal(t, 2, bus.count(ChannelListings))
}

func TestService_ListActiveRescoresAgainstOracle(t *testing.T) {
	svc, _, oracle := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	l := activeListing("m-1", "ref-1", time.Now())
	l.Price = dec("50")
	l.Serial = 500
	l.DealPercent = dec("-99") // stale write-time score
	svc.Upsert(ctx, l)

	// Floor moved to 100 since the listing was written: (100-50)/100 = 50%.
	got := svc.ListActive(ctx, domain.ListingFilter{})
	require.Len(t, got, 1)
	assert.True(t, got[0].DealPercent.Equal(dec("50.0")), "got %s", got[0].DealPercent)

	// A floor the oracle cannot resolve leaves the stored score untouched.
	oracle.mu.Lock()
	delete(oracle.floors, "ed-1")
	oracle.mu.Unlock()
	got = svc.ListActive(ctx, domain.ListingFilter{})
	require.Len(t, got, 1)
	assert.True(t, got[0].DealPercent.Equal(dec("-99")))
}

func TestService_MinScoreAndLimitApplyToFreshScores(t *testing.T) {
	svc, _, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	bargain := activeListing("m-cheap", "ref-1", time.Now())
	bargain.Price = dec("50")
	bargain.DealPercent = dec("5") // stale write-time score
	svc.Upsert(ctx, bargain)

	fair := activeListing("m-fair", "ref-2", time.Now())
	fair.Price = dec("95")
	fair.DealPercent = dec("80") // stale write-time score
	svc.Upsert(ctx, fair)

	// Against the current floor of 100 the cheap listing scores 50 and the
	// fair one 5; the threshold must judge those, not the stored scores.
	got := svc.ListActive(ctx, domain.ListingFilter{MinScore: dec("40"), Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "m-cheap", got[0].ItemID)
}

func TestService_ResetSoldToActiveSyncsStoreAndMemory(t *testing.T) {
	svc, store, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	l := activeListing("m-1", "ref-1", time.Now())
	svc.Upsert(ctx, l)
	svc.MarkSold(ctx, "m-1", "0xbuyer", time.Now())
	require.Eventually(t, func() bool {
		row, ok := store.get("m-1")
		return ok && row.Status == domain.ListingStatusSold
	}, time.Second, 5*time.Millisecond)

	count, err := svc.ResetSoldToActive(ctx, domain.ListingFilter{GroupID: "ed-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := svc.Get(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, got.Status)
	row, _ := store.get("m-1")
	assert.Equal(t, domain.ListingStatusActive, row.Status)
}

func TestService_InitWarmsFromStore(t *testing.T) {
	svc, store, _ := newTestService(t, ServiceOptions{})
	ctx := context.Background()

	l := activeListing("m-1", "ref-1", time.Now())
	require.NoError(t, store.Upsert(ctx, l))

	require.NoError(t, svc.Init(ctx, time.Now().Add(-time.Hour)))
	got := svc.ListActive(ctx, domain.ListingFilter{})
	assert.Len(t, got, 1)
}

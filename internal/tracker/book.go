package tracker

import (
	"container/list"
	"sync"
	"time"

	"github.com/calebtran/momentdeals/internal/domain"
)

// seenEntry is one slot of a boundedSet's insertion-order queue.
type seenEntry struct {
	itemID  string
	firstAt time.Time
}

// boundedSet is a capped itemID -> firstObservedAt map. Membership is
// tracked in the map; the queue mirrors insertion order so the oldest 20%
// can be dropped in amortized O(1) without a sort. Queue slots whose map
// entry has since been removed or re-added are skipped on eviction.
type boundedSet struct {
	cap   int
	items map[string]time.Time
	queue []seenEntry
}

func newBoundedSet(cap int) *boundedSet {
	return &boundedSet{cap: cap, items: make(map[string]time.Time)}
}

func (s *boundedSet) has(itemID string) bool {
	_, ok := s.items[itemID]
	return ok
}

// add records the item and returns the ids evicted to stay under the cap.
func (s *boundedSet) add(itemID string, at time.Time) []string {
	if _, ok := s.items[itemID]; ok {
		return nil
	}
	s.items[itemID] = at
	s.queue = append(s.queue, seenEntry{itemID: itemID, firstAt: at})

	if s.cap <= 0 || len(s.items) <= s.cap {
		return nil
	}

	drop := len(s.items) / 5
	if drop < 1 {
		drop = 1
	}
	evicted := make([]string, 0, drop)
	for len(evicted) < drop && len(s.queue) > 0 {
		head := s.queue[0]
		s.queue = s.queue[1:]
		if at, ok := s.items[head.itemID]; ok && at.Equal(head.firstAt) {
			delete(s.items, head.itemID)
			evicted = append(evicted, head.itemID)
		}
	}
	return evicted
}

func (s *boundedSet) remove(itemID string) {
	delete(s.items, itemID)
}

func (s *boundedSet) len() int {
	return len(s.items)
}

// BookCaps configures the book's bounded collections.
type BookCaps struct {
	Active   int
	Seen     int
	Sold     int
	Unlisted int
}

// Book is the bounded in-memory listing state: the active list (newest
// first), the seen-id dedup set, and the sold/unlisted flag sets. It is the
// authoritative read path; the durable mirror only backs restarts and
// evictions. All methods are safe for concurrent use.
type Book struct {
	mu sync.RWMutex

	caps     BookCaps
	order    *list.List // *domain.Listing, newest at front
	index    map[string]*list.Element
	seen     *boundedSet
	sold     *boundedSet
	unlisted *boundedSet
}

// NewBook creates an empty book with the given caps.
func NewBook(caps BookCaps) *Book {
	return &Book{
		caps:     caps,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		seen:     newBoundedSet(caps.Seen),
		sold:     newBoundedSet(caps.Sold),
		unlisted: newBoundedSet(caps.Unlisted),
	}
}

// Upsert inserts or replaces the listing and returns true when the item was
// not previously seen. A terminal record for the same item is fully replaced
// by the fresh active one.
func (b *Book) Upsert(l domain.Listing) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if el, ok := b.index[l.ItemID]; ok {
		prev := el.Value.(*domain.Listing)
		if prev.Status != domain.ListingStatusActive {
			// Re-listing: the fresh record replaces the terminal one.
			b.sold.remove(l.ItemID)
			b.unlisted.remove(l.ItemID)
			b.order.MoveToFront(el)
		}
		*prev = l
		b.seen.add(l.ItemID, l.ListedAt)
		return false
	}

	isNew := !b.seen.has(l.ItemID)

	cp := l
	b.index[l.ItemID] = b.order.PushFront(&cp)

	for _, id := range b.seen.add(l.ItemID, l.ListedAt) {
		b.dropLocked(id)
	}

	// Active-list cap: evict from the tail, dropping the seen entry so a
	// later event for the evicted item falls back to the durable store.
	if b.caps.Active > 0 {
		for b.order.Len() > b.caps.Active {
			tail := b.order.Back()
			evicted := tail.Value.(*domain.Listing)
			b.order.Remove(tail)
			delete(b.index, evicted.ItemID)
			b.seen.remove(evicted.ItemID)
		}
	}
	return isNew
}

// dropLocked removes an item from the active list and index after its seen
// entry was evicted. Must be called with the mutex held.
func (b *Book) dropLocked(itemID string) {
	if el, ok := b.index[itemID]; ok {
		b.order.Remove(el)
		delete(b.index, itemID)
	}
}

// MarkSold flips the item to sold and records the buyer. The returned listing
// is the post-transition copy; found is false when the item is not in memory.
func (b *Book) MarkSold(itemID, buyerAddress string, at time.Time) (domain.Listing, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.index[itemID]
	if !ok {
		b.sold.add(itemID, at)
		return domain.Listing{}, false
	}

	l := el.Value.(*domain.Listing)
	l.Status = domain.ListingStatusSold
	l.BuyerAddress = buyerAddress
	l.UpdatedAt = at
	b.sold.add(itemID, at)
	b.unlisted.remove(itemID)
	return *l, true
}

// MarkUnlisted flips the item to unlisted. When listingRef is non-empty the
// transition only happens if it matches the stored record, which guards
// against a stale removal event arriving after the item was re-listed.
func (b *Book) MarkUnlisted(itemID, listingRef string, at time.Time) (domain.Listing, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	el, ok := b.index[itemID]
	if !ok {
		b.unlisted.add(itemID, at)
		return domain.Listing{}, false
	}

	l := el.Value.(*domain.Listing)
	if listingRef != "" && l.ListingRef != listingRef {
		return domain.Listing{}, false
	}
	l.Status = domain.ListingStatusUnlisted
	l.UpdatedAt = at
	b.unlisted.add(itemID, at)
	return *l, true
}

// ResetSoldToActive restores matching sold records to active and returns the
// ids changed in memory. The durable reset is the caller's responsibility.
func (b *Book) ResetSoldToActive(f domain.ListingFilter) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var reset []string
	for el := b.order.Front(); el != nil; el = el.Next() {
		l := el.Value.(*domain.Listing)
		if l.Status != domain.ListingStatusSold {
			continue
		}
		if !f.Matches(*l) {
			continue
		}
		l.Status = domain.ListingStatusActive
		l.BuyerAddress = ""
		b.sold.remove(l.ItemID)
		reset = append(reset, l.ItemID)
	}
	return reset
}

// Get returns a copy of the in-memory record.
func (b *Book) Get(itemID string) (domain.Listing, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	el, ok := b.index[itemID]
	if !ok {
		return domain.Listing{}, false
	}
	return *el.Value.(*domain.Listing), true
}

// ListActive returns copies of the active listings matching the filter,
// newest first, up to the filter's limit.
func (b *Book) ListActive(f domain.ListingFilter) []domain.Listing {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.Listing
	for el := b.order.Front(); el != nil; el = el.Next() {
		l := el.Value.(*domain.Listing)
		if l.Status != domain.ListingStatusActive {
			continue
		}
		if !f.Matches(*l) {
			continue
		}
		out = append(out, *l)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Seen reports whether the item id has been observed and not yet evicted.
func (b *Book) Seen(itemID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seen.has(itemID)
}

// Load warms the book from durable records, oldest first so the newest end
// up at the front. Intended for startup; it applies no caps beyond Upsert's.
func (b *Book) Load(listings []domain.Listing) {
	for i := len(listings) - 1; i >= 0; i-- {
		l := listings[i]
		b.Upsert(l)
		switch l.Status {
		case domain.ListingStatusSold:
			b.MarkSold(l.ItemID, l.BuyerAddress, l.UpdatedAt)
		case domain.ListingStatusUnlisted:
			b.MarkUnlisted(l.ItemID, "", l.UpdatedAt)
		}
	}
}

// Stats reports the current collection sizes.
func (b *Book) Stats() (active, seen, sold, unlisted int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.order.Len(), b.seen.len(), b.sold.len(), b.unlisted.len()
}

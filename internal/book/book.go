// Package book implements the in-memory per-(venue,symbol) order book
// store: price-to-size maps per side, pruning to a configured depth, and
// snapshot-consistent top-N / best-bid-ask reads.
//
// Each book has exactly one writer (its stream worker); readers copy
// levels out under a short lock. Sizes are decimal.Decimal so a
// borderline size cannot flap in and out of the prune boundary on
// float noise.
package book

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

// Side identifies which half of the book a level belongs to.
type Side int

const (
	Bid Side = iota
	Ask
)

// pricePrecision is the canonical fixed-precision price formatting,
// matching venue transport.
const pricePrecision = 8

// Level is one price/size pair. Price is the level's string key exactly
// as the venue sent it (the store does not reformat prices); sorting and
// pruning parse it to a float64 when they need the numeric order.
type Level struct {
	Price string
	Size  decimal.Decimal
}

// Update is one (price, size) instruction from a snapshot or delta
// frame. Size == 0 deletes the level; size > 0 sets/overwrites it.
type Update struct {
	Price string
	Size  decimal.Decimal
}

// Key identifies one book by venue and the venue's raw symbol spelling.
type Key struct {
	Venue string
	Raw   string
}

func (k Key) String() string { return k.Venue + "|" + k.Raw }

// Book is one venue's view of one symbol. Exactly one writer goroutine
// (that symbol's stream worker) mutates it; all other access goes
// through the short-lock read methods below.
type Book struct {
	mu            sync.RWMutex
	bids          map[string]decimal.Decimal
	asks          map[string]decimal.Decimal
	lastUpdateID  *int64 // venue-A only; nil elsewhere
	maxLevels     int
}

func newBook(maxLevels int) *Book {
	return &Book{
		bids:      make(map[string]decimal.Decimal),
		asks:      make(map[string]decimal.Decimal),
		maxLevels: maxLevels,
	}
}

// Store owns every (venue, raw) Book, keyed by Key.
type Store struct {
	mu        sync.RWMutex
	books     map[Key]*Book
	maxLevels int
}

// NewStore creates a Book Store pruning every side to maxLevels entries.
func NewStore(maxLevels int) *Store {
	if maxLevels <= 0 {
		maxLevels = 300
	}
	return &Store{books: make(map[Key]*Book), maxLevels: maxLevels}
}

func (s *Store) bookFor(key Key) *Book {
	s.mu.RLock()
	b, ok := s.books[key]
	s.mu.RUnlock()
	if ok {
		return b
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[key]; ok {
		return b
	}
	b = newBook(s.maxLevels)
	s.books[key] = b
	return b
}

// Discard drops the book for (venue, raw) entirely. Called when a
// symbol's streaming work is stopped.
func (s *Store) Discard(venue, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, Key{Venue: venue, Raw: raw})
}

// CanonicalPrice formats a numeric price to the book's canonical
// fixed-precision string form.
func CanonicalPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', pricePrecision, 64)
}

// ApplySnapshot replaces both sides' level maps from a full snapshot
// and records the venue-A lastUpdateID when present.
func (s *Store) ApplySnapshot(venue, raw string, bids, asks []Update, updateID *int64) {
	b := s.bookFor(Key{Venue: venue, Raw: raw})
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[string]decimal.Decimal, len(bids))
	b.asks = make(map[string]decimal.Decimal, len(asks))
	for _, u := range bids {
		if u.Size.IsPositive() {
			b.bids[u.Price] = u.Size
		}
	}
	for _, u := range asks {
		if u.Size.IsPositive() {
			b.asks[u.Price] = u.Size
		}
	}
	if updateID != nil {
		b.lastUpdateID = updateID
	}
	b.prune()
}

// ApplyDelta applies incremental level updates to both sides. lastID,
// when non-nil, becomes the book's new lastUpdateID (venue-A
// reconciliation advances it per accepted delta).
func (s *Store) ApplyDelta(venue, raw string, bidUpdates, askUpdates []Update, lastID *int64) {
	b := s.bookFor(Key{Venue: venue, Raw: raw})
	b.mu.Lock()
	defer b.mu.Unlock()

	applySide(b.bids, bidUpdates)
	applySide(b.asks, askUpdates)
	if lastID != nil {
		b.lastUpdateID = lastID
	}
	b.prune()
}

func applySide(side map[string]decimal.Decimal, updates []Update) {
	for _, u := range updates {
		if u.Size.IsZero() || u.Size.IsNegative() {
			delete(side, u.Price)
			continue
		}
		side[u.Price] = u.Size
	}
}

// prune keeps only the best maxLevels entries per side and defensively
// drops any non-positive size that slipped through. Must be called with
// b.mu held for write.
func (b *Book) prune() {
	pruneSide(b.bids, b.maxLevels, true)
	pruneSide(b.asks, b.maxLevels, false)
}

func pruneSide(side map[string]decimal.Decimal, maxLevels int, descending bool) {
	for p, sz := range side {
		if !sz.IsPositive() {
			delete(side, p)
		}
	}
	if len(side) <= maxLevels {
		return
	}
	prices := sortedPrices(side, descending)
	for _, p := range prices[maxLevels:] {
		delete(side, p)
	}
}

func sortedPrices(side map[string]decimal.Decimal, descending bool) []string {
	prices := make([]string, 0, len(side))
	nums := make(map[string]float64, len(side))
	for p := range side {
		prices = append(prices, p)
		f, _ := strconv.ParseFloat(p, 64)
		nums[p] = f
	}
	sort.Slice(prices, func(i, j int) bool {
		if descending {
			return nums[prices[i]] > nums[prices[j]]
		}
		return nums[prices[i]] < nums[prices[j]]
	})
	return prices
}

// BestBidAsk returns the best bid and ask levels for (venue, raw). ok is
// false if the book does not exist or either side is empty.
func (s *Store) BestBidAsk(venue, raw string) (bid, ask *Level, ok bool) {
	s.mu.RLock()
	b, exists := s.books[Key{Venue: venue, Raw: raw}]
	s.mu.RUnlock()
	if !exists {
		return nil, nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return nil, nil, false
	}
	bp := sortedPrices(b.bids, true)[0]
	ap := sortedPrices(b.asks, false)[0]
	return &Level{Price: bp, Size: b.bids[bp]}, &Level{Price: ap, Size: b.asks[ap]}, true
}

// Top returns up to n levels for (venue, raw, side), strictly ordered
// (bids descending, asks ascending), with no duplicate prices.
func (s *Store) Top(venue, raw string, side Side, n int) []Level {
	s.mu.RLock()
	b, exists := s.books[Key{Venue: venue, Raw: raw}]
	s.mu.RUnlock()
	if !exists {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	m := b.bids
	descending := side == Bid
	if side == Ask {
		m = b.asks
	}
	prices := sortedPrices(m, descending)
	if n > 0 && n < len(prices) {
		prices = prices[:n]
	}
	out := make([]Level, 0, len(prices))
	for _, p := range prices {
		out = append(out, Level{Price: p, Size: m[p]})
	}
	return out
}

// IterateLevels returns a snapshot copy of every level on one side, in
// no particular order; callers needing order should use Top.
func (s *Store) IterateLevels(venue, raw string, side Side) []Level {
	return s.Top(venue, raw, side, 0)
}

// LastUpdateID returns the venue-A sequence checkpoint for (venue, raw),
// or nil if the book has none yet.
func (s *Store) LastUpdateID(venue, raw string) *int64 {
	s.mu.RLock()
	b, exists := s.books[Key{Venue: venue, Raw: raw}]
	s.mu.RUnlock()
	if !exists {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastUpdateID == nil {
		return nil
	}
	id := *b.lastUpdateID
	return &id
}

// IsEmpty reports whether both sides of (venue, raw) have no levels.
func (s *Store) IsEmpty(venue, raw string) bool {
	s.mu.RLock()
	b, exists := s.books[Key{Venue: venue, Raw: raw}]
	s.mu.RUnlock()
	if !exists {
		return true
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids) == 0 && len(b.asks) == 0
}

// Symbols lists every (venue, raw) pair currently tracked.
func (s *Store) Symbols() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Key, 0, len(s.books))
	for k := range s.books {
		out = append(out, k)
	}
	return out
}

// MustParsePrice parses a decimal string (a price or a size) into a
// decimal.Decimal, returning an error for malformed input. The venue
// decoders use it for level and trade fields.
func MustParsePrice(price string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", price, err)
	}
	return d, nil
}

// Package metrics implements the cross-venue metrics aggregator: a 1s
// cadence pass that merges every venue's book by normalized symbol key
// and publishes an atomically-swapped snapshot map consumed by the
// HTTP query surface and exported as Prometheus gauges.
package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/obs"
	"github.com/sawpanic/spotwatch/internal/trades"
)

const cadence = time.Second

// Snapshot is one normalized symbol's merged cross-venue view.
type Snapshot struct {
	Key             string    `json:"key"`
	BestBid         *float64  `json:"best_bid,omitempty"`
	BestAsk         *float64  `json:"best_ask,omitempty"`
	Mid             *float64  `json:"mid,omitempty"`
	BandBid         float64   `json:"band_bid"`
	BandAsk         float64   `json:"band_ask"`
	ImbalancePct    *float64  `json:"imbalance_pct,omitempty"`
	ImbalanceFrac   float64   `json:"-"`
	AggressorBuyPct float64   `json:"aggressor_buy_pct"`
	LargeTrades     int       `json:"large_trades"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Aggregator recomputes every normalized key's Snapshot on a 1s tick.
type Aggregator struct {
	bandPct        float64
	largeTradeSize decimal.Decimal
	tradeWindow    time.Duration

	store   *book.Store
	tr      *trades.Store
	metrics *obs.Registry
	keys    KeySource

	current atomic.Value // map[string]Snapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// KeySource lists the (venue, raw, normalizedKey) triples currently
// tracked: the symbol manager's running set plus the venue-B pair
// list, normalized via internal/venue.
type KeySource interface {
	Tracked() []TrackedSymbol
}

// TrackedSymbol is one (venue, raw) book identified by its normalized
// cross-venue key.
type TrackedSymbol struct {
	Venue string
	Raw   string
	Key   string
}

// NewAggregator builds the metrics aggregator. bandPct, largeTradeSize,
// and tradeWindow come from the metrics_band_pct, large_trade_size,
// and trade_window_sec config values.
func NewAggregator(bandPct float64, largeTradeSize float64, tradeWindow time.Duration, store *book.Store, tr *trades.Store, metrics *obs.Registry, keys KeySource) *Aggregator {
	a := &Aggregator{
		bandPct:        bandPct,
		largeTradeSize: decimal.NewFromFloat(largeTradeSize),
		tradeWindow:    tradeWindow,
		store:          store,
		tr:             tr,
		metrics:        metrics,
		keys:           keys,
	}
	a.current.Store(map[string]Snapshot{})
	return a
}

// Start launches the 1s recompute loop.
func (a *Aggregator) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(ctx)
}

// Stop halts the recompute loop.
func (a *Aggregator) Stop() {
	if a.cancel == nil {
		return
	}
	a.cancel()
	a.wg.Wait()
}

// Snapshot returns the current published snapshot for key, and whether
// it exists.
func (a *Aggregator) Snapshot(key string) (Snapshot, bool) {
	m := a.current.Load().(map[string]Snapshot)
	s, ok := m[key]
	return s, ok
}

// All returns every published snapshot, key order unspecified.
func (a *Aggregator) All() []Snapshot {
	m := a.current.Load().(map[string]Snapshot)
	out := make([]Snapshot, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

func (a *Aggregator) run(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recompute()
		}
	}
}

// recompute rebuilds the published snapshot map: best_bid/best_ask are
// the max/min across every source book for the key; band_bid/band_ask
// are size sums (not notional) over the union of per-source levels
// within bandPct of mid; a key with no best_bid or best_ask on any
// source is omitted from the published snapshot rather than zeroed,
// and the imbalance is nil (not 0) when no level falls inside the band.
func (a *Aggregator) recompute() {
	byKey := make(map[string][]TrackedSymbol)
	for _, t := range a.keys.Tracked() {
		byKey[t.Key] = append(byKey[t.Key], t)
	}

	now := time.Now()
	cutoff := now.Add(-a.tradeWindow).UnixMilli()
	out := make(map[string]Snapshot, len(byKey))

	for key, members := range byKey {
		var bestBid, bestAsk *decimal.Decimal
		var buySize, totalSize decimal.Decimal
		var largeCount int
		for _, m := range members {
			if bid, ask, ok := a.store.BestBidAsk(m.Venue, m.Raw); ok {
				bv, _ := decimal.NewFromString(bid.Price)
				av, _ := decimal.NewFromString(ask.Price)
				if bestBid == nil || bv.GreaterThan(*bestBid) {
					bestBid = &bv
				}
				if bestAsk == nil || av.LessThan(*bestAsk) {
					bestAsk = &av
				}
			}
			for _, t := range a.tr.Since(m.Venue, m.Raw, cutoff) {
				totalSize = totalSize.Add(t.Size)
				if t.Side == trades.Buy {
					buySize = buySize.Add(t.Size)
				}
				if t.Size.GreaterThanOrEqual(a.largeTradeSize) {
					largeCount++
				}
			}
		}

		if bestBid == nil || bestAsk == nil {
			continue // no usable mid for this key
		}

		bf, _ := bestBid.Float64()
		af, _ := bestAsk.Float64()
		mid := (bf + af) / 2
		lo := mid * (1 - a.bandPct)
		hi := mid * (1 + a.bandPct)

		var bandBid, bandAsk float64
		for _, m := range members {
			for _, lvl := range a.store.IterateLevels(m.Venue, m.Raw, book.Bid) {
				p, sz := levelFloat(lvl)
				if p >= lo {
					bandBid += sz
				}
			}
			for _, lvl := range a.store.IterateLevels(m.Venue, m.Raw, book.Ask) {
				p, sz := levelFloat(lvl)
				if p <= hi {
					bandAsk += sz
				}
			}
		}

		snap := Snapshot{
			Key: key, UpdatedAt: now,
			BestBid: &bf, BestAsk: &af, Mid: &mid,
			BandBid: bandBid, BandAsk: bandAsk,
			LargeTrades: largeCount,
		}
		if bandBid+bandAsk > 0 {
			snap.ImbalanceFrac = bandBid / (bandBid + bandAsk)
			pct := 100 * snap.ImbalanceFrac
			snap.ImbalancePct = &pct
		}
		if totalSize.IsPositive() {
			bs, _ := buySize.Float64()
			ts, _ := totalSize.Float64()
			snap.AggressorBuyPct = 100 * bs / ts
		}

		out[key] = snap

		if a.metrics != nil {
			if snap.ImbalancePct != nil {
				a.metrics.BandImbalance.WithLabelValues(key).Set(*snap.ImbalancePct)
			}
			a.metrics.AggressorPct.WithLabelValues(key).Set(snap.AggressorBuyPct)
			a.metrics.LargeTrades.WithLabelValues(key).Set(float64(snap.LargeTrades))
		}
	}

	a.current.Store(out)
}

func levelFloat(lvl book.Level) (price, size float64) {
	p, _ := decimal.NewFromString(lvl.Price)
	pf, _ := p.Float64()
	sf, _ := lvl.Size.Float64()
	return pf, sf
}

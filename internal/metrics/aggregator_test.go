package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/trades"
)

type staticKeys []TrackedSymbol

func (s staticKeys) Tracked() []TrackedSymbol { return s }

func decFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestRecomputeOmitsKeyWithoutBothSides(t *testing.T) {
	store := book.NewStore(300)
	tr := trades.NewStore(100)
	store.ApplySnapshot("venue_a", "XYZUSDT", nil, []book.Update{{Price: "101.00000000", Size: decFromFloat(1)}}, nil)

	keys := staticKeys{{Venue: "venue_a", Raw: "XYZUSDT", Key: "XYZUSD"}}
	a := NewAggregator(0.01, 10, time.Minute, store, tr, nil, keys)
	a.recompute()

	_, ok := a.Snapshot("XYZUSD")
	assert.False(t, ok)
}

func TestRecomputeBandIsSizeSumAgainstMid(t *testing.T) {
	store := book.NewStore(300)
	tr := trades.NewStore(100)
	store.ApplySnapshot("venue_a", "XYZUSDT",
		[]book.Update{{Price: "99.00000000", Size: decFromFloat(2)}, {Price: "98.00000000", Size: decFromFloat(5)}},
		[]book.Update{{Price: "101.00000000", Size: decFromFloat(3)}, {Price: "102.00000000", Size: decFromFloat(5)}},
		nil,
	)

	// mid = (99+101)/2 = 100, band 2% -> [98, 102]
	keys := staticKeys{{Venue: "venue_a", Raw: "XYZUSDT", Key: "XYZUSD"}}
	a := NewAggregator(0.02, 10, time.Minute, store, tr, nil, keys)
	a.recompute()

	snap, ok := a.Snapshot("XYZUSD")
	require.True(t, ok)
	require.NotNil(t, snap.Mid)
	assert.InDelta(t, 100, *snap.Mid, 0.0001)
	assert.InDelta(t, 7, snap.BandBid, 0.0001) // 2 + 5, both within [98,100]
	assert.InDelta(t, 8, snap.BandAsk, 0.0001) // 3 + 5, both within [100,102]
	require.NotNil(t, snap.ImbalancePct)
	assert.InDelta(t, 100*7.0/15.0, *snap.ImbalancePct, 0.01)
	assert.InDelta(t, 7.0/15.0, snap.ImbalanceFrac, 0.0001)
}

func TestRecomputeImbalanceNilWhenBandEmpty(t *testing.T) {
	store := book.NewStore(300)
	tr := trades.NewStore(100)
	store.ApplySnapshot("venue_a", "XYZUSDT",
		[]book.Update{{Price: "99.00000000", Size: decFromFloat(1)}},
		[]book.Update{{Price: "101.00000000", Size: decFromFloat(1)}},
		nil,
	)

	// mid = 100, band 0.01% -> [99.99, 100.01]: no level qualifies, so
	// the imbalance is unavailable rather than zero.
	keys := staticKeys{{Venue: "venue_a", Raw: "XYZUSDT", Key: "XYZUSD"}}
	a := NewAggregator(0.0001, 10, time.Minute, store, tr, nil, keys)
	a.recompute()

	snap, ok := a.Snapshot("XYZUSD")
	require.True(t, ok)
	assert.Zero(t, snap.BandBid)
	assert.Zero(t, snap.BandAsk)
	assert.Nil(t, snap.ImbalancePct)
}

func TestRecomputeAggressorAndLargeTrades(t *testing.T) {
	store := book.NewStore(300)
	tr := trades.NewStore(100)
	store.ApplySnapshot("venue_a", "XYZUSDT",
		[]book.Update{{Price: "99.00000000", Size: decFromFloat(1)}},
		[]book.Update{{Price: "101.00000000", Size: decFromFloat(1)}},
		nil,
	)
	now := time.Now().UnixMilli()
	tr.Push("venue_a", "XYZUSDT", trades.Trade{Price: decFromFloat(100), Size: decFromFloat(5), Side: trades.Buy, TimestampMs: now})
	tr.Push("venue_a", "XYZUSDT", trades.Trade{Price: decFromFloat(100), Size: decFromFloat(1), Side: trades.Sell, TimestampMs: now})

	keys := staticKeys{{Venue: "venue_a", Raw: "XYZUSDT", Key: "XYZUSD"}}
	a := NewAggregator(0.5, 2, time.Minute, store, tr, nil, keys)
	a.recompute()

	snap, ok := a.Snapshot("XYZUSD")
	require.True(t, ok)
	// size-weighted: 100 * 5 / (5 + 1)
	assert.InDelta(t, 100*5.0/6.0, snap.AggressorBuyPct, 0.01)
	assert.Equal(t, 1, snap.LargeTrades)
}

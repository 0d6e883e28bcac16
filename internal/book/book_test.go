package book

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(price string, size float64) Update {
	return Update{Price: price, Size: decimal.NewFromFloat(size)}
}

func TestApplySnapshotThenDeleteEmptiesBook(t *testing.T) {
	s := NewStore(300)
	id := int64(1)
	s.ApplySnapshot("venue_a", "XYZUSDT", []Update{update("100.00000000", 1)}, []Update{update("101.00000000", 1)}, &id)
	assert.False(t, s.IsEmpty("venue_a", "XYZUSDT"))

	s.ApplyDelta("venue_a", "XYZUSDT", []Update{update("100.00000000", 0)}, []Update{update("101.00000000", 0)}, nil)
	assert.True(t, s.IsEmpty("venue_a", "XYZUSDT"))
}

func TestTopReturnsStrictlyOrderedUniquePrices(t *testing.T) {
	s := NewStore(300)
	s.ApplySnapshot("venue_a", "XYZUSDT", []Update{
		update("100.00000000", 1),
		update("99.00000000", 1),
		update("101.00000000", 1),
	}, nil, nil)

	top := s.Top("venue_a", "XYZUSDT", Bid, 10)
	require.Len(t, top, 3)
	assert.Equal(t, "101.00000000", top[0].Price)
	assert.Equal(t, "100.00000000", top[1].Price)
	assert.Equal(t, "99.00000000", top[2].Price)
}

func TestPrunesToMaxLevels(t *testing.T) {
	s := NewStore(2)
	s.ApplySnapshot("venue_a", "XYZUSDT", []Update{
		update("100.00000000", 1),
		update("99.00000000", 1),
		update("98.00000000", 1),
	}, nil, nil)

	bids := s.Top("venue_a", "XYZUSDT", Bid, 10)
	assert.Len(t, bids, 2)
	assert.Equal(t, "100.00000000", bids[0].Price)
	assert.Equal(t, "99.00000000", bids[1].Price)
}

func TestBestBidAskRequiresBothSidesNonEmpty(t *testing.T) {
	s := NewStore(300)
	_, _, ok := s.BestBidAsk("venue_a", "XYZUSDT")
	assert.False(t, ok)

	s.ApplySnapshot("venue_a", "XYZUSDT", []Update{update("100.00000000", 1)}, []Update{update("101.00000000", 1)}, nil)
	bid, ask, ok := s.BestBidAsk("venue_a", "XYZUSDT")
	require.True(t, ok)
	assert.Equal(t, "100.00000000", bid.Price)
	assert.Equal(t, "101.00000000", ask.Price)
}

func TestDiscardRemovesBook(t *testing.T) {
	s := NewStore(300)
	s.ApplySnapshot("venue_a", "XYZUSDT", []Update{update("1.00000000", 1)}, nil, nil)
	s.Discard("venue_a", "XYZUSDT")
	assert.True(t, s.IsEmpty("venue_a", "XYZUSDT"))
	assert.Empty(t, s.Symbols())
}

func TestMustParsePriceRejectsGarbage(t *testing.T) {
	_, err := MustParsePrice("not-a-number")
	assert.Error(t, err)
}

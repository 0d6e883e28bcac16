package trades

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(ts int64) Trade {
	return Trade{Price: decimal.NewFromInt(1), Size: decimal.NewFromInt(1), Side: Buy, TimestampMs: ts}
}

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	s := NewStore(3)
	for i := int64(1); i <= 5; i++ {
		s.Push("venue_a", "XYZUSDT", trade(i))
	}
	all := s.Since("venue_a", "XYZUSDT", 0)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].TimestampMs)
	assert.Equal(t, int64(5), all[2].TimestampMs)
}

func TestSinceFiltersByCutoff(t *testing.T) {
	s := NewStore(10)
	for i := int64(1); i <= 5; i++ {
		s.Push("venue_a", "XYZUSDT", trade(i))
	}
	recent := s.Since("venue_a", "XYZUSDT", 3)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(3), recent[0].TimestampMs)
}

func TestDiscardDropsRing(t *testing.T) {
	s := NewStore(10)
	s.Push("venue_a", "XYZUSDT", trade(1))
	s.Discard("venue_a", "XYZUSDT")
	assert.Empty(t, s.Since("venue_a", "XYZUSDT", 0))
}

func TestUnknownKeyReturnsEmpty(t *testing.T) {
	s := NewStore(10)
	assert.Empty(t, s.Since("venue_a", "NOPE", 0))
}

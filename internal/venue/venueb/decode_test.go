package venueb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotwatch/internal/venue"
)

func TestDecodeEnvelopeTagsSnapshot(t *testing.T) {
	raw := []byte(`{"type":"snapshot","pair":"XYZ/USD","bs":[["100.0","1.0"]],"as":[["101.0","1.0"]]}`)
	f, kind, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, venue.FrameSnapshot, kind)
	assert.Equal(t, "XYZ/USD", f.Pair)
}

func TestDecodeEnvelopeUnknownTypeIsError(t *testing.T) {
	_, kind, err := decodeEnvelope([]byte(`{"type":"mystery"}`))
	assert.Error(t, err)
	assert.Equal(t, venue.FrameUnknown, kind)
}

func TestToTradesConvertsSecondsToMillisAndAggressor(t *testing.T) {
	out, err := toTrades([][4]string{{"100.0", "1.5", "1700000000.5", "b"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1700000000500), out[0].TimestampMs)
}

func TestToUpdatesPropagatesParseError(t *testing.T) {
	_, err := toUpdates([][2]string{{"100.0", "garbage"}})
	assert.Error(t, err)
}

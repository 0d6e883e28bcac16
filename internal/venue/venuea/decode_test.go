package venuea

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDeltaParsesUpdateIDs(t *testing.T) {
	raw := []byte(`{"s":"XYZUSDT","U":10,"u":12,"b":[["100.0","1.5"]],"a":[["101.0","0"]]}`)
	f, err := decodeDelta(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.FirstID)
	assert.Equal(t, int64(12), f.LastID)
}

func TestDecodeDeltaRejectsMissingUpdateID(t *testing.T) {
	_, err := decodeDelta([]byte(`{"s":"XYZUSDT"}`))
	assert.Error(t, err)
}

func TestDecodeTradeDerivesAggressorFromMakerSell(t *testing.T) {
	buy, err := decodeTrade([]byte(`{"s":"XYZUSDT","p":"100.0","q":"1.0","T":1000,"m":false}`))
	require.NoError(t, err)
	assert.Equal(t, 0, int(buy.Side)) // trades.Buy

	sell, err := decodeTrade([]byte(`{"s":"XYZUSDT","p":"100.0","q":"1.0","T":1000,"m":true}`))
	require.NoError(t, err)
	assert.Equal(t, 1, int(sell.Side)) // trades.Sell
}

func TestDecodeTradeRejectsBadPrice(t *testing.T) {
	_, err := decodeTrade([]byte(`{"s":"XYZUSDT","p":"garbage","q":"1.0","T":1000,"m":false}`))
	assert.Error(t, err)
}

package venuea

import (
	"encoding/json"
	"fmt"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/trades"
)

func decodeDelta(data []byte) (deltaFrame, error) {
	var f deltaFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return deltaFrame{}, fmt.Errorf("decode delta frame: %w", err)
	}
	if f.LastID == 0 {
		return deltaFrame{}, fmt.Errorf("decode delta frame: missing update id")
	}
	return f, nil
}

func decodeTrade(data []byte) (trades.Trade, error) {
	var f tradeFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return trades.Trade{}, fmt.Errorf("decode trade frame: %w", err)
	}
	price, err := book.MustParsePrice(f.Price)
	if err != nil {
		return trades.Trade{}, err
	}
	size, err := book.MustParsePrice(f.Size)
	if err != nil {
		return trades.Trade{}, err
	}
	aggressor := trades.Buy
	if f.MakerSell {
		aggressor = trades.Sell
	}
	return trades.Trade{Price: price, Size: size, Side: aggressor, TimestampMs: f.TimeMs}, nil
}

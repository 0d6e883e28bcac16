package venueb

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/trades"
	"github.com/sawpanic/spotwatch/internal/venue"
)

func decodeEnvelope(data []byte) (frameEnvelope, venue.FrameKind, error) {
	var f frameEnvelope
	if err := json.Unmarshal(data, &f); err != nil {
		return frameEnvelope{}, venue.FrameUnknown, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case "snapshot":
		return f, venue.FrameSnapshot, nil
	case "delta":
		return f, venue.FrameDelta, nil
	case "trade":
		return f, venue.FrameTrade, nil
	case "heartbeat":
		return f, venue.FrameHeartbeat, nil
	case "event":
		return f, venue.FrameEvent, nil
	default:
		return f, venue.FrameUnknown, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

func toUpdates(raw [][2]string) ([]book.Update, error) {
	out := make([]book.Update, 0, len(raw))
	for _, lvl := range raw {
		size, err := book.MustParsePrice(lvl[1])
		if err != nil {
			return nil, err
		}
		out = append(out, book.Update{Price: lvl[0], Size: size})
	}
	return out, nil
}

func toTrades(raw [][4]string) ([]trades.Trade, error) {
	out := make([]trades.Trade, 0, len(raw))
	for _, entry := range raw {
		price, err := book.MustParsePrice(entry[0])
		if err != nil {
			return nil, err
		}
		size, err := book.MustParsePrice(entry[1])
		if err != nil {
			return nil, err
		}
		tsSec, err := strconv.ParseFloat(entry[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid trade timestamp %q: %w", entry[2], err)
		}
		aggressor := trades.Sell
		if entry[3] == "b" {
			aggressor = trades.Buy
		}
		out = append(out, trades.Trade{
			Price:       price,
			Size:        size,
			Side:        aggressor,
			TimestampMs: int64(tsSec * 1000),
		})
	}
	return out, nil
}

// Package venuea streams venue-A books and trades: one worker per
// symbol bootstrapping its book from a REST snapshot, then applying
// streaming deltas under a sequence-id reconciliation protocol and
// resyncing from a fresh snapshot on any gap.
package venuea

// VenueName identifies this venue in book/trade ring keys and logs.
const VenueName = "venue_a"

// snapshotResponse is the REST depth snapshot shape: a lastUpdateId
// checkpoint plus the full bid/ask level arrays.
type snapshotResponse struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// deltaFrame is one streaming depth delta: [U, u] first/last update ids
// inclusive, plus per-level bid/ask updates.
type deltaFrame struct {
	Symbol    string      `json:"s"`
	FirstID   int64       `json:"U"`
	LastID    int64       `json:"u"`
	BidUpdate [][2]string `json:"b"`
	AskUpdate [][2]string `json:"a"`
}

// tradeFrame is one streaming trade event. MakerSell false implies a
// buy-aggressor.
type tradeFrame struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Size      string `json:"q"`
	TimeMs    int64  `json:"T"`
	MakerSell bool   `json:"m"`
}

// exchangeInfoResponse lists every tradeable symbol and its trading
// status, used by the universe sampler.
type exchangeInfoResponse struct {
	Symbols []ExchangeSymbol `json:"symbols"`
}

// ExchangeSymbol describes one venue-A symbol's trading eligibility.
type ExchangeSymbol struct {
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	QuoteAsset    string `json:"quoteAsset"`
	IsSpotAllowed *bool  `json:"isSpotTradingAllowed"`
}

// TickerStat is one entry of the 24h ticker stats feed.
type TickerStat struct {
	Symbol             string `json:"symbol"`
	QuoteVolume        string `json:"quoteVolume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

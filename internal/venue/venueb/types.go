// Package venueb streams venue-B books and trades over a single
// multiplexed WebSocket subscribing to book and trade channels for a
// configured set of pairs. Venue B carries no sequence-id protocol: a
// full snapshot arrives at (re)subscription, so recovery is by
// reconnect.
package venueb

// VenueName identifies this venue in book/trade ring keys and logs.
const VenueName = "venue_b"

// subscribeRequest opens a book or trade subscription for a pair set.
type subscribeRequest struct {
	Event        string                 `json:"event"`
	Pair         []string               `json:"pair"`
	Subscription map[string]interface{} `json:"subscription"`
}

// frameEnvelope is the tagged shape every inbound message is decoded
// into first; Type selects which payload fields are meaningful.
// Unrecognized Type values are routed to the error sink rather than
// guessed at.
type frameEnvelope struct {
	Type  string      `json:"type"`
	Pair  string      `json:"pair"`
	As    [][2]string `json:"as,omitempty"`
	Bs    [][2]string `json:"bs,omitempty"`
	A     [][2]string `json:"a,omitempty"`
	B     [][2]string `json:"b,omitempty"`
	Trade [][4]string `json:"trades,omitempty"` // [price, size, ts_seconds, aggressor_code]
	Event string      `json:"event,omitempty"`
}

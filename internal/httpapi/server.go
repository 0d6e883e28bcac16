// Package httpapi is the read-only HTTP API over the running universe,
// merged metrics signal, raw per-venue books, and the alert and error
// trails, plus a Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotwatch/internal/alerts"
	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/metrics"
	"github.com/sawpanic/spotwatch/internal/symbols"
	"github.com/sawpanic/spotwatch/internal/venue"
)

const defaultMinUSD = 200000.0

// Server wires every query endpoint.
type Server struct {
	http       *http.Server
	store      *book.Store
	aggregator *metrics.Aggregator
	engine     *alerts.Engine
	sink       *errs.Sink

	runningVenueA func() []string
	venueBPairs   []string
	lastScan      func() symbols.ScanSummary
	lastFindings  func() []symbols.Finding
}

// NewServer builds the HTTP server on the configured port. runningVenueA
// reports the symbol manager's currently-streaming raw venue-A symbols;
// venueBPairs is the static configured venue-B pair list; lastScan
// reports the symbol manager's most recent universe rescan; lastFindings
// reports the global scanner's top-findings trail (nil when the global
// scan is disabled).
func NewServer(port int, store *book.Store, aggregator *metrics.Aggregator, engine *alerts.Engine, sink *errs.Sink, runningVenueA func() []string, venueBPairs []string, lastScan func() symbols.ScanSummary, lastFindings func() []symbols.Finding) *Server {
	s := &Server{
		store:         store,
		aggregator:    aggregator,
		engine:        engine,
		sink:          sink,
		runningVenueA: runningVenueA,
		venueBPairs:   venueBPairs,
		lastScan:      lastScan,
		lastFindings:  lastFindings,
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/universe", s.handleUniverse).Methods(http.MethodGet)
	r.HandleFunc("/signal", s.handleSignal).Methods(http.MethodGet)
	r.HandleFunc("/books", s.handleBooks).Methods(http.MethodGet)
	r.HandleFunc("/last", s.handleLast).Methods(http.MethodGet)
	r.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/errors", s.handleErrors).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleRoot serves the liveness view: {ok, service, ts}.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true, "service": "spotwatch", "ts": time.Now().UTC(),
	})
}

// handleUniverse serves {ok, ts, universe:{venue_a:[raw],
// venue_b:[pair]}}: the running venue-A symbols and the configured
// venue-B pairs.
func (s *Server) handleUniverse(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
		"ts": time.Now().UTC(),
		"universe": map[string]interface{}{
			"venue_a": s.runningVenueA(),
			"venue_b": s.venueBPairs,
		},
	})
}

// handleSignal serves {ok, running_symbols, metrics, large_levels,
// min_usd}, with `min_usd` defaulting to 200,000. large_levels lists,
// per running normalized key and venue, the book levels whose notional
// (price*size) clears min_usd, sorted by notional descending.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	minUSD := defaultMinUSD
	if raw := r.URL.Query().Get("min_usd"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "min_usd must be numeric")
			return
		}
		minUSD = parsed
	}

	tracked := s.trackedSymbols()
	running := make([]string, 0, len(tracked))
	seen := make(map[string]bool, len(tracked))
	for _, t := range tracked {
		if !seen[t.Key] {
			seen[t.Key] = true
			running = append(running, t.Key)
		}
	}
	sort.Strings(running)

	snapshotMap := make(map[string]metrics.Snapshot)
	for _, snap := range s.aggregator.All() {
		snapshotMap[snap.Key] = snap
	}

	largeLevels := make(map[string]map[string][]largeLevel, len(tracked))
	for _, t := range tracked {
		levels := s.largeLevelsFor(t.Venue, t.Raw, minUSD)
		if len(levels) == 0 {
			continue
		}
		if largeLevels[t.Key] == nil {
			largeLevels[t.Key] = make(map[string][]largeLevel)
		}
		largeLevels[t.Key][t.Venue] = levels
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":              true,
		"running_symbols": running,
		"metrics":         snapshotMap,
		"large_levels":    largeLevels,
		"min_usd":         minUSD,
	})
}

type largeLevel struct {
	Side     string  `json:"side"`
	Price    string  `json:"price"`
	Size     string  `json:"size"`
	Notional float64 `json:"notional"`
}

func (s *Server) largeLevelsFor(venueName, raw string, minUSD float64) []largeLevel {
	var out []largeLevel
	for _, lvl := range s.store.IterateLevels(venueName, raw, book.Bid) {
		if ll, ok := largeLevelFrom("bid", lvl, minUSD); ok {
			out = append(out, ll)
		}
	}
	for _, lvl := range s.store.IterateLevels(venueName, raw, book.Ask) {
		if ll, ok := largeLevelFrom("ask", lvl, minUSD); ok {
			out = append(out, ll)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Notional > out[j].Notional })
	return out
}

func largeLevelFrom(side string, lvl book.Level, minUSD float64) (largeLevel, bool) {
	price, size := levelFloat(lvl)
	notional := price * size
	if notional < minUSD {
		return largeLevel{}, false
	}
	return largeLevel{Side: side, Price: lvl.Price, Size: lvl.Size.String(), Notional: notional}, true
}

// trackedSymbol pairs a (venue, raw) book with its normalized key.
type trackedSymbol struct {
	Venue string
	Raw   string
	Key   string
}

func (s *Server) trackedSymbols() []trackedSymbol {
	out := make([]trackedSymbol, 0, len(s.venueBPairs)+8)
	for _, raw := range s.runningVenueA() {
		out = append(out, trackedSymbol{Venue: "venue_a", Raw: raw, Key: venue.NormalizeA(raw)})
	}
	for _, raw := range s.venueBPairs {
		out = append(out, trackedSymbol{Venue: "venue_b", Raw: raw, Key: venue.NormalizeB(raw)})
	}
	return out
}

// handleBooks resolves a base token to its raw book on each venue:
// {ok, symbol, books:{venue_a?:{raw,best_bid,best_ask,bids,asks},
// venue_b?:…}}.
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	key := strings.ToUpper(symbol) + "USD"
	n := 50
	if raw := r.URL.Query().Get("depth"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}

	books := make(map[string]interface{})
	for _, t := range s.trackedSymbols() {
		if t.Key != key {
			continue
		}
		view, ok := s.bookView(t.Venue, t.Raw, n)
		if ok {
			books[t.Venue] = view
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true, "symbol": strings.ToUpper(symbol), "books": books,
	})
}

func (s *Server) bookView(venueName, raw string, n int) (map[string]interface{}, bool) {
	bid, ask, ok := s.store.BestBidAsk(venueName, raw)
	bids := s.store.Top(venueName, raw, book.Bid, n)
	asks := s.store.Top(venueName, raw, book.Ask, n)
	if !ok && len(bids) == 0 && len(asks) == 0 {
		return nil, false
	}
	view := map[string]interface{}{
		"raw": raw, "bids": bids, "asks": asks,
	}
	if ok {
		view["best_bid"] = bid
		view["best_ask"] = ask
	}
	return view, true
}

// handleLast serves {ok, last_scan, last_findings}: the most recent
// universe-sample summary and the global scanner's top-findings trail.
func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	var findings []symbols.Finding
	if s.lastFindings != nil {
		findings = s.lastFindings()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"last_scan":     s.lastScan(),
		"last_findings": findings,
	})
}

// handleAlerts serves the bounded alert trail.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"alerts": s.engine.Trail(),
		"ts":     time.Now().UTC(),
	})
}

// handleErrors serves the bounded error trail.
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"errors": s.sink.Recent(),
		"ts":     time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError renders the uniform error shape {ok:false, error}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": message})
}

func levelFloat(lvl book.Level) (price, size float64) {
	pf, _ := strconv.ParseFloat(lvl.Price, 64)
	sf, _ := lvl.Size.Float64()
	return pf, sf
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		id, _ := r.Context().Value(requestIDKey{}).(string)
		log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

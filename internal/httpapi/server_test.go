package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/spotwatch/internal/alerts"
	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/metrics"
	"github.com/sawpanic/spotwatch/internal/symbols"
	"github.com/sawpanic/spotwatch/internal/trades"
)

func newTestServer(t *testing.T) (*Server, *book.Store) {
	t.Helper()
	store := book.NewStore(300)
	tr := trades.NewStore(100)

	running := func() []string { return []string{"XYZUSDT"} }
	pairs := []string{"XYZ/USD"}
	keys := keyFunc{running: running, pairs: pairs}

	agg := metrics.NewAggregator(0.01, 100000, 300*time.Second, store, tr, nil, keys)
	engine := alerts.NewEngine(65, 80, 20*time.Minute, agg, nil)
	sink := errs.NewSink(nil)
	lastScan := func() symbols.ScanSummary {
		return symbols.ScanSummary{At: time.Unix(1700000000, 0), Targets: []string{"XYZUSDT"}}
	}
	lastFindings := func() []symbols.Finding { return nil }

	return NewServer(0, store, agg, engine, sink, running, pairs, lastScan, lastFindings), store
}

type keyFunc struct {
	running func() []string
	pairs   []string
}

func (k keyFunc) Tracked() []metrics.TrackedSymbol {
	out := []metrics.TrackedSymbol{}
	for _, raw := range k.running() {
		out = append(out, metrics.TrackedSymbol{Venue: "venue_a", Raw: raw, Key: "XYZUSD"})
	}
	for _, raw := range k.pairs {
		out = append(out, metrics.TrackedSymbol{Venue: "venue_b", Raw: raw, Key: "XYZUSD"})
	}
	return out
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestRootReportsService(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "spotwatch", body["service"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUniverseListsBothVenues(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := get(t, s, "/universe")
	assert.Equal(t, http.StatusOK, rec.Code)

	universe := body["universe"].(map[string]interface{})
	assert.Equal(t, []interface{}{"XYZUSDT"}, universe["venue_a"])
	assert.Equal(t, []interface{}{"XYZ/USD"}, universe["venue_b"])
}

func TestSignalRejectsNonNumericMinUSD(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := get(t, s, "/signal?min_usd=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["ok"])
	assert.NotEmpty(t, body["error"])
}

func TestSignalReturnsLargeLevels(t *testing.T) {
	s, store := newTestServer(t)
	store.ApplySnapshot("venue_a", "XYZUSDT",
		[]book.Update{
			{Price: "100.00000000", Size: decimal.NewFromInt(5000)}, // 500k notional
			{Price: "99.00000000", Size: decimal.NewFromInt(1)},    // 99 notional
		},
		[]book.Update{{Price: "101.00000000", Size: decimal.NewFromInt(3000)}}, // 303k notional
		nil,
	)

	rec, body := get(t, s, "/signal?min_usd=200000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 200000.0, body["min_usd"])

	large := body["large_levels"].(map[string]interface{})
	venueA := large["XYZUSD"].(map[string]interface{})["venue_a"].([]interface{})
	require.Len(t, venueA, 2)
	// Sorted by notional descending.
	first := venueA[0].(map[string]interface{})
	assert.Equal(t, "100.00000000", first["price"])
}

func TestBooksRequiresSymbol(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := get(t, s, "/books")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["ok"])
}

func TestBooksResolvesBaseTokenAcrossVenues(t *testing.T) {
	s, store := newTestServer(t)
	store.ApplySnapshot("venue_a", "XYZUSDT",
		[]book.Update{{Price: "100.00000000", Size: decimal.NewFromInt(1)}},
		[]book.Update{{Price: "101.00000000", Size: decimal.NewFromInt(1)}},
		nil,
	)
	store.ApplySnapshot("venue_b", "XYZ/USD",
		[]book.Update{{Price: "100.50000000", Size: decimal.NewFromInt(2)}},
		[]book.Update{{Price: "100.90000000", Size: decimal.NewFromInt(2)}},
		nil,
	)

	rec, body := get(t, s, "/books?symbol=xyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "XYZ", body["symbol"])

	books := body["books"].(map[string]interface{})
	require.Contains(t, books, "venue_a")
	require.Contains(t, books, "venue_b")
	venueA := books["venue_a"].(map[string]interface{})
	assert.Equal(t, "XYZUSDT", venueA["raw"])
}

func TestLastReturnsScanAndFindings(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := get(t, s, "/last")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "last_scan")
	assert.Contains(t, body, "last_findings")
}

func TestAlertsAndErrorsTrailsServed(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := get(t, s, "/alerts")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])

	rec, body = get(t, s, "/errors")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
}

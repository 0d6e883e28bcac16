package symbols

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/venue/venuea"
)

const (
	findingsTopN     = 12
	findingsCapacity = 200
)

// Finding is one global-scan observation: a symbol that ranked among
// the top movers of a full-market ticker sweep. Findings feed the
// "last_findings" trail the /last endpoint serves.
type Finding struct {
	Symbol      string    `json:"symbol"`
	QuoteVolume float64   `json:"quote_volume"`
	ChangePct   float64   `json:"change_pct"`
	At          time.Time `json:"at"`
}

// GlobalScanner sweeps the full venue-A 24h ticker feed every
// global_scan_every_sec, independent of which symbols are streaming,
// and keeps a bounded trail of the top movers it saw. Disabled
// entirely when enable_global_scan is false.
type GlobalScanner struct {
	rest  *venuea.RESTClient
	sink  *errs.Sink
	every time.Duration

	mu       sync.Mutex
	findings []Finding

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGlobalScanner builds a scanner sweeping every interval.
func NewGlobalScanner(rest *venuea.RESTClient, sink *errs.Sink, every time.Duration) *GlobalScanner {
	return &GlobalScanner{rest: rest, sink: sink, every: every}
}

// Start launches the sweep loop: one immediate pass, then one per
// interval. Idempotent.
func (g *GlobalScanner) Start(parent context.Context) {
	if g.cancel != nil || g.every <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	g.wg.Add(1)
	go g.run(ctx)
}

// Stop halts the sweep loop.
func (g *GlobalScanner) Stop() {
	if g.cancel == nil {
		return
	}
	g.cancel()
	g.wg.Wait()
}

// Findings returns a snapshot of the trail, oldest first.
func (g *GlobalScanner) Findings() []Finding {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Finding, len(g.findings))
	copy(out, g.findings)
	return out
}

func (g *GlobalScanner) run(ctx context.Context) {
	defer g.wg.Done()
	g.scan(ctx)
	ticker := time.NewTicker(g.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.scan(ctx)
		}
	}
}

func (g *GlobalScanner) scan(ctx context.Context) {
	tickers, err := g.rest.FetchTickerStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			g.sink.Record("global_scan", err)
		}
		return
	}

	now := time.Now().UTC()
	found := make([]Finding, 0, len(tickers))
	for _, t := range tickers {
		vol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		chg, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		found = append(found, Finding{Symbol: t.Symbol, QuoteVolume: vol, ChangePct: chg, At: now})
	}
	sort.Slice(found, func(i, j int) bool {
		return math.Abs(found[i].ChangePct) > math.Abs(found[j].ChangePct)
	})
	if len(found) > findingsTopN {
		found = found[:findingsTopN]
	}

	g.mu.Lock()
	g.findings = append(g.findings, found...)
	if len(g.findings) > findingsCapacity {
		g.findings = g.findings[len(g.findings)-findingsCapacity:]
	}
	g.mu.Unlock()

	log.Debug().Int("findings", len(found)).Msg("global scan pass complete")
}

// Package symbols manages which venue-A symbols are streamed: periodic
// universe rescans that start and stop per-symbol workers while
// preserving a seed set and a hard cap, plus an optional full-market
// global scan recording the top movers.
package symbols

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/venue/venuea"
)

const (
	poolTopN       = 12
	sampleRetries  = 3
	samplePause    = 500 * time.Millisecond
)

// Sampler fetches venue-A exchange info and 24h ticker stats and ranks
// candidates by quote volume and |price change %|. The active-spot
// listing changes far less often than ticker stats, so it is cached
// for refreshEvery between rescans (universe_refresh_sec).
//
// Only the Manager's rescan goroutine calls Targets, so the cache
// needs no lock.
type Sampler struct {
	rest         *venuea.RESTClient
	sink         *errs.Sink
	refreshEvery time.Duration

	cachedActive map[string]bool
	cachedAt     time.Time
}

// NewSampler builds a Universe Sampler against the given REST client.
func NewSampler(rest *venuea.RESTClient, sink *errs.Sink, refreshEvery time.Duration) *Sampler {
	return &Sampler{rest: rest, sink: sink, refreshEvery: refreshEvery}
}

// Targets returns seeds + running + pool, de-duplicated with order
// preserved, truncated to maxSymbols. On total fetch failure (after
// sampleRetries attempts spaced by samplePause), it returns seeds
// unchanged. The sampler never mutates running state itself; the
// Manager does.
func (s *Sampler) Targets(ctx context.Context, seeds, running []string, maxSymbols int) []string {
	pool, err := s.pool(ctx)
	if err != nil {
		s.sink.Record("universe_sampler", err)
		log.Warn().Err(err).Msg("universe sample failed, falling back to seeds")
		return dedupeTruncate(seeds, maxSymbols)
	}
	ordered := append(append([]string{}, seeds...), running...)
	ordered = append(ordered, pool...)
	return dedupeTruncate(ordered, maxSymbols)
}

func (s *Sampler) pool(ctx context.Context) ([]string, error) {
	activeSpot, err := s.activeSpot(ctx)
	if err != nil {
		return nil, err
	}
	tickers, err := s.retryTickers(ctx)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		symbol string
		volume float64
		change float64
	}
	var candidates []ranked
	for _, t := range tickers {
		if !activeSpot[t.Symbol] {
			continue
		}
		vol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
		chg, _ := strconv.ParseFloat(t.PriceChangePercent, 64)
		candidates = append(candidates, ranked{t.Symbol, vol, math.Abs(chg)})
	}

	byVolume := append([]ranked{}, candidates...)
	sort.Slice(byVolume, func(i, j int) bool { return byVolume[i].volume > byVolume[j].volume })
	byChange := append([]ranked{}, candidates...)
	sort.Slice(byChange, func(i, j int) bool { return byChange[i].change > byChange[j].change })

	seen := make(map[string]bool)
	var pool []string
	for _, r := range byVolume[:minInt(poolTopN, len(byVolume))] {
		if !seen[r.symbol] {
			seen[r.symbol] = true
			pool = append(pool, r.symbol)
		}
	}
	for _, r := range byChange[:minInt(poolTopN, len(byChange))] {
		if !seen[r.symbol] {
			seen[r.symbol] = true
			pool = append(pool, r.symbol)
		}
	}
	return pool, nil
}

// activeSpot returns the TRADING + USD-family-quote + spot-allowed
// symbol set, refetching exchange info only once the cached listing is
// older than refreshEvery.
func (s *Sampler) activeSpot(ctx context.Context) (map[string]bool, error) {
	if s.cachedActive != nil && s.refreshEvery > 0 && time.Since(s.cachedAt) < s.refreshEvery {
		return s.cachedActive, nil
	}
	symbols, err := s.retry(ctx, s.rest.FetchExchangeInfo)
	if err != nil {
		if s.cachedActive != nil {
			return s.cachedActive, nil
		}
		return nil, err
	}
	active := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		if sym.Status != "TRADING" {
			continue
		}
		if !isUSDQuote(sym.QuoteAsset) {
			continue
		}
		if sym.IsSpotAllowed != nil && !*sym.IsSpotAllowed {
			continue
		}
		active[sym.Symbol] = true
	}
	s.cachedActive = active
	s.cachedAt = time.Now()
	return active, nil
}

func (s *Sampler) retry(ctx context.Context, fn func(context.Context) ([]venuea.ExchangeSymbol, error)) ([]venuea.ExchangeSymbol, error) {
	var lastErr error
	for i := 0; i < sampleRetries; i++ {
		syms, err := fn(ctx)
		if err == nil {
			return syms, nil
		}
		lastErr = err
		sleepCtx(ctx, samplePause)
	}
	return nil, lastErr
}

func (s *Sampler) retryTickers(ctx context.Context) ([]venuea.TickerStat, error) {
	var lastErr error
	for i := 0; i < sampleRetries; i++ {
		t, err := s.rest.FetchTickerStats(ctx)
		if err == nil {
			return t, nil
		}
		lastErr = err
		sleepCtx(ctx, samplePause)
	}
	return nil, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func isUSDQuote(quote string) bool {
	q := strings.ToUpper(quote)
	return q == "USD" || q == "USDT" || q == "USDC"
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func dedupeTruncate(list []string, max int) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

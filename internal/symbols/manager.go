package symbols

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/netutil"
	"github.com/sawpanic/spotwatch/internal/obs"
	"github.com/sawpanic/spotwatch/internal/trades"
	"github.com/sawpanic/spotwatch/internal/venue/venuea"
)

// ScanSummary is the /last endpoint's view of the most recent universe
// rescan.
type ScanSummary struct {
	At      time.Time `json:"at"`
	Targets []string  `json:"targets"`
}

// Manager owns the running set of venue-A stream workers: it seeds a
// floor of symbols, rescans the universe on scan_interval_sec, and
// starts/stops workers to track the sampler's target set without ever
// dropping a seed.
type Manager struct {
	seeds      []string
	maxSymbols int
	wsBaseURL  string
	depthLimit int
	restBase   string
	limiter    *netutil.Limiter

	store   *book.Store
	tr      *trades.Store
	sink    *errs.Sink
	metrics *obs.Registry
	sampler *Sampler

	mu      sync.Mutex
	workers map[string]*venuea.Worker
	ctx     context.Context
	cancel  context.CancelFunc

	lastScan atomic.Value // ScanSummary
}

// NewManager builds a Symbol Manager. wsBaseURL/restBase point at
// venue A's streaming and REST endpoints; depthLimit, maxSymbols, and
// universeRefresh come from Config.
func NewManager(seeds []string, maxSymbols int, wsBaseURL, restBase string, depthLimit int, universeRefresh time.Duration, limiter *netutil.Limiter, store *book.Store, tr *trades.Store, sink *errs.Sink, metrics *obs.Registry) *Manager {
	rest := venuea.NewRESTClient(restBase, limiter)
	return &Manager{
		seeds:      seeds,
		maxSymbols: maxSymbols,
		wsBaseURL:  wsBaseURL,
		depthLimit: depthLimit,
		restBase:   restBase,
		limiter:    limiter,
		store:      store,
		tr:         tr,
		sink:       sink,
		metrics:    metrics,
		sampler:    NewSampler(rest, sink, universeRefresh),
		workers:    make(map[string]*venuea.Worker),
	}
}

// Start seeds every configured symbol, runs one immediate universe
// sample to fill the running set up to the cap, then launches the
// periodic rescan loop at scanInterval cadence.
func (m *Manager) Start(parent context.Context, scanInterval time.Duration) {
	m.ctx, m.cancel = context.WithCancel(parent)

	m.mu.Lock()
	for _, raw := range m.seeds {
		m.startLocked(raw)
	}
	m.mu.Unlock()
	m.lastScan.Store(ScanSummary{At: time.Now(), Targets: append([]string{}, m.seeds...)})

	go func() {
		m.rescan()
		m.rescanLoop(scanInterval)
	}()
}

// LastScan returns a summary of the most recent rescan (seed start
// counts as the first "scan" before any periodic rescan has run).
func (m *Manager) LastScan() ScanSummary {
	v, _ := m.lastScan.Load().(ScanSummary)
	return v
}

// Stop halts the rescan loop and every running worker.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for raw, w := range m.workers {
		w.Stop()
		delete(m.workers, raw)
	}
}

// Running returns the raw symbols currently streaming.
func (m *Manager) Running() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.workers))
	for raw := range m.workers {
		out = append(out, raw)
	}
	return out
}

func (m *Manager) rescanLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.rescan()
		}
	}
}

// rescan asks the sampler for the next target set and reconciles it
// against the running set: new symbols start, symbols absent from the
// target set (and not a seed) stop. Seeds are never stopped.
func (m *Manager) rescan() {
	running := m.Running()
	targets := m.sampler.Targets(m.ctx, m.seeds, running, m.maxSymbols)
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}
	seedSet := make(map[string]bool, len(m.seeds))
	for _, s := range m.seeds {
		seedSet[s] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, raw := range targets {
		if _, ok := m.workers[raw]; !ok {
			m.startLocked(raw)
		}
	}
	for raw, w := range m.workers {
		if !targetSet[raw] && !seedSet[raw] {
			w.Stop()
			delete(m.workers, raw)
			log.Info().Str("symbol", raw).Msg("universe rescan dropped symbol")
		}
	}
	if m.metrics != nil {
		m.metrics.RunningSymbols.Set(float64(len(m.workers)))
	}
	m.lastScan.Store(ScanSummary{At: time.Now(), Targets: targets})
}

// startLocked spawns and starts a worker for raw. Caller must hold m.mu.
func (m *Manager) startLocked(raw string) {
	if _, ok := m.workers[raw]; ok {
		return
	}
	rest := venuea.NewRESTClient(m.restBase, m.limiter)
	w := venuea.NewWorker(raw, m.wsBaseURL, m.depthLimit, rest, m.store, m.tr, m.sink, m.metrics)
	w.Start(m.ctx)
	m.workers[raw] = w
	if m.metrics != nil {
		m.metrics.RunningSymbols.Set(float64(len(m.workers)))
	}
}

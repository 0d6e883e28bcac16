// Package obs holds the Prometheus metrics registry shared across
// components, exposed at /metrics by the HTTP server.
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric spotwatch exports.
type Registry struct {
	WSConnects    *prometheus.CounterVec
	WSDisconnects *prometheus.CounterVec
	Resyncs       *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec

	RunningSymbols prometheus.Gauge
	BandImbalance  *prometheus.GaugeVec
	AggressorPct   *prometheus.GaugeVec
	LargeTrades    *prometheus.GaugeVec

	AlertsEmitted *prometheus.CounterVec
}

// NewRegistry builds and registers every spotwatch metric.
func NewRegistry() *Registry {
	r := &Registry{
		WSConnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_ws_connects_total",
				Help: "Total WebSocket connect attempts by venue",
			},
			[]string{"venue"},
		),
		WSDisconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_ws_disconnects_total",
				Help: "Total WebSocket disconnects by venue and reason",
			},
			[]string{"venue", "reason"},
		),
		Resyncs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_resyncs_total",
				Help: "Total venue-A reconciliation resyncs by symbol",
			},
			[]string{"symbol"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_errors_total",
				Help: "Total errors recorded to the error sink by source",
			},
			[]string{"source"},
		),
		RunningSymbols: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spotwatch_running_symbols",
				Help: "Number of venue-A symbols currently streaming",
			},
		),
		BandImbalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotwatch_band_imbalance_pct",
				Help: "Band imbalance percentage by normalized key",
			},
			[]string{"key"},
		),
		AggressorPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotwatch_aggressor_buy_pct",
				Help: "Aggressor buy percentage over the trade window, by normalized key",
			},
			[]string{"key"},
		),
		LargeTrades: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spotwatch_large_trades",
				Help: "Count of large trades over the trade window, by normalized key",
			},
			[]string{"key"},
		),
		AlertsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spotwatch_alerts_emitted_total",
				Help: "Total alerts emitted by level",
			},
			[]string{"level"},
		),
	}

	prometheus.MustRegister(
		r.WSConnects, r.WSDisconnects, r.Resyncs, r.ErrorsTotal,
		r.RunningSymbols, r.BandImbalance, r.AggressorPct, r.LargeTrades,
		r.AlertsEmitted,
	)
	return r
}

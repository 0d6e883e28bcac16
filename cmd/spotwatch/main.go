// Command spotwatch runs the multi-venue order-book, metrics, and
// alerting service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/spotwatch/internal/alerts"
	"github.com/sawpanic/spotwatch/internal/book"
	"github.com/sawpanic/spotwatch/internal/config"
	"github.com/sawpanic/spotwatch/internal/errs"
	"github.com/sawpanic/spotwatch/internal/httpapi"
	"github.com/sawpanic/spotwatch/internal/metrics"
	"github.com/sawpanic/spotwatch/internal/netutil"
	"github.com/sawpanic/spotwatch/internal/obs"
	"github.com/sawpanic/spotwatch/internal/symbols"
	"github.com/sawpanic/spotwatch/internal/trades"
	"github.com/sawpanic/spotwatch/internal/venue"
	"github.com/sawpanic/spotwatch/internal/venue/venuea"
	"github.com/sawpanic/spotwatch/internal/venue/venueb"
)

func main() {
	setupLogging()

	var configPath string
	var venueARESTBase, venueAWSBase, venueBWSURL string

	root := &cobra.Command{Use: "spotwatch"}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the order-book, metrics, and alerting service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, venueARESTBase, venueAWSBase, venueBWSURL)
		},
	}
	serve.Flags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")
	serve.Flags().StringVar(&venueARESTBase, "venue-a-rest", "https://api.venue-a.example", "venue A REST base URL")
	serve.Flags().StringVar(&venueAWSBase, "venue-a-ws", "wss://stream.venue-a.example/ws", "venue A WebSocket base URL")
	serve.Flags().StringVar(&venueBWSURL, "venue-b-ws", "wss://ws.venue-b.example", "venue B WebSocket URL")

	root.AddCommand(serve)
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("spotwatch exited with error")
	}
}

func setupLogging() {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func runServe(configPath, venueARESTBase, venueAWSBase, venueBWSURL string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	metricsRegistry := obs.NewRegistry()
	sink := errs.NewSink(metricsRegistry)
	bookStore := book.NewStore(cfg.MaxLevels)
	tradeStore := trades.NewStore(0)
	limiter := netutil.NewLimiter(10, 20)

	manager := symbols.NewManager(
		cfg.SeedSymbols, cfg.MaxSymbols, venueAWSBase, venueARESTBase,
		cfg.DepthLimit, time.Duration(cfg.UniverseRefreshSec)*time.Second,
		limiter, bookStore, tradeStore, sink, metricsRegistry,
	)

	var scanner *symbols.GlobalScanner
	if cfg.EnableGlobalScan {
		scanner = symbols.NewGlobalScanner(
			venuea.NewRESTClient(venueARESTBase, limiter), sink,
			time.Duration(cfg.GlobalScanEverySec)*time.Second,
		)
	}

	venueBWorker := venueb.NewWorker(venueBWSURL, cfg.VenueBPairs, cfg.DepthLimit, bookStore, tradeStore, sink, metricsRegistry)

	keySource := &trackedKeys{manager: manager, venueBPairs: cfg.VenueBPairs}
	aggregator := metrics.NewAggregator(
		cfg.MetricsBandPct, cfg.LargeTradeSize, time.Duration(cfg.TradeWindowSec)*time.Second,
		bookStore, tradeStore, metricsRegistry, keySource,
	)

	engine := alerts.NewEngine(cfg.ThresholdGreen, cfg.ThresholdOrange, time.Duration(cfg.AlertCooldownSec)*time.Second, aggregator, metricsRegistry)

	lastFindings := func() []symbols.Finding { return nil }
	if scanner != nil {
		lastFindings = scanner.Findings
	}
	server := httpapi.NewServer(cfg.Port, bookStore, aggregator, engine, sink, manager.Running, cfg.VenueBPairs, manager.LastScan, lastFindings)

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx, time.Duration(cfg.ScanIntervalSec)*time.Second)
	if scanner != nil {
		scanner.Start(ctx)
	}
	venueBWorker.Start(ctx)
	aggregator.Start(ctx)
	engine.Start(ctx)

	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("http server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	engine.Stop()
	aggregator.Stop()
	venueBWorker.Stop()
	if scanner != nil {
		scanner.Stop()
	}
	manager.Stop()
	cancel()

	return nil
}

// trackedKeys adapts the symbol manager's running set and the static
// venue-B pair list into the metrics aggregator's KeySource, folding
// both venues' raw symbols to their normalized cross-venue key.
type trackedKeys struct {
	manager     *symbols.Manager
	venueBPairs []string
}

func (t *trackedKeys) Tracked() []metrics.TrackedSymbol {
	out := make([]metrics.TrackedSymbol, 0, len(t.venueBPairs))
	for _, raw := range t.manager.Running() {
		out = append(out, metrics.TrackedSymbol{Venue: venuea.VenueName, Raw: raw, Key: venue.NormalizeA(raw)})
	}
	for _, raw := range t.venueBPairs {
		out = append(out, metrics.TrackedSymbol{Venue: venueb.VenueName, Raw: raw, Key: venue.NormalizeB(raw)})
	}
	return out
}

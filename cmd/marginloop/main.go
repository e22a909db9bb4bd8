package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marginloop/internal/cfg"
	"marginloop/internal/conflict"
	"marginloop/internal/emergency"
	"marginloop/internal/engine"
	"marginloop/internal/eventbus"
	"marginloop/internal/exchange"
	"marginloop/internal/exchange/binance"
	"marginloop/internal/exchange/generic"
	"marginloop/internal/filters"
	"marginloop/internal/guards"
	"marginloop/internal/klinecache"
	"marginloop/internal/ledger"
	"marginloop/internal/marginmode"
	"marginloop/internal/metrics"
	"marginloop/internal/positionview"
	"marginloop/internal/ratelimit"
	"marginloop/internal/risk"
	"marginloop/internal/storage"
	"marginloop/internal/stoploss"
	"marginloop/internal/strategyloop"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const cacheTTL = 5 * time.Second

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	adapter := newAdapter(c)

	freg := filters.New(adapter, 10*time.Minute)
	kcache := klinecache.New(adapter, cacheTTL)
	posview := positionview.New(adapter, cacheTTL)
	limiter := ratelimit.New(time.Minute, 2400, 50*time.Millisecond)

	led := ledger.New()
	g := guards.New()
	riskCoord := risk.New(led, g, posview, c.MaxDailyLoss)
	enforcer := marginmode.New(adapter, freg)
	slEval := stoploss.New(c.StopLoss)
	resolver := conflict.New(adapter, led, g, c.MaxOrderRetries, time.Second)
	netmon := emergency.NewNetworkMonitor(5, 2*time.Minute)
	closer := emergency.NewCloser(adapter, led, c.MaxOrderRetries, time.Second)

	var store *storage.Store
	if c.DataPath != "" {
		store, err = storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		} else {
			defer store.Close()
		}
	}

	bus := eventbus.New(fmt.Sprintf(":%d", c.EventBusPort), 256)
	bus.Start()
	defer bus.Stop(context.Background())

	eng := engine.New(c, adapter, kcache, freg, posview, limiter, led, g, riskCoord, enforcer, slEval, resolver, netmon, closer, bus, store, mw)

	if store != nil {
		if err := eng.Replay(); err != nil {
			log.Warn().Err(err).Msg("journal replay failed, starting with an empty ledger")
		}
	}

	if err := enforcer.EnsurePositionMode(ctx, c.PositionMode == "HEDGE"); err != nil {
		log.Warn().Err(err).Msg("failed to apply account position mode")
	}

	startMetricsServer(ctx, c.MetricsPort)

	intervals := c.Intervals
	if len(intervals) == 0 {
		intervals = []string{"1h"}
	}

	pairs := make([]strategyloop.Pair, 0, len(c.Symbols)*len(intervals))
	for _, symbol := range c.Symbols {
		for _, interval := range intervals {
			period, err := parseInterval(interval)
			if err != nil {
				log.Warn().Err(err).Str("interval", interval).Msg("could not parse interval, defaulting to 1h")
				period = time.Hour
			}
			pairs = append(pairs, strategyloop.Pair{Symbol: symbol, Interval: interval, Period: period})
		}
	}

	loop := strategyloop.New(pairs, len(pairs), eng.OnTick)
	loop.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context cancelled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		loop.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all strategy loops stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}

// newAdapter selects the exchange adapter backend configured by
// ConnectorBackend, matching spec §4.1's "variants per vendor SDK"
// choice between the Binance USDT-M connector and the generic
// bitunix-style connector.
func newAdapter(c cfg.Settings) exchange.Adapter {
	switch c.ConnectorBackend {
	case "generic":
		return generic.New(c.Key, c.Secret, c.BaseURL, c.RESTTimeout)
	default:
		return binance.New(c.Key, c.Secret, c.BaseURL, c.RESTTimeout)
	}
}

func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// parseInterval converts a Binance-style kline interval into a Go
// duration; "d" is expanded to 24h since Go has no day unit.
func parseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	unit := interval[len(interval)-1]
	var n int
	if _, err := fmt.Sscanf(interval[:len(interval)-1], "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported interval unit in %q", interval)
	}
}

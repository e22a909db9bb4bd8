// Package engine wires every component of the strategy and order
// lifecycle together into a single per-symbol tick: fetch klines,
// evaluate the configured indicators, run the signal through the guard
// layers, size and place (or flip, or close) the order, and check the
// stop-loss thresholds on whatever the ledger holds afterward.
//
// Grounded on internal/exec/executor.go's Exec.Try, which is the
// teacher's equivalent single entry point tying strategy evaluation to
// order placement.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"marginloop/internal/cfg"
	"marginloop/internal/conflict"
	"marginloop/internal/emergency"
	"marginloop/internal/eventbus"
	"marginloop/internal/exchange"
	"marginloop/internal/filters"
	"marginloop/internal/guards"
	"marginloop/internal/indicators"
	"marginloop/internal/klinecache"
	"marginloop/internal/ledger"
	"marginloop/internal/marginmode"
	"marginloop/internal/metrics"
	"marginloop/internal/positionview"
	"marginloop/internal/ratelimit"
	"marginloop/internal/risk"
	"marginloop/internal/signals"
	"marginloop/internal/sizer"
	"marginloop/internal/storage"
	"marginloop/internal/stoploss"
	"marginloop/internal/strategyloop"

	"github.com/rs/zerolog/log"
)

// Engine holds every constructed component and evaluates one strategy
// tick per symbol.
type Engine struct {
	cfg     cfg.Settings
	adapter exchange.Adapter

	klines    *klinecache.Cache
	filters   *filters.Registry
	positions *positionview.Tracker
	limiter   *ratelimit.Limiter
	rlKey     ratelimit.Key

	ledger    *ledger.Ledger
	guards    *guards.Guards
	riskCoord *risk.Coordinator
	margin    *marginmode.Enforcer
	stopLoss  *stoploss.Evaluator
	resolver  *conflict.Resolver
	netmon    *emergency.NetworkMonitor
	closer    *emergency.Closer

	bus   *eventbus.Bus
	store *storage.Store
	mw    *metrics.MetricsWrapper
}

// New builds an Engine from its constructed dependencies.
func New(
	c cfg.Settings,
	adapter exchange.Adapter,
	klines *klinecache.Cache,
	freg *filters.Registry,
	positions *positionview.Tracker,
	limiter *ratelimit.Limiter,
	led *ledger.Ledger,
	g *guards.Guards,
	riskCoord *risk.Coordinator,
	margin *marginmode.Enforcer,
	stopLoss *stoploss.Evaluator,
	resolver *conflict.Resolver,
	netmon *emergency.NetworkMonitor,
	closer *emergency.Closer,
	bus *eventbus.Bus,
	store *storage.Store,
	mw *metrics.MetricsWrapper,
) *Engine {
	return &Engine{
		cfg:       c,
		adapter:   adapter,
		klines:    klines,
		filters:   freg,
		positions: positions,
		limiter:   limiter,
		rlKey:     ratelimit.Key{Environment: c.AccountType, Account: c.Key},
		ledger:    led,
		guards:    g,
		riskCoord: riskCoord,
		margin:    margin,
		stopLoss:  stopLoss,
		resolver:  resolver,
		netmon:    netmon,
		closer:    closer,
		bus:       bus,
		store:     store,
		mw:        mw,
	}
}

// Replay rebuilds the ledger from the journal at startup.
func (e *Engine) Replay() error {
	records, err := e.store.ReplayAll()
	if err != nil {
		return fmt.Errorf("engine: replay journal: %w", err)
	}
	for _, rec := range records {
		switch rec.Action {
		case "OPEN", "ADD":
			e.ledger.Open(rec.Key, rec.Quantity, rec.Price, rec.MarginUSDT)
		case "CLOSE":
			e.ledger.Close(rec.Key, rec.Quantity, rec.Price)
		}
	}
	log.Info().Int("records", len(records)).Msg("engine: replayed journal")
	return nil
}

// OnTick is the strategyloop.TickFunc for one symbol: it evaluates every
// configured indicator against the latest closed bar and acts on
// whichever signals clear the guard layers.
func (e *Engine) OnTick(ctx context.Context, tick strategyloop.Tick) {
	symbol := tick.Symbol
	if e.closer.Running() {
		return
	}

	interval := tick.Interval
	if interval == "" {
		interval = firstOr(e.cfg.Intervals, "1h")
	}
	lookback := e.cfg.Lookback
	if lookback <= 0 {
		lookback = 200
	}

	if err := e.limiter.Acquire(ctx, e.rlKey, 1); err != nil {
		return
	}

	klines, err := e.klines.Get(ctx, symbol, interval, lookback)
	if e.observeNetwork(err) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("engine: klines fetch failed")
		return
	}
	if len(klines) < 2 {
		return
	}
	latest := klines[len(klines)-1]

	symCfg := e.cfg.GetSymbolConfig(symbol)
	if err := e.margin.Ensure(ctx, symbol, symCfg.Leverage, e.cfg.MarginMode); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("engine: margin mode enforcement failed")
	}

	for name, spec := range e.cfg.Indicators {
		e.evaluateIndicator(ctx, symbol, interval, name, spec, klines, latest)
	}

	e.checkStopLosses(ctx, symbol)
}

func (e *Engine) evaluateIndicator(ctx context.Context, symbol, interval, name string, spec cfg.IndicatorSpec, klines []exchange.Kline, latest exchange.Kline) {
	key := guards.GuardKey{Symbol: symbol, Interval: interval, Indicator: name}
	if e.guards.BarGuard(key, time.UnixMilli(latest.CloseTime)) {
		return
	}

	sig := e.computeSignal(name, spec, klines)
	if sig.Direction == signals.None {
		return
	}

	streak := e.guards.Confirm(key, sig.Direction.String())
	if !e.guards.Confirmed(key, spec.ConfirmationBars) {
		log.Debug().Str("symbol", symbol).Str("indicator", name).Int("streak", streak).Msg("engine: signal not yet confirmed")
		return
	}

	legKey := ledger.LegKey{Symbol: symbol, Interval: interval, Indicator: name, PositionSide: positionSideFor(sig.Direction)}
	slotCount := e.ledger.SlotCount(symbol)
	signature := guards.NormalizeSignature(symbol, name, sig.Direction.String(), slotCount)

	intervalSecs, err := parseIntervalDuration(interval)
	secs := 60.0
	if err == nil {
		secs = intervalSecs.Seconds()
	}
	if e.guards.SignatureGuard(key, signature, secs, time.Now()) {
		e.mw.GuardRejectionsTotal().Inc()
		return
	}

	if !e.guards.ReserveAttempt(key, signature, 30*time.Second) {
		return
	}
	defer e.guards.ReleaseAttempt(key)

	if !e.riskCoord.CanOpen(symbol) {
		e.mw.GuardRejectionsTotal().Inc()
		return
	}
	if err := e.riskCoord.BeginOpen(symbol); err != nil {
		e.mw.GuardRejectionsTotal().Inc()
		return
	}
	defer e.riskCoord.EndOpen(symbol)

	existing, hasLeg := e.ledger.Get(legKey)
	opposite := ledger.LegKey{Symbol: symbol, Interval: interval, Indicator: name, PositionSide: oppositeSide(legKey.PositionSide)}
	oppositeLeg, hasOpposite := e.ledger.Get(opposite)

	switch {
	case hasOpposite && oppositeLeg.TotalQty > 0:
		e.flip(ctx, opposite, sig, key, signature)
	case hasLeg && existing.TotalQty > 0:
		cooldown := time.Duration(spec.FlipCooldownSeconds * float64(time.Second))
		if e.guards.FlipCooldown(key, cooldown, time.Now()) {
			return
		}
		e.addToLeg(ctx, legKey, symbol, sig, slotCount+1)
	default:
		e.openLeg(ctx, legKey, symbol, sig, spec, slotCount+1, signature)
	}
}

func (e *Engine) computeSignal(name string, spec cfg.IndicatorSpec, klines []exchange.Kline) signals.Signal {
	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
	}
	period := intParam(spec.Params, "period", 14)

	switch name {
	case "rsi":
		vals := indicators.RSI(closes, period)
		return signals.EvaluateThreshold(name, lastOf(vals), spec)
	case "stochastic":
		k, _ := indicators.Stochastic(highs, lows, closes, period, intParam(spec.Params, "dPeriod", 3))
		return signals.EvaluateThreshold(name, lastOf(k), spec)
	case "williams_r":
		vals := indicators.WilliamsR(highs, lows, closes, period)
		return signals.EvaluateThreshold(name, lastOf(vals), spec)
	case "ultimate_oscillator":
		vals := indicators.UltimateOscillator(highs, lows, closes,
			intParam(spec.Params, "p1", 7), intParam(spec.Params, "p2", 14), intParam(spec.Params, "p3", 28))
		return signals.EvaluateThreshold(name, lastOf(vals), spec)
	case "adx":
		_, plusDI, minusDI := indicators.ADX(highs, lows, closes, period)
		return signals.EvaluateThreshold(name, lastOf(plusDI)-lastOf(minusDI), spec)
	case "sma_cross":
		fast := indicators.SMA(closes, intParam(spec.Params, "fast", 10))
		slow := indicators.SMA(closes, intParam(spec.Params, "slow", 30))
		return signals.EvaluateCrossing(name, fast, slow)
	case "ema_cross":
		fast := indicators.EMA(closes, intParam(spec.Params, "fast", 12))
		slow := indicators.EMA(closes, intParam(spec.Params, "slow", 26))
		return signals.EvaluateCrossing(name, fast, slow)
	case "macd":
		macd, sig, _ := indicators.MACD(closes,
			intParam(spec.Params, "fast", 12), intParam(spec.Params, "slow", 26), intParam(spec.Params, "signal", 9))
		return signals.EvaluateCrossing(name, macd, sig)
	case "bollinger":
		_, upper, lower := indicators.BollingerBands(closes, period, spec.Params["numStdDev"])
		price := lastOf(closes)
		pctB := math.NaN()
		if span := lastOf(upper) - lastOf(lower); span > 0 {
			pctB = (price - lastOf(lower)) / span
		}
		return signals.EvaluateThreshold(name, pctB, spec)
	default:
		vals := indicators.RSI(closes, period)
		return signals.EvaluateThreshold(name, lastOf(vals), spec)
	}
}

func (e *Engine) openLeg(ctx context.Context, key ledger.LegKey, symbol string, sig signals.Signal, spec cfg.IndicatorSpec, desiredSlots int, signature string) {
	f, err := e.filters.Get(ctx, symbol)
	if e.observeNetwork(err) || err != nil {
		return
	}
	bal, err := e.adapter.GetBalance(ctx, "USDT")
	if e.observeNetwork(err) || err != nil {
		return
	}

	existingIndicatorMargin := 0.0
	if leg, ok := e.ledger.Get(key); ok {
		existingIndicatorMargin = leg.TotalMargin
	}

	result, err := sizer.Size(sizer.Input{
		Settings:                e.cfg,
		IndicatorSpec:           spec,
		SymbolFilters:           f,
		AccountBalance:          bal.AvailableBalance,
		Price:                   e.lastKnownPrice(ctx, symbol),
		ExistingSlots:           e.ledger.SlotCount(symbol),
		DesiredSlots:            desiredSlots,
		ExistingIndicatorMargin: existingIndicatorMargin,
		ExistingSideMargin:      e.sideMargin(symbol, key.PositionSide),
	})
	if err != nil {
		e.mw.SizerBlockedTotal().Inc()
		return
	}

	side := exchange.SideBuy
	if sig.Direction == signals.Sell {
		side = exchange.SideSell
	}

	start := time.Now()
	fill, err := e.adapter.PlaceFuturesMarketOrder(ctx, exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		PositionSide: key.PositionSide,
		Quantity:     result.Quantity,
	})
	e.mw.OrderExecutionDuration().Observe(time.Since(start).Seconds())
	if e.observeNetwork(err) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("leg", key.String()).Msg("engine: open order failed")
		return
	}

	e.mw.OrdersTotal().Inc()
	e.ledger.Open(key, fill.ExecutedQty, fill.AvgPrice, result.MarginUSDT)
	e.guards.RecordOpen(guards.GuardKey{Symbol: symbol, Interval: key.Interval, Indicator: key.Indicator}, signature, time.Now())
	e.mw.UpdateActiveLegs(e.ledger.SlotCount(symbol))

	if e.store != nil {
		e.store.Append(storage.JournalRecord{Key: key, Action: "OPEN", Quantity: fill.ExecutedQty, Price: fill.AvgPrice, MarginUSDT: result.MarginUSDT, At: time.Now()})
	}
	if e.bus != nil {
		e.bus.Publish("leg_opened", fill)
	}
}

func (e *Engine) addToLeg(ctx context.Context, key ledger.LegKey, symbol string, sig signals.Signal, desiredSlots int) {
	if e.cfg.AddOnly {
		return
	}
	spec := e.cfg.Indicators[key.Indicator]
	e.openLeg(ctx, key, symbol, sig, spec, desiredSlots, guards.NormalizeSignature(symbol, key.Indicator, sig.Direction.String(), desiredSlots))
}

func (e *Engine) flip(ctx context.Context, key ledger.LegKey, sig signals.Signal, gk guards.GuardKey, signature string) {
	side := exchange.SideBuy
	if sig.Direction == signals.Sell {
		side = exchange.SideSell
	}
	leg, ok := e.ledger.Get(key)
	if !ok {
		return
	}

	start := time.Now()
	fill, err := e.resolver.Flip(ctx, key, side, leg.TotalQty)
	e.mw.OrderExecutionDuration().Observe(time.Since(start).Seconds())
	if err != nil {
		if e.observeNetwork(err) {
			return
		}
		log.Error().Err(err).Str("leg", key.String()).Msg("engine: flip failed")
		e.mw.ResidualConflictsTotal().Inc()
		return
	}

	e.mw.FlipsTotal().Inc()
	e.guards.RecordOpen(gk, signature, time.Now())
	if e.store != nil {
		e.store.Append(storage.JournalRecord{Key: key, Action: "CLOSE", Quantity: leg.TotalQty, Price: fill.AvgPrice, At: time.Now()})
	}
	if e.bus != nil {
		e.bus.Publish("flip", fill)
	}
}

// checkStopLosses evaluates every open leg's entries against the
// per-trade threshold individually (spec §4.12: each Entry breaches and
// closes independently, supporting partial liquidation), then the
// cumulative and entire-account scopes against the symbol's aggregate.
func (e *Engine) checkStopLosses(ctx context.Context, symbol string) {
	legs := e.ledger.LegsForSymbol(symbol)
	if len(legs) == 0 {
		return
	}

	live, err := e.positions.Positions(ctx, symbol)
	if e.observeNetwork(err) || err != nil {
		return
	}
	qtyBySide := make(map[string]float64)
	pnlBySide := make(map[string]float64)
	for _, p := range live {
		qtyBySide[p.PositionSide] += math.Abs(p.PositionAmt)
		pnlBySide[p.PositionSide] += p.UnrealizedPnL
	}

	lastPrice := e.lastKnownPrice(ctx, symbol)

	var totalPnL, totalMargin float64
	for _, leg := range legs {
		totalPnL += pnlBySide[leg.Key.PositionSide]
		totalMargin += leg.TotalMargin

		// Reconcile the ledger to the exchange-reported quantity before
		// evaluating per-entry breaches, so a partial close made outside
		// this engine (manual intervention, a prior crash) doesn't leave
		// entries referencing qty the venue no longer holds.
		if actual, ok := qtyBySide[leg.Key.PositionSide]; ok && lastPrice > 0 {
			synced, fullyClosed := e.ledger.SyncLegTotals(leg.Key, actual)
			if fullyClosed {
				continue
			}
			if synced != nil {
				leg = synced
			}
		}

		if lastPrice <= 0 {
			continue
		}
		for _, entry := range leg.Entries {
			if breach, ok := e.stopLoss.CheckPerTrade(leg.Key, entry, lastPrice); ok {
				e.triggerStopLoss(ctx, leg.Key, breach)
			}
		}
	}

	if breach, ok := e.stopLoss.CheckCumulative(totalPnL, totalMargin); ok {
		e.triggerStopLoss(ctx, ledger.LegKey{Symbol: symbol}, breach)
	}

	if bal, err := e.adapter.GetBalance(ctx, "USDT"); err == nil {
		if breach, ok := e.stopLoss.CheckEntireAccount(totalPnL, bal.WalletBalance); ok {
			e.triggerStopLoss(ctx, ledger.LegKey{}, breach)
			failed := e.closer.CloseAll(ctx)
			e.mw.EmergencyClosesTotal().Inc()
			if len(failed) > 0 {
				log.Error().Strs("symbols", failed).Msg("engine: emergency close left residual positions")
			}
		}
	}
}

func (e *Engine) triggerStopLoss(ctx context.Context, key ledger.LegKey, breach stoploss.Breach) {
	e.mw.StopLossTriggersTotal().Inc()
	log.Warn().Str("scope", string(breach.Scope)).Float64("loss_usdt", breach.LossUSDT).Str("entry_id", breach.EntryID).Msg("engine: stop-loss triggered")

	if breach.Scope == stoploss.ScopePerTrade {
		if breach.Qty <= 0 {
			return
		}
		fill, err := e.adapter.CloseLegExact(ctx, key.Symbol, key.PositionSide, breach.Qty)
		if e.observeNetwork(err) || err != nil {
			return
		}
		e.ledger.RemoveEntry(key, breach.EntryID)
		e.mw.UpdateActiveLegs(e.ledger.SlotCount(key.Symbol))
		if e.store != nil {
			e.store.Append(storage.JournalRecord{Key: key, Action: "CLOSE", Quantity: breach.Qty, Price: fill.AvgPrice, At: time.Now()})
		}
	}

	if e.bus != nil {
		e.bus.Publish("stop_loss", breach)
	}
}

// observeNetwork feeds err to the network monitor and, if the
// consecutive-failure threshold trips, launches an emergency flatten.
// It returns true when the caller should abandon the current attempt.
func (e *Engine) observeNetwork(err error) bool {
	if err == nil {
		e.netmon.Observe(nil)
		return false
	}
	e.mw.ErrorsTotal().Inc()
	if e.netmon.Observe(err) {
		e.mw.NetworkErrorsTotal().Inc()
		go func() {
			failed := e.closer.CloseAll(context.Background())
			e.mw.EmergencyClosesTotal().Inc()
			e.netmon.Reset()
			if len(failed) > 0 {
				log.Error().Strs("symbols", failed).Msg("engine: emergency close left residual positions")
			}
		}()
		return true
	}
	return false
}

// sideMargin sums committed margin across every open leg on symbol/side,
// the basis for sizer's cross-slot cap (spec §4.10 step 5).
func (e *Engine) sideMargin(symbol, side string) float64 {
	total := 0.0
	for _, leg := range e.ledger.LegsForSymbol(symbol) {
		if leg.Key.PositionSide == side {
			total += leg.TotalMargin
		}
	}
	return total
}

func (e *Engine) lastKnownPrice(ctx context.Context, symbol string) float64 {
	klines, err := e.klines.Get(ctx, symbol, firstOr(e.cfg.Intervals, "1h"), 1)
	if err != nil || len(klines) == 0 {
		return 0
	}
	return klines[len(klines)-1].Close
}

func positionSideFor(d signals.Direction) string {
	if d == signals.Sell {
		return "SHORT"
	}
	return "LONG"
}

func oppositeSide(side string) string {
	if side == "LONG" {
		return "SHORT"
	}
	return "LONG"
}

func intervalSeconds(intervals []string) float64 {
	if len(intervals) == 0 {
		return 60
	}
	d, err := parseIntervalDuration(intervals[0])
	if err != nil {
		return 60
	}
	return d.Seconds()
}

func parseIntervalDuration(interval string) (time.Duration, error) {
	return time.ParseDuration(intervalToGoDuration(interval))
}

// intervalToGoDuration converts a Binance-style interval ("1h", "15m",
// "1d") into a Go duration string. Go has no "day" unit, so "Nd" is
// expanded to "(N*24)h".
func intervalToGoDuration(interval string) string {
	if len(interval) < 2 {
		return "1h"
	}
	unit := interval[len(interval)-1]
	n, err := parseLeadingInt(interval[:len(interval)-1])
	if err != nil {
		return "1h"
	}
	if unit == 'd' {
		return fmt.Sprintf("%dh", n*24)
	}
	return interval
}

func parseLeadingInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func intParam(params map[string]float64, key string, def int) int {
	if params == nil {
		return def
	}
	if v, ok := params[key]; ok && v > 0 {
		return int(v)
	}
	return def
}

func lastOf(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	return vals[len(vals)-1]
}

func firstOr(vals []string, def string) string {
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}

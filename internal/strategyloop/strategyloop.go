// Package strategyloop implements StrategyLoop: an interval-aligned,
// phase-offset cadence per (symbol, interval) pair with a bounded
// concurrency gate, and cooperative shutdown.
//
// Grounded on cmd/bitrader/main.go's goroutine-per-feed +
// sync.WaitGroup + context.Context shutdown shape.
package strategyloop

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Pair is one (symbol, interval) the loop schedules independently, each
// on its own Period ticker — the "CORE specified here" of spec §1.
type Pair struct {
	Symbol   string
	Interval string
	Period   time.Duration
}

// Tick is one scheduled evaluation for a (symbol, interval) pair.
type Tick struct {
	Symbol   string
	Interval string
	At       time.Time
}

// TickFunc evaluates one Tick. It should return promptly; long work
// should suspend via ctx, never hold the gate indefinitely.
type TickFunc func(ctx context.Context, tick Tick)

// Loop runs one TickFunc per configured (symbol, interval) pair on its
// own interval-aligned cadence, each phase-offset so they don't all fire
// in the same instant, bounded by a concurrency gate (RUN_GATE) shared
// across pairs.
type Loop struct {
	pairs []Pair
	gate  chan struct{}
	fn    TickFunc

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Loop. maxConcurrent bounds how many pairs may be
// evaluated simultaneously (the RUN_GATE semaphore of spec §4.14).
func New(pairs []Pair, maxConcurrent int, fn TickFunc) *Loop {
	if maxConcurrent <= 0 {
		maxConcurrent = len(pairs)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Loop{
		pairs: pairs,
		gate:  make(chan struct{}, maxConcurrent),
		fn:    fn,
	}
}

// Start launches one goroutine per pair, phase-offset within its own
// period so ticks fan out rather than bursting together.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	for _, p := range l.pairs {
		l.wg.Add(1)
		go l.runPair(ctx, p)
	}
}

func (l *Loop) runPair(ctx context.Context, p Pair) {
	defer l.wg.Done()

	now := time.Now()
	untilBoundary := now.Truncate(p.Period).Add(p.Period).Sub(now)
	select {
	case <-ctx.Done():
		return
	case <-time.After(untilBoundary + phaseOffset(p.Symbol, p.Interval, p.Period)):
	}

	ticker := time.NewTicker(p.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.runTick(ctx, p, now)
		}
	}
}

func (l *Loop) runTick(ctx context.Context, p Pair, now time.Time) {
	select {
	case l.gate <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-l.gate }()

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("symbol", p.Symbol).Str("interval", p.Interval).Msg("strategyloop: tick panicked")
			}
		}()
		l.fn(ctx, Tick{Symbol: p.Symbol, Interval: p.Interval, At: now})
	}()
}

// Stop cancels all running loops and waits for them to return.
func (l *Loop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

// phaseOffset implements spec §4.14's deterministic phase offset:
// hash(symbol@interval)*0.35*period, capped at 10s, so many pairs do not
// thunder the exchange on startup.
func phaseOffset(symbol, interval string, period time.Duration) time.Duration {
	h := fnv.New32a()
	h.Write([]byte(symbol + "@" + interval))
	frac := float64(h.Sum32()%10000) / 10000.0
	offset := time.Duration(frac * 0.35 * float64(period))
	const capOffset = 10 * time.Second
	if offset > capOffset {
		offset = capOffset
	}
	return offset
}

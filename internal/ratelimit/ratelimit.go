// Package ratelimit implements a token-bucket-over-sliding-window limiter
// per (environment, account), tracking request weight, a minimum
// inter-request interval, and exchange-imposed ban pauses.
//
// Grounded on internal/exchange/bitunix/order_tracker.go's shape: a
// mutex-guarded map of in-flight state plus a ticker-driven background
// loop, rather than a generic token-bucket library, because the ban/pause
// state this component needs (pause_until, pending weight) isn't exposed
// by golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Key identifies one rate-limited pool.
type Key struct {
	Environment string
	Account     string
}

type window struct {
	mu           sync.Mutex
	weights      []weightedEvent
	windowSize   time.Duration
	maxWeight    int
	minInterval  time.Duration
	lastRequest  time.Time
	pauseUntil   time.Time
}

type weightedEvent struct {
	at     time.Time
	weight int
}

// Limiter is a pool of per-Key sliding-window limiters.
type Limiter struct {
	mu      sync.Mutex
	windows map[Key]*window

	windowSize  time.Duration
	maxWeight   int
	minInterval time.Duration
}

// New creates a Limiter. windowSize/maxWeight bound the sliding window
// (e.g. 1200 weight per minute); minInterval enforces a floor between
// individual requests regardless of accumulated weight.
func New(windowSize time.Duration, maxWeight int, minInterval time.Duration) *Limiter {
	return &Limiter{
		windows:     make(map[Key]*window),
		windowSize:  windowSize,
		maxWeight:   maxWeight,
		minInterval: minInterval,
	}
}

func (l *Limiter) windowFor(k Key) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[k]
	if !ok {
		w = &window{windowSize: l.windowSize, maxWeight: l.maxWeight, minInterval: l.minInterval}
		l.windows[k] = w
	}
	return w
}

// Acquire blocks until weight can be spent under k's window, sleeping in
// bounded increments so ctx cancellation is observed promptly.
func (l *Limiter) Acquire(ctx context.Context, k Key, weight int) error {
	w := l.windowFor(k)
	for {
		wait, ok := w.tryAcquire(weight)
		if ok {
			return nil
		}
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		if wait > time.Second {
			wait = time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (w *window) tryAcquire(weight int) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.Before(w.pauseUntil) {
		return w.pauseUntil.Sub(now), false
	}
	if !w.lastRequest.IsZero() && now.Sub(w.lastRequest) < w.minInterval {
		return w.minInterval - now.Sub(w.lastRequest), false
	}

	cutoff := now.Add(-w.windowSize)
	kept := w.weights[:0]
	used := 0
	for _, ev := range w.weights {
		if ev.at.After(cutoff) {
			kept = append(kept, ev)
			used += ev.weight
		}
	}
	w.weights = kept

	if used+weight > w.maxWeight {
		return w.windowSize / 10, false
	}

	w.weights = append(w.weights, weightedEvent{at: now, weight: weight})
	w.lastRequest = now
	return 0, true
}

// Ban pauses k's window until the given time. The exchange adapters and
// the engine do not call it when an exchange.BanError is returned.
func (l *Limiter) Ban(k Key, until time.Time) {
	w := l.windowFor(k)
	w.mu.Lock()
	defer w.mu.Unlock()
	if until.After(w.pauseUntil) {
		w.pauseUntil = until
		log.Warn().Str("env", k.Environment).Str("account", k.Account).Time("until", until).Msg("ratelimit: ban applied")
	}
}

// UsedWeight reports the currently consumed weight in k's window, for
// metrics/observability.
func (l *Limiter) UsedWeight(k Key) int {
	w := l.windowFor(k)
	w.mu.Lock()
	defer w.mu.Unlock()
	used := 0
	cutoff := time.Now().Add(-w.windowSize)
	for _, ev := range w.weights {
		if ev.at.After(cutoff) {
			used += ev.weight
		}
	}
	return used
}

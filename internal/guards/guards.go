// Package guards implements the layered protections spec §4.9 requires
// before any order is placed: a per-bar guard, a pending-attempt
// coalescer, a signature guard, a duplicate-pending-fill guard, a flip
// cooldown, a minimum hold, and an N-bar confirmation counter.
//
// Grounded on internal/exchange/bitunix/order_tracker.go: a mutex-guarded
// map of in-flight state plus background sweep, generalized from
// per-order timeout tracking into the guard layers above.
package guards

import (
	"fmt"
	"sync"
	"time"
)

// GuardKey scopes a guard to one symbol+interval+indicator (the "slot").
// It carries no position side, so both sides of a slot share one guard
// state.
type GuardKey struct {
	Symbol    string
	Interval  string
	Indicator string
}

type barState struct {
	lastBarTime  time.Time
	lastSignature string
	lastFlipAt    time.Time
	lastOpenAt    time.Time
	confirmCount  int
	confirmDir    string
}

type pendingAttempt struct {
	startedAt time.Time
	signature string
}

// Guards aggregates all layers for one symbol/indicator slot space.
type Guards struct {
	mu       sync.Mutex
	bars     map[GuardKey]*barState
	pending  map[GuardKey]*pendingAttempt
	pendingFills map[string]time.Time // clientOrderID -> seen-at, duplicate-fill guard

	guardWindow func(intervalSeconds float64) time.Duration
}

// New creates a Guards layer. guardWindow computes the signature-guard window
// from the strategy interval, matching
// guard_window = max(8, min(45, interval_seconds*1.5)) from the original
// strategy's guard_window formula (spec §9 Open Question resolution).
func New() *Guards {
	return &Guards{
		bars:         make(map[GuardKey]*barState),
		pending:      make(map[GuardKey]*pendingAttempt),
		pendingFills: make(map[string]time.Time),
		guardWindow:  DefaultGuardWindow,
	}
}

// DefaultGuardWindow implements the spec's default formula:
// max(minSeconds, min(maxSeconds, intervalSeconds*factor)).
func DefaultGuardWindow(intervalSeconds float64) time.Duration {
	w := intervalSeconds * 1.5
	if w < 8 {
		w = 8
	}
	if w > 45 {
		w = 45
	}
	return time.Duration(w * float64(time.Second))
}

// BarGuard reports whether key has already been evaluated for barTime —
// it returns true (blocked) when the same bar would otherwise be
// evaluated twice, and records barTime as seen when it returns false.
func (g *Guards) BarGuard(key GuardKey, barTime time.Time) (blocked bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.barFor(key)
	if st.lastBarTime.Equal(barTime) {
		return true
	}
	st.lastBarTime = barTime
	return false
}

// SignatureGuard reports whether signature (the normalized tuple of
// symbol+indicator+direction+slot-suffix) duplicates the last one seen
// within the guard window for intervalSeconds, blocking a repeat attempt.
func (g *Guards) SignatureGuard(key GuardKey, signature string, intervalSeconds float64, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.barFor(key)
	window := g.guardWindow(intervalSeconds)
	if st.lastSignature == signature && now.Sub(st.lastOpenAt) < window {
		return true
	}
	return false
}

// ReserveAttempt coalesces concurrent attempts for key: if an attempt is
// already pending and not stale, ReserveAttempt returns false (caller
// must not proceed). Otherwise it reserves the slot and returns true.
func (g *Guards) ReserveAttempt(key GuardKey, signature string, ttl time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.pending[key]; ok {
		if time.Since(p.startedAt) < ttl {
			return false
		}
	}
	g.pending[key] = &pendingAttempt{startedAt: time.Now(), signature: signature}
	return true
}

// ReleaseAttempt clears a pending reservation once the order attempt has
// concluded (filled, rejected, or timed out).
func (g *Guards) ReleaseAttempt(key GuardKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, key)
}

// DuplicateFill reports whether clientOrderID has already been recorded
// as filled (guards against double-processing a fill event delivered
// twice), recording it as seen when false.
func (g *Guards) DuplicateFill(clientOrderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.pendingFills[clientOrderID]; seen {
		return true
	}
	g.pendingFills[clientOrderID] = time.Now()
	return false
}

// SweepFills drops recorded fill IDs older than ttl, bounding the
// pendingFills map the way order_tracker's background sweep bounds its
// in-flight order map.
func (g *Guards) SweepFills(ttl time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	for id, at := range g.pendingFills {
		if at.Before(cutoff) {
			delete(g.pendingFills, id)
		}
	}
}

// FlipCooldown reports whether key flipped direction more recently than
// cooldown allows, blocking a reversal that would otherwise whipsaw.
func (g *Guards) FlipCooldown(key GuardKey, cooldown time.Duration, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.barFor(key)
	return now.Sub(st.lastFlipAt) < cooldown
}

// RecordFlip marks key as having just flipped direction at now.
func (g *Guards) RecordFlip(key GuardKey, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barFor(key).lastFlipAt = now
}

// MinHold reports whether key's current leg is younger than minHold,
// blocking a close before the position has been held long enough.
func (g *Guards) MinHold(key GuardKey, minHold time.Duration, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.barFor(key)
	if st.lastOpenAt.IsZero() {
		return false
	}
	return now.Sub(st.lastOpenAt) < minHold
}

// RecordOpen marks key as opened at now (for signature-guard window and
// min-hold tracking) and records signature as the last seen one.
func (g *Guards) RecordOpen(key GuardKey, signature string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.barFor(key)
	st.lastOpenAt = now
	st.lastSignature = signature
}

// Confirm advances the N-bar confirmation counter for key: calling with
// the same direction increments the streak, a different direction resets
// it to 1. It returns the current streak length.
func (g *Guards) Confirm(key GuardKey, direction string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.barFor(key)
	if st.confirmDir == direction {
		st.confirmCount++
	} else {
		st.confirmDir = direction
		st.confirmCount = 1
	}
	return st.confirmCount
}

// Confirmed reports whether key's current streak has reached
// requiredBars.
func (g *Guards) Confirmed(key GuardKey, requiredBars int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if requiredBars <= 0 {
		return true
	}
	return g.barFor(key).confirmCount >= requiredBars
}

func (g *Guards) barFor(key GuardKey) *barState {
	st, ok := g.bars[key]
	if !ok {
		st = &barState{}
		g.bars[key] = st
	}
	return st
}

// NormalizeSignature renders the normalized (symbol, indicator,
// direction, slot) signature tuple used by the signature guard and
// duplicate-pending-fill guard, matching the slotN suffix convention of
// the original strategy's _normalize_signature_tuple.
func NormalizeSignature(symbol, indicator, direction string, slotCount int) string {
	return fmt.Sprintf("%s|%s|%s|slot%d", symbol, indicator, direction, slotCount)
}

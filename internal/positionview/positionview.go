// Package positionview normalizes exchange position reads behind a short
// TTL cache and purges flat legs, so the rest of the engine never reasons
// about raw venue position rows directly.
//
// Grounded on internal/exec/executor.go's positionSizes TTL cache.
package positionview

import (
	"context"
	"sync"
	"time"

	"marginloop/internal/exchange"
)

// View is a normalized, de-duplicated position for one (symbol,
// positionSide).
type View struct {
	Symbol       string
	PositionSide string
	Quantity     float64
	EntryPrice   float64
	UnrealizedPnL float64
	Leverage     int
	MarginType   string
	FetchedAt    time.Time
}

type Tracker struct {
	mu      sync.RWMutex
	cache   map[string][]View
	adapter exchange.Adapter
	ttl     time.Duration
}

func New(adapter exchange.Adapter, ttl time.Duration) *Tracker {
	return &Tracker{cache: make(map[string][]View), adapter: adapter, ttl: ttl}
}

// Positions returns the current non-flat positions for symbol, refreshing
// from the adapter when the cached snapshot has aged past ttl. An empty
// snapshot carries no fetch time and is refreshed on every call.
func (t *Tracker) Positions(ctx context.Context, symbol string) ([]View, error) {
	t.mu.RLock()
	cached, ok := t.cache[symbol]
	var age time.Duration
	if ok && len(cached) > 0 {
		age = time.Since(cached[0].FetchedAt)
	}
	t.mu.RUnlock()

	if ok && len(cached) > 0 && age < t.ttl {
		return cached, nil
	}

	raw, err := t.adapter.GetPositions(ctx, symbol)
	if err != nil {
		if ok {
			return cached, nil
		}
		return nil, err
	}

	views := make([]View, 0, len(raw))
	now := time.Now()
	for _, p := range raw {
		if p.PositionAmt == 0 {
			continue
		}
		views = append(views, View{
			Symbol:        p.Symbol,
			PositionSide:  p.PositionSide,
			Quantity:      p.PositionAmt,
			EntryPrice:    p.EntryPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			Leverage:      p.Leverage,
			MarginType:    p.MarginType,
			FetchedAt:     now,
		})
	}

	t.mu.Lock()
	t.cache[symbol] = views
	t.mu.Unlock()

	return views, nil
}

// Invalidate forces the next Positions call for symbol to hit the
// adapter, used right after a fill is confirmed so the view reflects it
// immediately instead of waiting out the TTL.
func (t *Tracker) Invalidate(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, symbol)
}

// TotalExposure sums |Quantity * EntryPrice| across all non-flat legs for
// symbol.
func (t *Tracker) TotalExposure(ctx context.Context, symbol string) (float64, error) {
	views, err := t.Positions(ctx, symbol)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, v := range views {
		notional := v.Quantity * v.EntryPrice
		if notional < 0 {
			notional = -notional
		}
		total += notional
	}
	return total, nil
}

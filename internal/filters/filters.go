// Package filters memoizes exchange-reported symbol trading rules
// (tick/step/minQty/minNotional/maxLeverage) and provides the snapping
// helpers every order-sizing and stop-loss calculation rounds through.
//
// Grounded on internal/cfg/cfg.go's validation-helper split and the
// RoundStep pattern of internal/exec/executor.go, generalized from a
// config-only guard into a live exchange-info cache.
package filters

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"marginloop/internal/exchange"
)

// Registry caches exchange.SymbolFilters per symbol with a refresh TTL.
type Registry struct {
	mu      sync.RWMutex
	data    map[string]cachedFilters
	adapter exchange.Adapter
	ttl     time.Duration
}

type cachedFilters struct {
	filters exchange.SymbolFilters
	at      time.Time
}

func New(adapter exchange.Adapter, ttl time.Duration) *Registry {
	return &Registry{data: make(map[string]cachedFilters), adapter: adapter, ttl: ttl}
}

func (r *Registry) Get(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	r.mu.RLock()
	c, ok := r.data[symbol]
	r.mu.RUnlock()
	if ok && time.Since(c.at) < r.ttl {
		return c.filters, nil
	}

	f, err := r.adapter.GetSymbolFilters(ctx, symbol)
	if err != nil {
		if ok {
			return c.filters, nil
		}
		return exchange.SymbolFilters{}, fmt.Errorf("filters: %s unavailable: %w", symbol, err)
	}

	r.mu.Lock()
	r.data[symbol] = cachedFilters{filters: f, at: time.Now()}
	r.mu.Unlock()
	return f, nil
}

// RoundToStep snaps qty down to the nearest multiple of step (never
// rounds up past an exchange-rejecting quantity).
func RoundToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

// RoundToTick snaps price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// ClampLeverage bounds requested leverage to [1, f.MaxLeverage].
func ClampLeverage(requested int, f exchange.SymbolFilters) int {
	if f.MaxLeverage <= 0 {
		return requested
	}
	if requested > f.MaxLeverage {
		return f.MaxLeverage
	}
	if requested < 1 {
		return 1
	}
	return requested
}

// MeetsMinNotional reports whether qty*price clears the symbol's minimum
// notional requirement.
func MeetsMinNotional(qty, price float64, f exchange.SymbolFilters) bool {
	return qty*price >= f.MinNotional
}

// MeetsMinQty reports whether qty clears the symbol's minimum quantity.
func MeetsMinQty(qty float64, f exchange.SymbolFilters) bool {
	return qty >= f.MinQty
}

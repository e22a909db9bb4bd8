// Package klinecache caches kline series per (symbol, interval) with a
// TTL and serves the last good series when a refresh fails rather than
// blocking the caller. Resample aggregates native klines into a coarser
// interval, but Cache.Get does not call it: Get requests the interval
// from the adapter as given and never picks a native divisor.
//
// Grounded on internal/features/vwap.go's ring-buffer-under-mutex shape,
// generalized from a single rolling window to a keyed, TTL-expiring
// cache of full kline series.
package klinecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marginloop/internal/exchange"
)

type entry struct {
	klines    []exchange.Kline
	fetchedAt time.Time
}

// Cache is a TTL-keyed kline store for one Adapter.
type Cache struct {
	mu      sync.RWMutex
	data    map[string]entry
	adapter exchange.Adapter
	ttl     time.Duration
}

func New(adapter exchange.Adapter, ttl time.Duration) *Cache {
	return &Cache{
		data:    make(map[string]entry),
		adapter: adapter,
		ttl:     ttl,
	}
}

func key(symbol, interval string) string { return symbol + "|" + interval }

// Get returns limit klines for (symbol, interval), serving the cached
// series when fresh, refreshing it via the adapter when stale, and
// falling back to the last good series (how ever stale) if the refresh
// fails with any error — the cache never blocks a strategy
// tick on exchange availability once it has any data.
func (c *Cache) Get(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	k := key(symbol, interval)

	c.mu.RLock()
	e, ok := c.data[k]
	c.mu.RUnlock()

	if ok && time.Since(e.fetchedAt) < c.ttl && len(e.klines) >= limit {
		return tail(e.klines, limit), nil
	}

	fresh, err := c.adapter.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		if ok {
			return tail(e.klines, limit), nil
		}
		return nil, fmt.Errorf("klinecache: no cached data for %s/%s and refresh failed: %w", symbol, interval, err)
	}

	c.mu.Lock()
	c.data[k] = entry{klines: fresh, fetchedAt: time.Now()}
	c.mu.Unlock()

	return fresh, nil
}

// Resample aggregates 1-minute (or any native) klines into a coarser
// interval the venue doesn't natively serve, by summing volume and taking
// open/high/low/close across each bucket of factor source klines.
func Resample(src []exchange.Kline, factor int) []exchange.Kline {
	if factor <= 1 || len(src) == 0 {
		return src
	}
	out := make([]exchange.Kline, 0, len(src)/factor+1)
	for i := 0; i < len(src); i += factor {
		end := i + factor
		if end > len(src) {
			end = len(src)
		}
		bucket := src[i:end]
		agg := exchange.Kline{
			OpenTime: bucket[0].OpenTime,
			Open:     bucket[0].Open,
			Close:    bucket[len(bucket)-1].Close,
			CloseTime: bucket[len(bucket)-1].CloseTime,
		}
		agg.High = bucket[0].High
		agg.Low = bucket[0].Low
		for _, k := range bucket {
			if k.High > agg.High {
				agg.High = k.High
			}
			if k.Low < agg.Low {
				agg.Low = k.Low
			}
			agg.Volume += k.Volume
		}
		out = append(out, agg)
	}
	return out
}

func tail(ks []exchange.Kline, n int) []exchange.Kline {
	if n <= 0 || n >= len(ks) {
		return ks
	}
	return ks[len(ks)-n:]
}

// Invalidate drops the cached entry for (symbol, interval), used by tests
// and by a manual refresh trigger.
func (c *Cache) Invalidate(symbol, interval string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key(symbol, interval))
}

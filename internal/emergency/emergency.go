// Package emergency implements EmergencyCloser: a single-flight,
// capped-retry worker that force-flattens all positions, plus a
// consecutive-network-error monitor that triggers it (spec §4.15).
//
// Grounded on internal/exec/executor.go's CircuitBreakerState
// trigger/recovery-timer shape, narrowed to one breaker (network health)
// driving one action (close everything) instead of four breakers
// driving a trading suspension flag.
package emergency

import (
	"context"
	"errors"
	"sync"
	"time"

	"marginloop/internal/exchange"
	"marginloop/internal/ledger"

	"github.com/rs/zerolog/log"
)

// NetworkMonitor counts consecutive NetworkErrors and reports when the
// configured threshold is crossed, with a recovery timer that resets
// the count after a period of health.
type NetworkMonitor struct {
	mu            sync.Mutex
	consecutive   int
	threshold     int
	lastErrorAt   time.Time
	recoveryAfter time.Duration
}

func NewNetworkMonitor(threshold int, recoveryAfter time.Duration) *NetworkMonitor {
	return &NetworkMonitor{threshold: threshold, recoveryAfter: recoveryAfter}
}

// Observe records the outcome of one exchange call. It returns true the
// moment the consecutive-error count reaches the threshold.
func (n *NetworkMonitor) Observe(err error) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err == nil {
		if time.Since(n.lastErrorAt) > n.recoveryAfter {
			n.consecutive = 0
		}
		return false
	}

	var netErr *exchange.NetworkError
	if !errors.As(err, &netErr) {
		return false
	}

	n.consecutive++
	n.lastErrorAt = time.Now()
	return n.consecutive >= n.threshold
}

// Reset clears the consecutive-error counter, called after EmergencyCloser
// completes a flatten cycle.
func (n *NetworkMonitor) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.consecutive = 0
}

// Closer force-flattens every tracked leg when triggered, single-flight
// so overlapping triggers don't fire concurrent close storms.
type Closer struct {
	adapter    exchange.Adapter
	ledger     *ledger.Ledger
	maxRetries int
	retryDelay time.Duration

	mu      sync.Mutex
	running bool
}

func NewCloser(adapter exchange.Adapter, led *ledger.Ledger, maxRetries int, retryDelay time.Duration) *Closer {
	return &Closer{adapter: adapter, ledger: led, maxRetries: maxRetries, retryDelay: retryDelay}
}

// CloseAll closes every open leg in the ledger with bounded per-leg
// retries, continuing past individual failures so one stuck symbol
// doesn't block flattening the rest. Returns the symbols that could not
// be confirmed flat.
func (c *Closer) CloseAll(ctx context.Context) []string {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	legs := c.ledger.All()
	var failed []string
	for _, leg := range legs {
		if leg.TotalQty <= 0 {
			continue
		}
		if err := c.closeLegWithRetry(ctx, leg); err != nil {
			log.Error().Err(err).Str("leg", leg.Key.String()).Msg("emergency: failed to close leg")
			failed = append(failed, leg.Key.Symbol)
		}
	}
	return failed
}

func (c *Closer) closeLegWithRetry(ctx context.Context, leg ledger.Leg) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		fill, err := c.adapter.CloseLegExact(ctx, leg.Key.Symbol, leg.Key.PositionSide, leg.TotalQty)
		if err == nil {
			c.ledger.Close(leg.Key, leg.TotalQty, fill.AvgPrice)
			return nil
		}
		lastErr = err
		if !exchange.Retryable(err) {
			return err
		}
		delay := c.retryDelay * time.Duration(attempt+1)
		if delay > 90*time.Second {
			delay = 90 * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// Running reports whether a flatten cycle is currently in progress.
func (c *Closer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

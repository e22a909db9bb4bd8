// Package conflict implements ConflictResolver: the "flip protocol" of
// spec §4.13 — closing an indicator-scoped leg and reopening the opposite
// direction, with a residual-position fallback close and re-verification.
//
// Grounded on the ledger (C8) + guards (C9) composition, using the
// retry-with-backoff shape of internal/exchange/bitunix/order_tracker.go
// placeOrderWithRetry.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marginloop/internal/exchange"
	"marginloop/internal/guards"
	"marginloop/internal/ledger"

	"github.com/rs/zerolog/log"
)

// ErrResidualConflict is returned when a flip's residual close fails to
// leave the leg flat after all retries.
var ErrResidualConflict = errors.New("conflict: residual position remains after flip")

// Resolver executes the flip protocol.
type Resolver struct {
	adapter exchange.Adapter
	ledger  *ledger.Ledger
	guards  *guards.Guards

	maxRetries int
	retryDelay time.Duration
}

func New(adapter exchange.Adapter, led *ledger.Ledger, g *guards.Guards, maxRetries int, retryDelay time.Duration) *Resolver {
	return &Resolver{adapter: adapter, ledger: led, guards: g, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Flip closes the existing leg at key and opens the opposite direction,
// verifying the close left no residual quantity before proceeding. newSide
// is the exchange order side for the new leg.
func (r *Resolver) Flip(ctx context.Context, key ledger.LegKey, newSide exchange.OrderSide, qty float64) (exchange.Fill, error) {
	leg, ok := r.ledger.Get(key)
	if !ok || leg.TotalQty == 0 {
		return exchange.Fill{}, fmt.Errorf("conflict: no open leg for %s to flip", key)
	}

	gk := guards.GuardKey{Symbol: key.Symbol, Interval: key.Interval, Indicator: key.Indicator}
	if !r.guards.ReserveAttempt(gk, "flip", r.retryDelay*time.Duration(r.maxRetries+1)) {
		return exchange.Fill{}, fmt.Errorf("conflict: flip already pending for %s", key)
	}
	defer r.guards.ReleaseAttempt(gk)

	closeQty := leg.TotalQty
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		fill, err := r.adapter.CloseLegExact(ctx, key.Symbol, key.PositionSide, closeQty)
		if err == nil {
			r.ledger.Close(key, closeQty, fill.AvgPrice)
			if err := r.verifyFlat(ctx, key); err != nil {
				lastErr = err
			} else {
				r.guards.RecordFlip(gk, time.Now())
				return r.reopen(ctx, key, newSide, qty)
			}
		} else {
			lastErr = err
			if !exchange.Retryable(err) {
				break
			}
		}
		log.Warn().Err(lastErr).Str("leg", key.String()).Int("attempt", attempt).Msg("conflict: flip close attempt failed")
		select {
		case <-ctx.Done():
			return exchange.Fill{}, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}

	return exchange.Fill{}, fmt.Errorf("%w: %v", ErrResidualConflict, lastErr)
}

// verifyFlat re-reads the leg from the ledger and confirms it is gone.
func (r *Resolver) verifyFlat(_ context.Context, key ledger.LegKey) error {
	if leg, ok := r.ledger.Get(key); ok && leg.TotalQty > 0 {
		return fmt.Errorf("%w: %s still has quantity %v", ErrResidualConflict, key, leg.TotalQty)
	}
	return nil
}

func (r *Resolver) reopen(ctx context.Context, key ledger.LegKey, side exchange.OrderSide, qty float64) (exchange.Fill, error) {
	newPositionSide := "LONG"
	if key.PositionSide == "LONG" {
		newPositionSide = "SHORT"
	}

	fill, err := r.adapter.PlaceFuturesMarketOrder(ctx, exchange.OrderRequest{
		Symbol:       key.Symbol,
		Side:         side,
		PositionSide: newPositionSide,
		Quantity:     qty,
	})
	if err != nil {
		return exchange.Fill{}, fmt.Errorf("conflict: reopen after flip failed: %w", err)
	}

	newKey := ledger.LegKey{Symbol: key.Symbol, Interval: key.Interval, PositionSide: newPositionSide, Indicator: key.Indicator}
	r.ledger.Open(newKey, fill.ExecutedQty, fill.AvgPrice, 0)
	return fill, nil
}

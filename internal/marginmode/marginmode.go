// Package marginmode implements MarginModeEnforcer: idempotent
// leverage/margin-type/position-mode application, tolerating the venue's
// "already set" responses.
//
// Grounded on internal/exchange/bitunix/leverage.go's ChangeLeverage /
// ChangeMarginMode tolerant-error pattern.
package marginmode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"marginloop/internal/exchange"
	"marginloop/internal/filters"
)

// ErrWrongMarginMode is returned when the venue reports a margin mode
// the enforcer did not request and cannot silently reconcile (e.g. an
// open position exists under the other mode).
var ErrWrongMarginMode = errors.New("marginmode: symbol is in an unexpected margin mode")

// Enforcer applies and remembers the desired leverage/margin/position
// mode per symbol, avoiding redundant calls once applied.
type Enforcer struct {
	mu       sync.Mutex
	adapter  exchange.Adapter
	registry *filters.Registry
	applied  map[string]appliedState
}

type appliedState struct {
	leverage   int
	marginMode string
}

func New(adapter exchange.Adapter, registry *filters.Registry) *Enforcer {
	return &Enforcer{adapter: adapter, registry: registry, applied: make(map[string]appliedState)}
}

// Ensure applies leverage and marginMode to symbol if not already applied,
// clamping leverage to the symbol's exchange-reported ceiling first.
func (e *Enforcer) Ensure(ctx context.Context, symbol string, leverage int, marginMode string) error {
	f, err := e.registry.Get(ctx, symbol)
	if err != nil {
		return fmt.Errorf("marginmode: filters unavailable for %s: %w", symbol, err)
	}
	clamped := filters.ClampLeverage(leverage, f)

	e.mu.Lock()
	state, ok := e.applied[symbol]
	e.mu.Unlock()
	if ok && state.leverage == clamped && state.marginMode == marginMode {
		return nil
	}

	if err := e.adapter.SetMarginType(ctx, symbol, marginMode); err != nil {
		return fmt.Errorf("marginmode: set margin type: %w", err)
	}
	if err := e.adapter.SetLeverage(ctx, symbol, clamped); err != nil {
		return fmt.Errorf("marginmode: set leverage: %w", err)
	}

	e.mu.Lock()
	e.applied[symbol] = appliedState{leverage: clamped, marginMode: marginMode}
	e.mu.Unlock()
	return nil
}

// EnsurePositionMode applies the account-wide hedge/one-way setting once.
func (e *Enforcer) EnsurePositionMode(ctx context.Context, hedgeMode bool) error {
	return e.adapter.SetPositionMode(ctx, hedgeMode)
}

// Reconcile verifies a live position's reported margin type matches what
// this enforcer last applied; returns ErrWrongMarginMode if it diverged
// (e.g. changed out-of-band on the exchange UI).
func (e *Enforcer) Reconcile(symbol string, reportedMarginType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.applied[symbol]
	if !ok {
		return nil
	}
	if state.marginMode != "" && reportedMarginType != "" && state.marginMode != reportedMarginType {
		return fmt.Errorf("%w: want %s, exchange reports %s", ErrWrongMarginMode, state.marginMode, reportedMarginType)
	}
	return nil
}

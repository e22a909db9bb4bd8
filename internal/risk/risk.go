// Package risk implements RiskCoordinator: the can_open/begin_open/
// end_open/mark_closed handshake that serializes concurrent open/close
// attempts against one symbol and reconciles ledger state against live
// exchange positions (spec §4.17).
//
// Grounded on internal/exec/executor.go's CanTrade/CanTradeSymbol pair,
// generalized into the full five-method handshake.
package risk

import (
	"context"
	"fmt"
	"sync"

	"marginloop/internal/guards"
	"marginloop/internal/ledger"
	"marginloop/internal/positionview"
)

// Coordinator serializes position-changing operations per symbol and
// reconciles the ledger against live exchange state.
type Coordinator struct {
	mu      sync.Mutex
	inFlight map[string]bool

	ledger   *ledger.Ledger
	guards   *guards.Guards
	positions *positionview.Tracker

	maxDailyLossPct float64
	dailyLossUSDT   float64
	tripped         bool
}

func New(led *ledger.Ledger, g *guards.Guards, pv *positionview.Tracker, maxDailyLossPct float64) *Coordinator {
	return &Coordinator{
		inFlight:        make(map[string]bool),
		ledger:          led,
		guards:          g,
		positions:       pv,
		maxDailyLossPct: maxDailyLossPct,
	}
}

// CanOpen reports whether a new open may proceed for symbol: no
// concurrent open/close already in flight, and no account-level breaker
// tripped.
func (c *Coordinator) CanOpen(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tripped {
		return false
	}
	return !c.inFlight[symbol]
}

// BeginOpen marks symbol as having an in-flight open/close, returning an
// error if one is already in flight (the caller must not proceed
// concurrently against the same symbol).
func (c *Coordinator) BeginOpen(symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[symbol] {
		return fmt.Errorf("risk: %s already has an open/close in flight", symbol)
	}
	c.inFlight[symbol] = true
	return nil
}

// EndOpen clears the in-flight marker for symbol, whether the attempt
// succeeded or failed.
func (c *Coordinator) EndOpen(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, symbol)
}

// MarkClosed records a realized loss against the daily-loss breaker and
// trips it if the account-level threshold is exceeded.
func (c *Coordinator) MarkClosed(realizedPnL, accountBalance float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if realizedPnL < 0 {
		c.dailyLossUSDT += -realizedPnL
	}
	if accountBalance > 0 && c.dailyLossUSDT/accountBalance >= c.maxDailyLossPct {
		c.tripped = true
	}
}

// Tripped reports whether the daily-loss breaker has fired.
func (c *Coordinator) Tripped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tripped
}

// ResetDaily clears the daily-loss accumulator and breaker, called once
// per trading day.
func (c *Coordinator) ResetDaily() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyLossUSDT = 0
	c.tripped = false
}

// Reconcile compares the ledger's view of symbol's legs against the live
// exchange position view, logging (and the caller may act on) any
// divergence — the ledger is the source of truth for sizing, but the
// exchange is the source of truth for what is actually open.
func (c *Coordinator) Reconcile(ctx context.Context, symbol string) (Divergence, error) {
	legs := c.ledger.LegsForSymbol(symbol)
	live, err := c.positions.Positions(ctx, symbol)
	if err != nil {
		return Divergence{}, err
	}

	ledgerQty := 0.0
	for _, l := range legs {
		ledgerQty += l.TotalQty
	}
	liveQty := 0.0
	for _, p := range live {
		liveQty += p.Quantity
	}

	diff := ledgerQty - liveQty
	if diff < 0 {
		diff = -diff
	}
	return Divergence{Symbol: symbol, LedgerQty: ledgerQty, LiveQty: liveQty, Diverged: diff > 1e-9}, nil
}

// Divergence reports a ledger/exchange mismatch found by Reconcile.
type Divergence struct {
	Symbol    string
	LedgerQty float64
	LiveQty   float64
	Diverged  bool
}

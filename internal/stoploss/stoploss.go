// Package stoploss implements StopLossEngine: per_trade, cumulative, and
// entire_account scoped stop-losses in usdt, percent, or both modes
// (spec §4.12).
//
// Grounded on internal/exec/executor.go's stop-loss/take-profit/trailing
// fields and UpdateTrailingStop, replaced with the spec's scope/mode
// matrix instead of a standard-deviation trigger.
package stoploss

import (
	"math"

	"marginloop/internal/cfg"
	"marginloop/internal/ledger"
)

// Scope identifies which aggregate a stop-loss threshold applies to.
type Scope string

const (
	ScopePerTrade      Scope = "per_trade"
	ScopeCumulative    Scope = "cumulative"
	ScopeEntireAccount Scope = "entire_account"
)

// Breach describes a triggered stop-loss. EntryID and Qty are populated
// only when Scope == per_trade, identifying exactly which Entry to close
// via close_leg_exact — a per-trade breach never closes the whole leg.
type Breach struct {
	Scope    Scope
	Key      ledger.LegKey // zero value when Scope != per_trade
	EntryID  string
	Qty      float64
	LossUSDT float64
	LossPct  float64
}

// Evaluator checks configured thresholds against live P&L.
type Evaluator struct {
	cfg cfg.StopLossConfig
}

func New(c cfg.StopLossConfig) *Evaluator {
	return &Evaluator{cfg: c}
}

// CheckPerTrade evaluates one Entry against the per-trade threshold using
// spec §4.12's formula: loss_usdt = max(0, (entry_price-last_price)*qty)
// for long (mirrored for short), price_pct = loss/(entry_price*qty),
// margin_pct = loss/entry.margin_usdt, effective = max(price_pct,
// margin_pct). The caller is expected to have synced the ledger to live
// exchange qty first and to close exactly entry.Quantity on breach.
func (e *Evaluator) CheckPerTrade(key ledger.LegKey, entry ledger.Entry, lastPrice float64) (Breach, bool) {
	if !e.cfg.Enabled || e.cfg.Scope != string(ScopePerTrade) {
		return Breach{}, false
	}

	var lossUSDT float64
	if key.PositionSide == "SHORT" {
		lossUSDT = (lastPrice - entry.Price) * entry.Quantity
	} else {
		lossUSDT = (entry.Price - lastPrice) * entry.Quantity
	}
	if lossUSDT < 0 {
		lossUSDT = 0
	}

	var pricePct, marginPct float64
	if notional := entry.Price * entry.Quantity; notional > 0 {
		pricePct = lossUSDT / notional
	}
	if entry.MarginUSDT > 0 {
		marginPct = lossUSDT / entry.MarginUSDT
	}
	effective := math.Max(pricePct, marginPct)

	if !e.triggered(lossUSDT, effective) {
		return Breach{}, false
	}
	return Breach{
		Scope:    ScopePerTrade,
		Key:      key,
		EntryID:  entry.ID,
		Qty:      entry.Quantity,
		LossUSDT: lossUSDT,
		LossPct:  effective,
	}, true
}

// CheckCumulative evaluates the sum of unrealized P&L across all legs of
// one symbol against the cumulative threshold.
func (e *Evaluator) CheckCumulative(totalPnL, totalMargin float64) (Breach, bool) {
	if !e.cfg.Enabled || e.cfg.Scope != string(ScopeCumulative) {
		return Breach{}, false
	}
	return e.checkFromPnL(ScopeCumulative, ledger.LegKey{}, totalPnL, totalMargin)
}

// CheckEntireAccount evaluates account-wide unrealized P&L against the
// entire-account threshold — the last line of defense before
// EmergencyCloser engages.
func (e *Evaluator) CheckEntireAccount(totalPnL, accountBalance float64) (Breach, bool) {
	if !e.cfg.Enabled || e.cfg.Scope != string(ScopeEntireAccount) {
		return Breach{}, false
	}
	return e.checkFromPnL(ScopeEntireAccount, ledger.LegKey{}, totalPnL, accountBalance)
}

func (e *Evaluator) checkFromPnL(scope Scope, key ledger.LegKey, pnl, basis float64) (Breach, bool) {
	if pnl >= 0 {
		return Breach{}, false
	}
	loss := -pnl
	var pct float64
	if basis > 0 {
		pct = loss / basis
	}
	if !e.triggered(loss, pct) {
		return Breach{}, false
	}
	return Breach{Scope: scope, Key: key, LossUSDT: loss, LossPct: pct}, true
}

func (e *Evaluator) triggered(lossUSDT, pct float64) bool {
	switch e.cfg.Mode {
	case "usdt":
		return lossUSDT >= e.cfg.USDT
	case "percent":
		return pct >= e.cfg.Percent
	case "both":
		return lossUSDT >= e.cfg.USDT || pct >= e.cfg.Percent
	default:
		return false
	}
}

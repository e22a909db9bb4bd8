// Package sizer implements OrderSizer: the per-indicator margin-cap and
// auto-bump sizing algorithm of spec §4.10.
//
// Grounded on internal/exec/executor.go's Size() method, replacing its
// Kelly-criterion formula (out of spec scope) with the spec's five-step
// margin-cap algorithm, keeping the same "return a clamped quantity"
// shape.
package sizer

import (
	"errors"
	"fmt"

	"marginloop/internal/cfg"
	"marginloop/internal/exchange"
	"marginloop/internal/filters"
)

// ErrFilterBlocked is returned when the computed quantity cannot clear
// the symbol's exchange filters even after rounding.
var ErrFilterBlocked = errors.New("sizer: quantity below exchange filter minimums")

// Input bundles everything the sizing algorithm needs for one decision.
type Input struct {
	Settings       cfg.Settings
	IndicatorSpec  cfg.IndicatorSpec
	SymbolFilters  exchange.SymbolFilters
	AccountBalance float64
	Price          float64
	ExistingSlots  int // currently open legs for this symbol
	DesiredSlots   int // slots after this open completes

	// ExistingIndicatorMargin is the margin already committed across every
	// entry this indicator owns on this side (step 2/3: the cap and the
	// top-up target are against the indicator's total, not just this add).
	ExistingIndicatorMargin float64
	// ExistingSideMargin is the margin committed across every slot on this
	// side of the symbol, indicator included (step 5's cross-slot cap).
	ExistingSideMargin float64
}

// Result is the sizing decision.
type Result struct {
	Quantity   float64
	MarginUSDT float64
	Bumped     bool
}

// Size implements spec §4.10's five-step algorithm:
//  1. per_indicator_margin_target = balance * pct; notional target = margin * leverage.
//  2. existing margin already committed to this indicator must stay under
//     per_indicator_margin_target * (desired_slots) * (1+tolerance).
//  3. target_margin = max(0, desired_total_margin - existing_indicator_margin).
//  4. qty = target_margin*leverage/price, snapped to step; if below the
//     exchange minimum, auto-bump is allowed only when the additional
//     margin it requires stays within
//     max(max_auto_bump_percent, requested_pct*auto_bump_percent_multiplier)
//     of account balance.
//  5. the cross-slot sum (existing side margin + this leg's target margin
//     from step 3, before any auto-bump) must stay
//     under the same per-indicator cap scaled by desired_slots, or the
//     sizing is refused outright.
func Size(in Input) (Result, error) {
	if in.Price <= 0 {
		return Result{}, fmt.Errorf("sizer: price must be positive")
	}

	baseMargin := in.AccountBalance * in.Settings.PositionPct

	perIndicatorTarget := in.IndicatorSpec.PerIndicatorMarginUSD
	if perIndicatorTarget <= 0 {
		perIndicatorTarget = baseMargin
	}

	desiredSlots := in.DesiredSlots
	if desiredSlots <= 0 {
		desiredSlots = 1
	}
	tolerance := in.Settings.MarginOverTargetTolerance
	maxIndicatorMargin := perIndicatorTarget * float64(desiredSlots) * (1.0 + tolerance)

	if in.ExistingIndicatorMargin >= maxIndicatorMargin {
		return Result{}, fmt.Errorf("sizer: indicator already holds %.2f margin, at or over the %.2f cap", in.ExistingIndicatorMargin, maxIndicatorMargin)
	}

	desiredTotalMargin := perIndicatorTarget
	if desiredTotalMargin > maxIndicatorMargin {
		desiredTotalMargin = maxIndicatorMargin
	}
	targetMargin := desiredTotalMargin - in.ExistingIndicatorMargin
	if targetMargin < 0 {
		targetMargin = 0
	}

	leverage := float64(in.Settings.Leverage)
	if leverage <= 0 {
		leverage = 1
	}

	qty := (targetMargin * leverage) / in.Price
	qty = filters.RoundToStep(qty, in.SymbolFilters.StepSize)
	margin := targetMargin

	bumped := false
	if !filters.MeetsMinQty(qty, in.SymbolFilters) || !filters.MeetsMinNotional(qty, in.Price, in.SymbolFilters) {
		if !in.Settings.AutoBumpEnabled {
			return Result{}, ErrFilterBlocked
		}

		minQtyByNotional := in.SymbolFilters.MinNotional / in.Price
		minQty := in.SymbolFilters.MinQty
		if minQtyByNotional > minQty {
			minQty = minQtyByNotional
		}
		bumpedQty := filters.RoundToStep(minQty, in.SymbolFilters.StepSize)
		if bumpedQty < minQty {
			bumpedQty += in.SymbolFilters.StepSize
		}
		bumpedMargin := (bumpedQty * in.Price) / leverage

		if in.AccountBalance <= 0 {
			return Result{}, fmt.Errorf("sizer: auto-bump requires a positive account balance")
		}
		requiredPct := bumpedMargin / in.AccountBalance
		requestedPct := in.Settings.PositionPct
		allowedPct := in.Settings.MaxAutoBumpPercent
		if mult := requestedPct * in.Settings.AutoBumpPercentMultiplier; mult > allowedPct {
			allowedPct = mult
		}
		if requiredPct > allowedPct {
			return Result{}, fmt.Errorf("sizer: auto-bump needs %.4f%% of balance, over the %.4f%% allowance", requiredPct*100, allowedPct*100)
		}
		if bumpedMargin > in.AccountBalance {
			return Result{}, fmt.Errorf("sizer: auto-bump requires %.2f margin, insufficient funds", bumpedMargin)
		}
		if in.Settings.AutoBumpMaxSlots > 0 && desiredSlots > in.Settings.AutoBumpMaxSlots {
			return Result{}, fmt.Errorf("sizer: auto-bump would exceed max slots (%d)", in.Settings.AutoBumpMaxSlots)
		}

		qty = bumpedQty
		margin = bumpedMargin
		bumped = true
	}

	if qty <= 0 {
		return Result{}, ErrFilterBlocked
	}

	if in.ExistingSideMargin+targetMargin > maxIndicatorMargin {
		return Result{}, fmt.Errorf("sizer: side margin would reach %.2f, over the %.2f cap", in.ExistingSideMargin+targetMargin, maxIndicatorMargin)
	}

	return Result{Quantity: qty, MarginUSDT: margin, Bumped: bumped}, nil
}

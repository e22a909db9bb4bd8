package sizer

import (
	"errors"
	"testing"

	"marginloop/internal/cfg"
	"marginloop/internal/exchange"
)

func baseInput() Input {
	return Input{
		Settings: cfg.Settings{
			PositionPct:               0.1,
			PositionPctUnits:          "of_balance",
			MarginOverTargetTolerance: 0.05,
			MaxAutoBumpPercent:        0.01,
			AutoBumpPercentMultiplier: 1.5,
		},
		IndicatorSpec: cfg.IndicatorSpec{},
		SymbolFilters: exchange.SymbolFilters{
			StepSize:    0.001,
			MinQty:      0.001,
			MinNotional: 5,
		},
		AccountBalance: 1000,
		Price:          60000,
		ExistingSlots:  0,
		DesiredSlots:   1,
	}
}

func TestSize_BasicMargin(t *testing.T) {
	in := baseInput()
	res, err := Size(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MarginUSDT != 100 {
		t.Errorf("expected margin 100, got %f", res.MarginUSDT)
	}
	if res.Bumped {
		t.Error("expected no bump for a well-sized position")
	}
}

func TestSize_PriceMustBePositive(t *testing.T) {
	in := baseInput()
	in.Price = 0
	if _, err := Size(in); err == nil {
		t.Error("expected error for non-positive price")
	}
}

func TestSize_PerIndicatorMarginCap(t *testing.T) {
	in := baseInput()
	in.IndicatorSpec.PerIndicatorMarginUSD = 20
	in.DesiredSlots = 1
	in.Settings.Leverage = 10

	res, err := Size(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantMax := 20 * 1 * 1.05
	if res.MarginUSDT > wantMax {
		t.Errorf("expected margin capped near %f, got %f", wantMax, res.MarginUSDT)
	}
}

func TestSize_ExistingIndicatorMarginReducesTarget(t *testing.T) {
	in := baseInput()
	in.IndicatorSpec.PerIndicatorMarginUSD = 100
	in.ExistingIndicatorMargin = 80
	in.Settings.Leverage = 10

	res, err := Size(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MarginUSDT != 20 {
		t.Errorf("expected margin topped up to 20 (100 target - 80 existing), got %f", res.MarginUSDT)
	}
}

func TestSize_ExistingIndicatorMarginAtCapIsRefused(t *testing.T) {
	in := baseInput()
	in.IndicatorSpec.PerIndicatorMarginUSD = 20
	in.DesiredSlots = 1
	in.ExistingIndicatorMargin = 21 // at/over 20*1*1.05

	if _, err := Size(in); err == nil {
		t.Error("expected error when existing indicator margin already meets the cap")
	}
}

func TestSize_CrossSlotSumOverCapIsRefused(t *testing.T) {
	in := baseInput()
	in.IndicatorSpec.PerIndicatorMarginUSD = 20
	in.DesiredSlots = 1
	in.ExistingSideMargin = 10 // + this leg's 20 target = 30, over the 21 cap
	in.Settings.Leverage = 10

	if _, err := Size(in); err == nil {
		t.Error("expected error when the cross-slot side margin sum exceeds the cap")
	}
}

func TestSize_FilterBlockedWithoutAutoBump(t *testing.T) {
	in := baseInput()
	in.AccountBalance = 0.001
	in.Settings.PositionPct = 0.0001
	in.Settings.AutoBumpEnabled = false

	_, err := Size(in)
	if !errors.Is(err, ErrFilterBlocked) {
		t.Errorf("expected ErrFilterBlocked, got %v", err)
	}
}

func TestSize_AutoBumpRecoversFromFilterBlock(t *testing.T) {
	in := baseInput()
	in.Settings.PositionPct = 0.0001
	in.Settings.Leverage = 10
	in.Settings.AutoBumpEnabled = true

	res, err := Size(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Bumped {
		t.Error("expected quantity to be bumped to clear filter minimums")
	}
	if res.Quantity < in.SymbolFilters.MinQty {
		t.Errorf("expected bumped quantity to clear minQty, got %f", res.Quantity)
	}
	if !exchangeMeetsMinNotional(res.Quantity, in.Price, in.SymbolFilters) {
		t.Errorf("expected bumped quantity to clear minNotional, got qty=%f", res.Quantity)
	}
}

// TestSize_AutoBumpRefusedOverPercentCap mirrors the spec's refuse scenario:
// a tight max_auto_bump_percent means the minimum legal quantity would
// require more of the balance than the guard allows, so Size refuses
// rather than silently oversizing the position.
func TestSize_AutoBumpRefusedOverPercentCap(t *testing.T) {
	in := baseInput()
	in.Settings.PositionPct = 0.0001
	in.Settings.MaxAutoBumpPercent = 0.004
	in.Settings.AutoBumpPercentMultiplier = 1
	in.Settings.AutoBumpEnabled = true
	in.SymbolFilters.MinQty = 0.01
	in.SymbolFilters.MinNotional = 50

	if _, err := Size(in); err == nil {
		t.Error("expected refusal when auto-bump would exceed the percent cap")
	}
}

func TestSize_AutoBumpRefusedWhenMarginExceedsBalance(t *testing.T) {
	in := baseInput()
	in.AccountBalance = 0.001
	in.Settings.PositionPct = 0.0001
	in.Settings.MaxAutoBumpPercent = 1
	in.Settings.AutoBumpPercentMultiplier = 1
	in.Settings.AutoBumpEnabled = true

	if _, err := Size(in); err == nil {
		t.Error("expected refusal when the bumped margin exceeds available balance")
	}
}

func TestSize_AutoBumpMaxSlotsRejected(t *testing.T) {
	in := baseInput()
	in.Settings.PositionPct = 0.0001
	in.Settings.Leverage = 10
	in.Settings.AutoBumpEnabled = true
	in.Settings.MaxAutoBumpPercent = 1
	in.Settings.AutoBumpPercentMultiplier = 1
	in.Settings.AutoBumpMaxSlots = 1
	in.DesiredSlots = 2

	if _, err := Size(in); err == nil {
		t.Error("expected error when desired slots exceed AutoBumpMaxSlots")
	}
}

func TestSize_LeverageDefaultsToOne(t *testing.T) {
	in := baseInput()
	in.Settings.Leverage = 0

	res, err := Size(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantQty := roundToStepLocal(100*1/60000.0, in.SymbolFilters.StepSize)
	if res.Quantity != wantQty {
		t.Errorf("expected qty %f with default leverage 1, got %f", wantQty, res.Quantity)
	}
}

func TestSize_DesiredSlotsDefaultsToOne(t *testing.T) {
	in := baseInput()
	in.DesiredSlots = 0
	in.IndicatorSpec.PerIndicatorMarginUSD = 50
	in.Settings.Leverage = 10

	res, err := Size(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MarginUSDT <= 0 {
		t.Errorf("expected positive margin with defaulted desired slots, got %f", res.MarginUSDT)
	}
}

func exchangeMeetsMinNotional(qty, price float64, f exchange.SymbolFilters) bool {
	return qty*price >= f.MinNotional
}

func roundToStepLocal(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	steps := int64(qty / step)
	return float64(steps) * step
}

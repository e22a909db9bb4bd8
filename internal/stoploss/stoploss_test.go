package stoploss

import (
	"testing"

	"marginloop/internal/cfg"
	"marginloop/internal/ledger"
)

func TestCheckPerTrade_USDTMode(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "per_trade", Mode: "usdt", USDT: 50})
	key := ledger.LegKey{Symbol: "BTCUSDT", Interval: "1h", PositionSide: "LONG", Indicator: "rsi"}
	entry := ledger.Entry{ID: "e1", Quantity: 1, Price: 100, MarginUSDT: 500}

	if _, ok := e.CheckPerTrade(key, entry, 70); ok {
		t.Error("expected no breach below the usdt threshold")
	}
	breach, ok := e.CheckPerTrade(key, entry, 40)
	if !ok {
		t.Fatal("expected a breach at 60 usdt loss with a 50 usdt threshold")
	}
	if breach.LossUSDT != 60 {
		t.Errorf("expected LossUSDT 60, got %f", breach.LossUSDT)
	}
	if breach.EntryID != "e1" || breach.Qty != 1 {
		t.Errorf("expected breach to identify entry e1 qty 1, got %q/%f", breach.EntryID, breach.Qty)
	}
}

func TestCheckPerTrade_ShortMirrorsLoss(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "per_trade", Mode: "usdt", USDT: 50})
	key := ledger.LegKey{Symbol: "BTCUSDT", Interval: "1h", PositionSide: "SHORT", Indicator: "rsi"}
	entry := ledger.Entry{ID: "e1", Quantity: 1, Price: 100, MarginUSDT: 500}

	if _, ok := e.CheckPerTrade(key, entry, 100); ok {
		t.Error("expected no breach when price has not moved against a short")
	}
	breach, ok := e.CheckPerTrade(key, entry, 160)
	if !ok {
		t.Fatal("expected a breach when price rises 60 against a short")
	}
	if breach.LossUSDT != 60 {
		t.Errorf("expected LossUSDT 60, got %f", breach.LossUSDT)
	}
}

func TestCheckPerTrade_WrongScopeIsNoop(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "cumulative", Mode: "usdt", USDT: 10})
	key := ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}
	entry := ledger.Entry{ID: "e1", Quantity: 1, Price: 1000, MarginUSDT: 1}

	if _, ok := e.CheckPerTrade(key, entry, 0); ok {
		t.Error("expected per-trade check to be a no-op when scope is cumulative")
	}
}

func TestCheckPerTrade_Disabled(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: false, Scope: "per_trade", Mode: "usdt", USDT: 1})
	key := ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}
	entry := ledger.Entry{ID: "e1", Quantity: 1, Price: 1000, MarginUSDT: 1}

	if _, ok := e.CheckPerTrade(key, entry, 0); ok {
		t.Error("expected disabled evaluator to never breach")
	}
}

func TestCheckPerTrade_PercentMode(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "per_trade", Mode: "percent", Percent: 0.1})
	key := ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}
	// notional = 100*5 = 500, margin = 500: price_pct == margin_pct here
	entry := ledger.Entry{ID: "e1", Quantity: 5, Price: 100, MarginUSDT: 500}

	if _, ok := e.CheckPerTrade(key, entry, 92); ok {
		t.Error("expected no breach at 8% loss with a 10% threshold")
	}
	breach, ok := e.CheckPerTrade(key, entry, 88)
	if !ok {
		t.Fatal("expected a breach at 12% loss with a 10% threshold")
	}
	if breach.LossPct < 0.119 || breach.LossPct > 0.121 {
		t.Errorf("expected LossPct ~0.12, got %f", breach.LossPct)
	}
}

func TestCheckPerTrade_MarginPctDominatesWhenLeveraged(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "per_trade", Mode: "percent", Percent: 0.5})
	key := ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}
	// notional = 100*10 = 1000, margin = 100 (10x leverage): a 6% price
	// move is a 60% margin loss, so margin_pct must dominate price_pct.
	entry := ledger.Entry{ID: "e1", Quantity: 10, Price: 100, MarginUSDT: 100}

	breach, ok := e.CheckPerTrade(key, entry, 94)
	if !ok {
		t.Fatal("expected a breach once margin_pct crosses 50%")
	}
	if breach.LossPct < 0.59 || breach.LossPct > 0.61 {
		t.Errorf("expected effective pct to track margin_pct ~0.6, got %f", breach.LossPct)
	}
}

func TestCheckPerTrade_BothMode(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "per_trade", Mode: "both", USDT: 100, Percent: 0.5})
	key := ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}
	entry := ledger.Entry{ID: "e1", Quantity: 1, Price: 1000, MarginUSDT: 1000}

	// usdt threshold breached (150 loss), percent threshold is not (15%)
	breach, ok := e.CheckPerTrade(key, entry, 850)
	if !ok {
		t.Fatal("expected both-mode to breach when either threshold is crossed")
	}
	if breach.LossUSDT != 150 {
		t.Errorf("expected LossUSDT 150, got %f", breach.LossUSDT)
	}
}

func TestCheckPerTrade_PositivePnLNeverBreaches(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "per_trade", Mode: "usdt", USDT: 1})
	key := ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}
	entry := ledger.Entry{ID: "e1", Quantity: 1, Price: 100, MarginUSDT: 500}

	if _, ok := e.CheckPerTrade(key, entry, 200); ok {
		t.Error("expected positive P&L (price above entry on a long) to never breach")
	}
}

func TestCheckCumulative(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "cumulative", Mode: "usdt", USDT: 100})

	if _, ok := e.CheckCumulative(-50, 1000); ok {
		t.Error("expected no breach below threshold")
	}
	if _, ok := e.CheckCumulative(-150, 1000); !ok {
		t.Error("expected breach above threshold")
	}
}

func TestCheckEntireAccount(t *testing.T) {
	e := New(cfg.StopLossConfig{Enabled: true, Scope: "entire_account", Mode: "percent", Percent: 0.2})

	if _, ok := e.CheckEntireAccount(-100, 1000); ok {
		t.Error("expected no breach at 10% account drawdown with a 20% threshold")
	}
	if _, ok := e.CheckEntireAccount(-300, 1000); !ok {
		t.Error("expected breach at 30% account drawdown with a 20% threshold")
	}
}

package risk

import (
	"context"
	"testing"
	"time"

	"marginloop/internal/exchange"
	"marginloop/internal/guards"
	"marginloop/internal/ledger"
	"marginloop/internal/positionview"
)

type fakeAdapter struct {
	exchange.Adapter
	positions []exchange.Position
}

func (f *fakeAdapter) GetPositions(ctx context.Context, symbol string) ([]exchange.Position, error) {
	return f.positions, nil
}

func TestCanOpen_BlocksConcurrentSymbol(t *testing.T) {
	c := New(ledger.New(), guards.New(), positionview.New(&fakeAdapter{}, time.Minute), 0.05)

	if !c.CanOpen("BTCUSDT") {
		t.Fatal("expected CanOpen to pass with no in-flight attempt")
	}
	if err := c.BeginOpen("BTCUSDT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CanOpen("BTCUSDT") {
		t.Error("expected CanOpen to block while an attempt is in flight")
	}
	if err := c.BeginOpen("BTCUSDT"); err == nil {
		t.Error("expected BeginOpen to reject a second concurrent attempt")
	}
	c.EndOpen("BTCUSDT")
	if !c.CanOpen("BTCUSDT") {
		t.Error("expected CanOpen to pass again after EndOpen")
	}
}

func TestMarkClosed_TripsBreakerOnDailyLoss(t *testing.T) {
	c := New(ledger.New(), guards.New(), positionview.New(&fakeAdapter{}, time.Minute), 0.05)

	c.MarkClosed(-40, 1000)
	if c.Tripped() {
		t.Error("expected no trip at 4% daily loss with a 5% threshold")
	}
	c.MarkClosed(-20, 1000)
	if !c.Tripped() {
		t.Error("expected the breaker to trip once cumulative loss crosses 5%")
	}
}

func TestMarkClosed_IgnoresProfit(t *testing.T) {
	c := New(ledger.New(), guards.New(), positionview.New(&fakeAdapter{}, time.Minute), 0.05)
	c.MarkClosed(500, 1000)
	if c.Tripped() {
		t.Error("expected a profitable close to never trip the breaker")
	}
}

func TestResetDaily(t *testing.T) {
	c := New(ledger.New(), guards.New(), positionview.New(&fakeAdapter{}, time.Minute), 0.01)
	c.MarkClosed(-50, 1000)
	if !c.Tripped() {
		t.Fatal("expected the breaker to trip")
	}
	c.ResetDaily()
	if c.Tripped() {
		t.Error("expected ResetDaily to clear the tripped breaker")
	}
	if c.CanOpen("BTCUSDT") != true {
		t.Error("expected CanOpen to pass after reset")
	}
}

func TestCanOpen_BlockedWhileTripped(t *testing.T) {
	c := New(ledger.New(), guards.New(), positionview.New(&fakeAdapter{}, time.Minute), 0.01)
	c.MarkClosed(-50, 1000)
	if c.CanOpen("BTCUSDT") {
		t.Error("expected CanOpen to block once the daily-loss breaker is tripped")
	}
}

func TestReconcile_DetectsDivergence(t *testing.T) {
	led := ledger.New()
	led.Open(ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}, 0.01, 60000, 50)

	fake := &fakeAdapter{positions: []exchange.Position{{Symbol: "BTCUSDT", PositionSide: "LONG", PositionAmt: 0.02}}}
	c := New(led, guards.New(), positionview.New(fake, time.Minute), 0.05)

	div, err := c.Reconcile(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !div.Diverged {
		t.Error("expected ledger (0.01) vs live (0.02) to diverge")
	}
}

func TestReconcile_MatchingQuantities(t *testing.T) {
	led := ledger.New()
	led.Open(ledger.LegKey{Symbol: "BTCUSDT", PositionSide: "LONG", Indicator: "rsi"}, 0.01, 60000, 50)

	fake := &fakeAdapter{positions: []exchange.Position{{Symbol: "BTCUSDT", PositionSide: "LONG", PositionAmt: 0.01}}}
	c := New(led, guards.New(), positionview.New(fake, time.Minute), 0.05)

	div, err := c.Reconcile(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if div.Diverged {
		t.Error("expected matching ledger/live quantities to not diverge")
	}
}

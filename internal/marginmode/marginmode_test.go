package marginmode

import (
	"context"
	"testing"
	"time"

	"marginloop/internal/exchange"
	"marginloop/internal/filters"
)

type fakeAdapter struct {
	exchange.Adapter
	filters        exchange.SymbolFilters
	setMarginCalls int
	setLevCalls    int
	setPosCalls    int
	lastHedgeMode  bool
	err            error
}

func (f *fakeAdapter) GetSymbolFilters(ctx context.Context, symbol string) (exchange.SymbolFilters, error) {
	return f.filters, nil
}

func (f *fakeAdapter) SetMarginType(ctx context.Context, symbol, marginType string) error {
	f.setMarginCalls++
	return f.err
}

func (f *fakeAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.setLevCalls++
	return f.err
}

func (f *fakeAdapter) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	f.setPosCalls++
	f.lastHedgeMode = hedgeMode
	return nil
}

func TestEnsure_AppliesOnce(t *testing.T) {
	fake := &fakeAdapter{filters: exchange.SymbolFilters{MaxLeverage: 20}}
	reg := filters.New(fake, time.Minute)
	e := New(fake, reg)

	if err := e.Ensure(context.Background(), "BTCUSDT", 10, "ISOLATED"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Ensure(context.Background(), "BTCUSDT", 10, "ISOLATED"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.setLevCalls != 1 || fake.setMarginCalls != 1 {
		t.Errorf("expected idempotent calls to skip the second Ensure, got lev=%d margin=%d", fake.setLevCalls, fake.setMarginCalls)
	}
}

func TestEnsure_ReappliesOnChange(t *testing.T) {
	fake := &fakeAdapter{filters: exchange.SymbolFilters{MaxLeverage: 20}}
	reg := filters.New(fake, time.Minute)
	e := New(fake, reg)

	e.Ensure(context.Background(), "BTCUSDT", 10, "ISOLATED")
	e.Ensure(context.Background(), "BTCUSDT", 15, "ISOLATED")

	if fake.setLevCalls != 2 {
		t.Errorf("expected reapply on leverage change, got %d calls", fake.setLevCalls)
	}
}

func TestEnsure_ClampsLeverageToSymbolCeiling(t *testing.T) {
	fake := &fakeAdapter{filters: exchange.SymbolFilters{MaxLeverage: 20}}
	reg := filters.New(fake, time.Minute)
	e := New(fake, reg)

	e.Ensure(context.Background(), "BTCUSDT", 100, "ISOLATED")

	state := e.applied["BTCUSDT"]
	if state.leverage != 20 {
		t.Errorf("expected leverage clamped to 20, got %d", state.leverage)
	}
}

func TestEnsurePositionMode(t *testing.T) {
	fake := &fakeAdapter{}
	e := New(fake, filters.New(fake, time.Minute))

	if err := e.EnsurePositionMode(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.lastHedgeMode {
		t.Error("expected hedge mode to be passed through")
	}
}

func TestReconcile_NoAppliedStateIsNoop(t *testing.T) {
	fake := &fakeAdapter{}
	e := New(fake, filters.New(fake, time.Minute))

	if err := e.Reconcile("BTCUSDT", "CROSSED"); err != nil {
		t.Errorf("expected no error for a symbol with no applied state, got %v", err)
	}
}

func TestReconcile_DetectsDivergence(t *testing.T) {
	fake := &fakeAdapter{filters: exchange.SymbolFilters{MaxLeverage: 20}}
	reg := filters.New(fake, time.Minute)
	e := New(fake, reg)
	e.Ensure(context.Background(), "BTCUSDT", 10, "ISOLATED")

	if err := e.Reconcile("BTCUSDT", "CROSSED"); err == nil {
		t.Error("expected ErrWrongMarginMode when the exchange reports a different mode")
	}
	if err := e.Reconcile("BTCUSDT", "ISOLATED"); err != nil {
		t.Errorf("expected matching margin mode to reconcile cleanly, got %v", err)
	}
}

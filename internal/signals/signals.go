// Package signals evaluates per-indicator buy/sell thresholds against the
// latest indicator values, detects moving-average crossings, and renders
// the human-readable trigger description carried through the rest of the
// pipeline.
//
// Grounded on internal/exec/executor.go's Strategy interface: a pluggable
// per-indicator evaluator feeding a common Signal shape.
package signals

import (
	"fmt"
	"math"

	"marginloop/internal/cfg"
)

// Direction is the directional call a signal makes.
type Direction int

const (
	None Direction = iota
	Buy
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NONE"
	}
}

// Signal is one indicator's evaluation at the latest closed bar.
type Signal struct {
	Indicator   string
	Direction   Direction
	Value       float64
	TriggerDesc string
}

// EvaluateThreshold applies the buy_value/sell_value rule of spec §4.7:
// value <= buyValue triggers Buy, value >= sellValue triggers Sell.
func EvaluateThreshold(indicator string, value float64, spec cfg.IndicatorSpec) Signal {
	if math.IsNaN(value) {
		return Signal{Indicator: indicator, Direction: None, Value: value, TriggerDesc: fmt.Sprintf("%s: not warmed up", indicator)}
	}

	switch {
	case value <= spec.BuyValue:
		return Signal{
			Indicator: indicator, Direction: Buy, Value: value,
			TriggerDesc: fmt.Sprintf("%s=%.4f <= buy_value=%.4f", indicator, value, spec.BuyValue),
		}
	case value >= spec.SellValue:
		return Signal{
			Indicator: indicator, Direction: Sell, Value: value,
			TriggerDesc: fmt.Sprintf("%s=%.4f >= sell_value=%.4f", indicator, value, spec.SellValue),
		}
	default:
		return Signal{
			Indicator: indicator, Direction: None, Value: value,
			TriggerDesc: fmt.Sprintf("%s=%.4f within [%.4f,%.4f]", indicator, value, spec.BuyValue, spec.SellValue),
		}
	}
}

// EvaluateCrossing detects a moving-average style crossing between a fast
// and slow series at the latest bar: fast crossing above slow is Buy,
// below is Sell.
func EvaluateCrossing(indicator string, fast, slow []float64) Signal {
	n := len(fast)
	if n < 2 || len(slow) < 2 {
		return Signal{Indicator: indicator, Direction: None, TriggerDesc: fmt.Sprintf("%s: insufficient history", indicator)}
	}
	curFast, curSlow := fast[n-1], slow[n-1]
	prevFast, prevSlow := fast[n-2], slow[n-2]
	if math.IsNaN(curFast) || math.IsNaN(curSlow) || math.IsNaN(prevFast) || math.IsNaN(prevSlow) {
		return Signal{Indicator: indicator, Direction: None, TriggerDesc: fmt.Sprintf("%s: not warmed up", indicator)}
	}

	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		return Signal{Indicator: indicator, Direction: Buy, Value: curFast - curSlow,
			TriggerDesc: fmt.Sprintf("%s: fast crossed above slow (%.4f > %.4f)", indicator, curFast, curSlow)}
	case prevFast >= prevSlow && curFast < curSlow:
		return Signal{Indicator: indicator, Direction: Sell, Value: curFast - curSlow,
			TriggerDesc: fmt.Sprintf("%s: fast crossed below slow (%.4f < %.4f)", indicator, curFast, curSlow)}
	default:
		return Signal{Indicator: indicator, Direction: None, Value: curFast - curSlow,
			TriggerDesc: fmt.Sprintf("%s: no crossing", indicator)}
	}
}

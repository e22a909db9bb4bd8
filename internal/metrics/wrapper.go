package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports between this package
// and the engine packages that report to it.
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

type Counter = MetricsCounter
type Gauge = MetricsGauge
type Histogram = MetricsHistogram

// MetricsWrapper provides a narrow interface for the engine packages to
// report metrics without importing prometheus directly.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) OrdersTotal() MetricsCounter    { return &CounterWrapper{w.m.OrdersTotal} }
func (w *MetricsWrapper) OrderRetries() MetricsCounter   { return &CounterWrapper{w.m.OrderRetries} }
func (w *MetricsWrapper) ErrorsTotal() MetricsCounter    { return &CounterWrapper{w.m.ErrorsTotal} }
func (w *MetricsWrapper) PnLTotal() MetricsGauge         { return &GaugeWrapper{w.m.PnLTotal} }
func (w *MetricsWrapper) ActiveLegs() MetricsGauge       { return &GaugeWrapper{w.m.ActiveLegs} }
func (w *MetricsWrapper) TotalExposure() MetricsGauge    { return &GaugeWrapper{w.m.TotalExposure} }
func (w *MetricsWrapper) RateLimiterBanTotal() MetricsCounter {
	return &CounterWrapper{w.m.RateLimiterBanTotal}
}
func (w *MetricsWrapper) RateLimiterWaitTotal() MetricsCounter {
	return &CounterWrapper{w.m.RateLimiterWaitTotal}
}
func (w *MetricsWrapper) NetworkErrorsTotal() MetricsCounter {
	return &CounterWrapper{w.m.NetworkErrorsTotal}
}
func (w *MetricsWrapper) GuardRejectionsTotal() MetricsCounter {
	return &CounterWrapper{w.m.GuardRejectionsTotal}
}
func (w *MetricsWrapper) SizerBlockedTotal() MetricsCounter {
	return &CounterWrapper{w.m.SizerBlockedTotal}
}
func (w *MetricsWrapper) FlipsTotal() MetricsCounter { return &CounterWrapper{w.m.FlipsTotal} }
func (w *MetricsWrapper) ResidualConflictsTotal() MetricsCounter {
	return &CounterWrapper{w.m.ResidualConflictsTotal}
}
func (w *MetricsWrapper) StopLossTriggersTotal() MetricsCounter {
	return &CounterWrapper{w.m.StopLossTriggersTotal}
}
func (w *MetricsWrapper) EmergencyClosesTotal() MetricsCounter {
	return &CounterWrapper{w.m.EmergencyClosesTotal}
}
func (w *MetricsWrapper) OrderExecutionDuration() MetricsHistogram {
	return &HistogramWrapper{w.m.OrderExecutionDuration}
}

func (w *MetricsWrapper) UpdateActiveLegs(count int) {
	w.m.UpdateActiveLegs(count)
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}

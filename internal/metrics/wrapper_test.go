package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	ordersCounter := wrapper.OrdersTotal()
	if ordersCounter == nil {
		t.Fatal("OrdersTotal returned nil counter")
	}

	initialValue := testutil.ToFloat64(metrics.OrdersTotal)
	if initialValue != 0 {
		t.Errorf("Expected initial counter value 0, got %f", initialValue)
	}

	ordersCounter.Inc()
	newValue := testutil.ToFloat64(metrics.OrdersTotal)
	if newValue != 1 {
		t.Errorf("Expected counter value 1 after increment, got %f", newValue)
	}

	ordersCounter.Inc()
	finalValue := testutil.ToFloat64(metrics.OrdersTotal)
	if finalValue != 2 {
		t.Errorf("Expected counter value 2 after second increment, got %f", finalValue)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	pnlGauge := wrapper.PnLTotal()
	if pnlGauge == nil {
		t.Fatal("PnLTotal returned nil gauge")
	}

	pnlGauge.Set(123.45)
	value := testutil.ToFloat64(metrics.PnLTotal)
	if value != 123.45 {
		t.Errorf("Expected gauge value 123.45, got %f", value)
	}

	pnlGauge.Add(10.55)
	newValue := testutil.ToFloat64(metrics.PnLTotal)
	expected := 123.45 + 10.55
	if newValue != expected {
		t.Errorf("Expected gauge value %f after add, got %f", expected, newValue)
	}

	pnlGauge.Add(-20.0)
	finalValue := testutil.ToFloat64(metrics.PnLTotal)
	expected = 123.45 + 10.55 - 20.0
	if finalValue != expected {
		t.Errorf("Expected gauge value %f after negative add, got %f", expected, finalValue)
	}
}

func TestMetricsWrapper_HistogramOperations(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	durationHist := wrapper.OrderExecutionDuration()
	if durationHist == nil {
		t.Fatal("OrderExecutionDuration returned nil histogram")
	}

	testValues := []float64{0.001, 0.005, 0.01, 0.05, 0.1}
	for _, value := range testValues {
		durationHist.Observe(value)
	}

	var m dto.Metric
	if err := metrics.OrderExecutionDuration.Write(&m); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	count := float64(m.GetHistogram().GetSampleCount())
	if count != float64(len(testValues)) {
		t.Errorf("Expected %d observations, got %f", len(testValues), count)
	}
}

func TestMetricsWrapper_UpdateActiveLegs(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.UpdateActiveLegs(3)
	value := testutil.ToFloat64(metrics.ActiveLegs)
	if value != 3 {
		t.Errorf("Expected 3 active legs, got %f", value)
	}
}

func TestMetricsWrapper_RiskAndGuardCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.GuardRejectionsTotal().Inc()
	if v := testutil.ToFloat64(metrics.GuardRejectionsTotal); v != 1 {
		t.Errorf("Expected 1 guard rejection, got %f", v)
	}

	wrapper.SizerBlockedTotal().Inc()
	if v := testutil.ToFloat64(metrics.SizerBlockedTotal); v != 1 {
		t.Errorf("Expected 1 sizer-blocked event, got %f", v)
	}

	wrapper.FlipsTotal().Inc()
	if v := testutil.ToFloat64(metrics.FlipsTotal); v != 1 {
		t.Errorf("Expected 1 flip, got %f", v)
	}

	wrapper.ResidualConflictsTotal().Inc()
	if v := testutil.ToFloat64(metrics.ResidualConflictsTotal); v != 1 {
		t.Errorf("Expected 1 residual conflict, got %f", v)
	}

	wrapper.StopLossTriggersTotal().Inc()
	if v := testutil.ToFloat64(metrics.StopLossTriggersTotal); v != 1 {
		t.Errorf("Expected 1 stop-loss trigger, got %f", v)
	}

	wrapper.EmergencyClosesTotal().Inc()
	if v := testutil.ToFloat64(metrics.EmergencyClosesTotal); v != 1 {
		t.Errorf("Expected 1 emergency close, got %f", v)
	}

	wrapper.NetworkErrorsTotal().Inc()
	if v := testutil.ToFloat64(metrics.NetworkErrorsTotal); v != 1 {
		t.Errorf("Expected 1 network error, got %f", v)
	}

	wrapper.RateLimiterBanTotal().Inc()
	if v := testutil.ToFloat64(metrics.RateLimiterBanTotal); v != 1 {
		t.Errorf("Expected 1 rate limiter ban, got %f", v)
	}

	wrapper.RateLimiterWaitTotal().Inc()
	if v := testutil.ToFloat64(metrics.RateLimiterWaitTotal); v != 1 {
		t.Errorf("Expected 1 rate limiter wait, got %f", v)
	}
}

func TestMetricsWrapper_MultipleIncrement(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	numIncrements := 10
	for i := 0; i < numIncrements; i++ {
		wrapper.OrdersTotal().Inc()
	}

	orders := testutil.ToFloat64(metrics.OrdersTotal)
	if orders != float64(numIncrements) {
		t.Errorf("Expected %d orders, got %f", numIncrements, orders)
	}
}

func TestCounterWrapper_DirectUsage(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter for unit tests",
	})

	wrapper := &CounterWrapper{c: counter}

	wrapper.Inc()
	value := testutil.ToFloat64(counter)
	if value != 1 {
		t.Errorf("Expected counter value 1, got %f", value)
	}
}

func TestGaugeWrapper_DirectUsage(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "Test gauge for unit tests",
	})

	wrapper := &GaugeWrapper{g: gauge}

	wrapper.Set(42.0)
	value := testutil.ToFloat64(gauge)
	if value != 42.0 {
		t.Errorf("Expected gauge value 42.0, got %f", value)
	}

	wrapper.Add(8.0)
	newValue := testutil.ToFloat64(gauge)
	if newValue != 50.0 {
		t.Errorf("Expected gauge value 50.0 after add, got %f", newValue)
	}
}

func TestHistogramWrapper_DirectUsage(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "Test histogram for unit tests",
		Buckets: prometheus.DefBuckets,
	})

	wrapper := &HistogramWrapper{h: histogram}

	wrapper.Observe(0.5)
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.OrdersTotal().Inc()
				wrapper.OrderExecutionDuration().Observe(0.01)
				wrapper.GuardRejectionsTotal().Inc()
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	orders := testutil.ToFloat64(metrics.OrdersTotal)
	rejections := testutil.ToFloat64(metrics.GuardRejectionsTotal)

	expected := 1000.0
	if orders != expected {
		t.Errorf("Expected %f orders after concurrent access, got %f", expected, orders)
	}
	if rejections != expected {
		t.Errorf("Expected %f guard rejections after concurrent access, got %f", expected, rejections)
	}
}

func TestMetricsWrapper_NilGuard(t *testing.T) {
	wrapper := &MetricsWrapper{m: nil}

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when accessing nil metrics")
		}
	}()

	wrapper.OrdersTotal()
}

func BenchmarkMetricsWrapper_OrdersTotalInc(b *testing.B) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.OrdersTotal().Inc()
	}
}

func BenchmarkMetricsWrapper_OrderExecutionDurationObserve(b *testing.B) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.OrderExecutionDuration().Observe(0.01)
	}
}

func BenchmarkMetricsWrapper_UpdateActiveLegs(b *testing.B) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.UpdateActiveLegs(i % 10)
	}
}

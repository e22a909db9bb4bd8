// Package metrics provides Prometheus metrics collection for the trading
// engine. It defines and manages all performance, risk, and system
// metrics exposed via the Prometheus metrics endpoint for monitoring and
// alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	// Order lifecycle
	OrdersTotal            prometheus.Counter   // Total number of orders placed
	OrderRetries           prometheus.Counter   // Total number of order placement retries
	OrderExecutionDuration prometheus.Histogram // Duration of order execution attempts

	// Ledger and positions
	ActiveLegs      prometheus.Gauge // Number of currently open legs
	PnLTotal        prometheus.Gauge // Current total realized+unrealized P&L
	TotalExposure   prometheus.Gauge // Total notional exposure across all symbols

	// Rate limiter / exchange health
	RateLimiterBanTotal   prometheus.Counter // Total number of times the rate limiter entered a ban pause
	RateLimiterWaitTotal  prometheus.Counter // Total number of calls that had to wait for the window
	NetworkErrorsTotal    prometheus.Counter // Total number of network errors observed by the emergency monitor

	// Guard / sizer / conflict outcomes
	GuardRejectionsTotal prometheus.Counter // Total number of signals rejected by a guard layer
	SizerBlockedTotal    prometheus.Counter // Total number of sizing attempts blocked by filters
	FlipsTotal           prometheus.Counter // Total number of conflict-resolver flips executed
	ResidualConflictsTotal prometheus.Counter // Total number of flips that could not confirm flat

	// Stop-loss / emergency
	StopLossTriggersTotal prometheus.Counter // Total number of stop-loss breaches triggered
	EmergencyClosesTotal  prometheus.Counter // Total number of emergency flatten cycles run

	// System
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of orders placed",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of order placement retries",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration of order execution attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ActiveLegs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_legs",
			Help: "Number of currently open legs",
		}),
		PnLTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pnl_total",
			Help: "Current total realized+unrealized profit and loss",
		}),
		TotalExposure: factory.NewGauge(prometheus.GaugeOpts{
			Name: "total_exposure",
			Help: "Total notional exposure across all symbols",
		}),
		RateLimiterBanTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rate_limiter_ban_total",
			Help: "Total number of times the rate limiter entered a ban pause",
		}),
		RateLimiterWaitTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rate_limiter_wait_total",
			Help: "Total number of calls that had to wait for the rate limit window",
		}),
		NetworkErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "network_errors_total",
			Help: "Total number of network errors observed by the emergency monitor",
		}),
		GuardRejectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "guard_rejections_total",
			Help: "Total number of signals rejected by a guard layer",
		}),
		SizerBlockedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sizer_blocked_total",
			Help: "Total number of sizing attempts blocked by filters",
		}),
		FlipsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flips_total",
			Help: "Total number of conflict-resolver flips executed",
		}),
		ResidualConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "residual_conflicts_total",
			Help: "Total number of flips that could not confirm flat afterward",
		}),
		StopLossTriggersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "stop_loss_triggers_total",
			Help: "Total number of stop-loss breaches triggered",
		}),
		EmergencyClosesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "emergency_closes_total",
			Help: "Total number of emergency flatten cycles run",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// UpdateActiveLegs sets the active-legs gauge from a live count.
func (m *Metrics) UpdateActiveLegs(count int) {
	m.ActiveLegs.Set(float64(count))
}

// GetErrorRate calculates the current error rate based on total orders and
// errors recorded so far. Returns 0 if no orders have been recorded.
func (m *Metrics) GetErrorRate() float64 {
	var totalOps, totalErrors float64

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch *mf.Name {
		case "orders_total":
			for _, metric := range mf.Metric {
				totalOps = *metric.Counter.Value
			}
		case "errors_total":
			for _, metric := range mf.Metric {
				totalErrors = *metric.Counter.Value
			}
		}
	}

	if totalOps == 0 {
		return 0
	}
	return totalErrors / totalOps
}

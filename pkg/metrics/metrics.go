// Package metrics exposes Prometheus instrumentation for the backtest
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the Prometheus collectors for the service.
type Recorder struct {
	backtestsTotal  *prometheus.CounterVec
	tradesGenerated prometheus.Counter
	parseErrors     prometheus.Counter
	lastReturn      *prometheus.GaugeVec
	duration        prometheus.Histogram
}

// New creates a new Prometheus metrics recorder registered on the
// default registry.
func New() *Recorder {
	return &Recorder{
		backtestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradescript_backtests_total",
				Help: "Total number of backtests run, by outcome",
			},
			[]string{"outcome"},
		),
		tradesGenerated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradescript_trades_generated_total",
				Help: "Total number of simulated trades generated",
			},
		),
		parseErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradescript_parse_errors_total",
				Help: "Total number of rule texts rejected by the parser",
			},
		),
		lastReturn: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradescript_last_total_return_pct",
				Help: "Total return of the most recent backtest per strategy",
			},
			[]string{"strategy"},
		),
		duration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradescript_backtest_duration_seconds",
				Help:    "Duration of backtest runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordBacktest records one completed or failed backtest.
func (r *Recorder) RecordBacktest(outcome string, seconds float64) {
	r.backtestsTotal.WithLabelValues(outcome).Inc()
	r.duration.Observe(seconds)
}

// RecordTrades adds to the generated-trade counter.
func (r *Recorder) RecordTrades(n int) {
	r.tradesGenerated.Add(float64(n))
}

// RecordParseError counts a rejected rule text.
func (r *Recorder) RecordParseError() {
	r.parseErrors.Inc()
}

// RecordTotalReturn records the latest total return for a strategy.
func (r *Recorder) RecordTotalReturn(strategy string, pct float64) {
	r.lastReturn.WithLabelValues(strategy).Set(pct)
}

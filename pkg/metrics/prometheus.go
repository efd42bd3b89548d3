package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal         *prometheus.CounterVec
	lastPrice          *prometheus.GaugeVec
	exposureRatio      *prometheus.GaugeVec
	interventionsTotal *prometheus.CounterVec
	settlementsTotal   *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	latency            *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quoteforge_ticks_generated_total",
				Help: "Total number of price ticks generated",
			},
			[]string{"symbol", "mode"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quoteforge_last_price",
				Help: "Last emitted price for a symbol",
			},
			[]string{"symbol"},
		),
		exposureRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quoteforge_exposure_ratio",
				Help: "Current exposure imbalance ratio per symbol",
			},
			[]string{"symbol"},
		),
		interventionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quoteforge_interventions_total",
				Help: "Risk engine exit price decisions by result",
			},
			[]string{"symbol", "result"},
		),
		settlementsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quoteforge_settlements_total",
				Help: "Settled trades by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quoteforge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quoteforge_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick counts one generated tick.
func (r *Recorder) RecordTick(symbol, mode string) {
	r.ticksTotal.WithLabelValues(symbol, mode).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordExposure records the current exposure ratio for a symbol.
func (r *Recorder) RecordExposure(symbol string, ratio float64) {
	r.exposureRatio.WithLabelValues(symbol).Set(ratio)
}

// RecordIntervention counts one risk engine decision.
func (r *Recorder) RecordIntervention(symbol, result string) {
	r.interventionsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordSettlement counts one settled trade.
func (r *Recorder) RecordSettlement(symbol, outcome string) {
	r.settlementsTotal.WithLabelValues(symbol, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

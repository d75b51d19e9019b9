// Package metrics exposes Prometheus instruments for the settlement engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	PeriodCloses    *prometheus.CounterVec
	PaymentsCreated prometheus.Counter
	AmountBilled    prometheus.Counter
	LeadsSkipped    *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	FraudChecks     *prometheus.CounterVec
	OracleLatency   prometheus.Histogram
	LeadsImported   prometheus.Counter
}

// New registers all instruments on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PeriodCloses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_period_closes_total",
			Help: "Period close runs by outcome.",
		}, []string{"result"}),
		PaymentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "payouts_payments_created_total",
			Help: "Payments created by period closes.",
		}),
		AmountBilled: f.NewCounter(prometheus.CounterOpts{
			Name: "payouts_amount_billed_usd_total",
			Help: "USD billed across created payments.",
		}),
		LeadsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_leads_skipped_total",
			Help: "Leads left out of aggregation by reason.",
		}, []string{"reason"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_payment_transitions_total",
			Help: "Payment state transitions by target status and result.",
		}, []string{"status", "result"}),
		FraudChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_fraud_checks_total",
			Help: "Fraud evaluations by outcome.",
		}, []string{"outcome"}),
		OracleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "payouts_fraud_oracle_duration_seconds",
			Help:    "Latency of fraud oracle calls.",
			Buckets: prometheus.DefBuckets,
		}),
		LeadsImported: f.NewCounter(prometheus.CounterOpts{
			Name: "payouts_leads_imported_total",
			Help: "Leads inserted by file imports.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

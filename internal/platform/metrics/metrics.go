package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application system.
type Metrics struct {
	ApplicationsCreated *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	AnswerUpdates       *prometheus.CounterVec
	FlattenDuration     prometheus.Histogram
	ExternalDataFetches *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ApplicationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_applications_created_total",
			Help: "Total applications created, by template",
		}, []string{"template"}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_transitions_total",
			Help: "Lifecycle transition attempts, by template, event and outcome",
		}, []string{"template", "event", "outcome"}),
		AnswerUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_answer_updates_total",
			Help: "Answer update attempts, by template and outcome",
		}, []string{"template", "outcome"}),
		FlattenDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formflow_flatten_duration_seconds",
			Help:    "Time spent flattening form trees into screens",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		ExternalDataFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formflow_external_data_fetches_total",
			Help: "External data provider fetches, by provider and status",
		}, []string{"provider", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formflow_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// ObserveFlatten records one flatten pass. Nil-safe so pure-engine callers
// can run without metrics wired.
func (m *Metrics) ObserveFlatten(d time.Duration) {
	if m == nil {
		return
	}
	m.FlattenDuration.Observe(d.Seconds())
}

// RecordTransition records a transition attempt outcome.
func (m *Metrics) RecordTransition(template, event, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(template, event, outcome).Inc()
}

// RecordExternalFetch records one provider fetch result.
func (m *Metrics) RecordExternalFetch(provider, status string) {
	if m == nil {
		return
	}
	m.ExternalDataFetches.WithLabelValues(provider, status).Inc()
}

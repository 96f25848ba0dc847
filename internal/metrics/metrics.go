package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects import pipeline counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobRetries    *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsRunning   prometheus.Gauge
	queueDepth    prometheus.Gauge

	normalizerDecisions *prometheus.CounterVec
	normalizerSpend     prometheus.Counter
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "quizpack_import_jobs_submitted_total",
			Help: "Import jobs accepted into the queue.",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quizpack_import_jobs_finished_total",
			Help: "Import jobs that reached a terminal status.",
		}, []string{"status", "kind"}),
		jobRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quizpack_import_job_retries_total",
			Help: "Failed attempts that were retried.",
		}, []string{"kind"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizpack_import_job_duration_seconds",
			Help:    "Wall time from start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"status"}),
		jobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Name: "quizpack_import_jobs_running",
			Help: "Import jobs currently being processed.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "quizpack_import_queue_depth",
			Help: "Import jobs waiting for a worker.",
		}),
		normalizerDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quizpack_normalizer_decisions_total",
			Help: "Normalizer gate outcomes.",
		}, []string{"action"}),
		normalizerSpend: f.NewCounter(prometheus.CounterOpts{
			Name: "quizpack_normalizer_spend_total",
			Help: "Estimated language model spend.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
}

func (m *Metrics) JobRetried(kind string) {
	if m == nil {
		return
	}
	m.jobRetries.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobFinished(status, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsRunning.Dec()
	m.jobsFinished.WithLabelValues(status, kind).Inc()
	m.jobDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *Metrics) NormalizerDecision(action string) {
	if m == nil {
		return
	}
	m.normalizerDecisions.WithLabelValues(action).Inc()
}

func (m *Metrics) NormalizerSpend(cost float64) {
	if m == nil || cost <= 0 {
		return
	}
	m.normalizerSpend.Add(cost)
}

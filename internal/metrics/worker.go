package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/governance-gate/internal/governance"
)

// WorkerMetrics tracks governed records flowing through the Kafka worker.
type WorkerMetrics struct {
	registry *prometheus.Registry

	recordsTotal    *prometheus.CounterVec
	termHitsTotal   *prometheus.CounterVec
	failSafeTotal   prometheus.Counter
	duplicatesTotal prometheus.Counter
	dlqTotal        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	dedupeEntries   prometheus.Gauge
}

// NewWorkerMetrics registers worker collectors on a private registry.
func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		recordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "records_total",
			Help:        "Governed records by status.",
			ConstLabels: labels,
		}, []string{"status"}),
		termHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "restricted_term_hits_total",
			Help:        "Quarantined records by the restricted term that matched.",
			ConstLabels: labels,
		}, []string{"term"}),
		failSafeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "fail_safe_total",
			Help:        "Records that fell back to the fail-safe outcome.",
			ConstLabels: labels,
		}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "duplicates_total",
			Help:        "Redelivered records skipped by the dedupe cache.",
			ConstLabels: labels,
		}),
		dlqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "dlq_writes_total",
			Help:        "Dead-letter writes by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "message_duration_seconds",
			Help:        "Time spent handling one Kafka message, by result.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "messages_in_flight",
			Help:        "Messages currently being handled.",
			ConstLabels: labels,
		}),
		dedupeEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "governance",
			Subsystem:   "worker",
			Name:        "dedupe_entries",
			Help:        "Record IDs currently held by the dedupe cache.",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(m.recordsTotal, m.termHitsTotal, m.failSafeTotal, m.duplicatesTotal, m.dlqTotal, m.duration, m.inFlight, m.dedupeEntries)
	return m
}

// Handler exposes the registry for scraping.
func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartMessage marks a message as in flight.
func (m *WorkerMetrics) StartMessage() {
	m.inFlight.Inc()
}

// FinishMessage records how handling a message ended.
func (m *WorkerMetrics) FinishMessage(d time.Duration, err error) {
	m.inFlight.Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.duration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveOutcome counts a governed record.
func (m *WorkerMetrics) ObserveOutcome(out governance.Outcome) {
	m.recordsTotal.WithLabelValues(string(out.Status())).Inc()
	if out.Failed {
		m.failSafeTotal.Inc()
	}
	if out.Term != "" {
		m.termHitsTotal.WithLabelValues(out.Term).Inc()
	}
}

// ObserveDuplicate counts a skipped redelivery.
func (m *WorkerMetrics) ObserveDuplicate() {
	m.duplicatesTotal.Inc()
}

// ObserveDLQ counts a dead-letter write attempt outcome.
func (m *WorkerMetrics) ObserveDLQ(ok bool) {
	result := "ok"
	if !ok {
		result = "exhausted"
	}
	m.dlqTotal.WithLabelValues(result).Inc()
}

// SetDedupeEntries reports the dedupe cache size.
func (m *WorkerMetrics) SetDedupeEntries(n int) {
	m.dedupeEntries.Set(float64(n))
}

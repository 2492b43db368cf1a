// Package metrics provides Prometheus metrics for the memory agents.
//
// All methods are safe to call on a nil *Metrics so components can run
// without instrumentation in tests and one-off CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the memory subsystem.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation store
	StoreOperations *prometheus.CounterVec
	Truncations     prometheus.Counter
	SkippedMessages prometheus.Counter

	// Ingest agent
	RecordsIngested  *prometheus.CounterVec
	AnalysisTriggers prometheus.Counter

	// Retention manager
	RetentionSweeps   prometheus.Counter
	RetentionPruned   prometheus.Counter
	RetentionFailures prometheus.Counter
	RetentionDuration prometheus.Histogram
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: reg}

	m.StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jenkins_memory_store_operations_total",
			Help: "Conversation store operations by operation and outcome",
		},
		[]string{"op", "status"},
	)
	m.Truncations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jenkins_memory_truncations_total",
		Help: "Messages whose content was truncated to the size cap",
	})
	m.SkippedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jenkins_memory_skipped_messages_total",
		Help: "Messages skipped on add because they had no content",
	})
	m.RecordsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jenkins_memory_records_ingested_total",
			Help: "Typed Jenkins records consumed by record type and outcome",
		},
		[]string{"type", "status"},
	)
	m.AnalysisTriggers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jenkins_memory_analysis_triggers_total",
		Help: "Analysis triggers published for completed builds",
	})
	m.RetentionSweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jenkins_memory_retention_sweeps_total",
		Help: "Completed retention sweeps",
	})
	m.RetentionPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jenkins_memory_retention_pruned_messages_total",
		Help: "Messages deleted by retention sweeps",
	})
	m.RetentionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jenkins_memory_retention_failures_total",
		Help: "Conversations that failed to prune during a sweep",
	})
	m.RetentionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "jenkins_memory_retention_sweep_duration_seconds",
		Help:    "Duration of retention sweeps in seconds",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(
		m.StoreOperations,
		m.Truncations,
		m.SkippedMessages,
		m.RecordsIngested,
		m.AnalysisTriggers,
		m.RetentionSweeps,
		m.RetentionPruned,
		m.RetentionFailures,
		m.RetentionDuration,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStoreOp records a store operation outcome.
func (m *Metrics) ObserveStoreOp(op string, err error) {
	if m == nil {
		return
	}
	m.StoreOperations.WithLabelValues(op, status(err)).Inc()
}

// RecordTruncation counts one truncated message.
func (m *Metrics) RecordTruncation() {
	if m == nil {
		return
	}
	m.Truncations.Inc()
}

// RecordSkipped counts one skipped message.
func (m *Metrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.SkippedMessages.Inc()
}

// ObserveRecord records the outcome of ingesting one typed record.
func (m *Metrics) ObserveRecord(recordType string, err error) {
	if m == nil {
		return
	}
	m.RecordsIngested.WithLabelValues(recordType, status(err)).Inc()
}

// RecordTrigger counts one published analysis trigger.
func (m *Metrics) RecordTrigger() {
	if m == nil {
		return
	}
	m.AnalysisTriggers.Inc()
}

// ObserveSweep records a completed retention sweep.
func (m *Metrics) ObserveSweep(pruned, failures int, d time.Duration) {
	if m == nil {
		return
	}
	m.RetentionSweeps.Inc()
	m.RetentionPruned.Add(float64(pruned))
	m.RetentionFailures.Add(float64(failures))
	m.RetentionDuration.Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the coordinator and worker
// processes publish.
type Metrics struct {
	// HTTP metrics (admin/introspection routes)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dispatch metrics
	DispatchTotal     prometheus.Counter
	DispatchDuration  prometheus.Histogram
	DispatchErrors    *prometheus.CounterVec
	PlacementsGauge   prometheus.Gauge
	PlacementsTotal   *prometheus.CounterVec
	SplitSubgraphs    prometheus.Histogram

	// Worker connection metrics
	WorkersOnline      prometheus.Gauge
	WorkerRPCTotal     *prometheus.CounterVec
	WorkerRPCDuration  *prometheus.HistogramVec
	WorkerRPCErrors    *prometheus.CounterVec

	// Recovery metrics
	RecoveryTotal        *prometheus.CounterVec
	RecoveryDuration     *prometheus.HistogramVec
	ResubmittedSubgraphs *prometheus.CounterVec
	PersistedSkipped     prometheus.Counter

	// Completion-listener metrics
	CompletionsTotal prometheus.Counter
	CompletionErrors *prometheus.CounterVec

	// Event bus metrics
	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec

	// Database metrics
	DBQueriesTotal      *prometheus.CounterVec
	DBQueryDuration     *prometheus.HistogramVec
	DBConnectionsActive prometheus.Gauge
}

// NewMetrics creates and registers every collector under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dspash"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of admin HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Admin HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		DispatchTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of graphs dispatched to the worker pool",
			},
		),
		DispatchDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent splitting, rewriting, and sending a graph",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DispatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_errors_total",
				Help:      "Total number of dispatch failures by stage",
			},
			[]string{"stage"},
		),
		PlacementsGauge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "placements_active",
				Help:      "Number of subgraph placements dispatched since start (never decremented)",
			},
		),
		PlacementsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "placements_total",
				Help:      "Total number of subgraph placements made, by worker",
			},
			[]string{"worker"},
		),
		SplitSubgraphs: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "split_subgraphs",
				Help:      "Number of subgraphs a dispatched graph was split into",
				Buckets:   prometheus.LinearBuckets(1, 1, 12),
			},
		),

		WorkersOnline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_online",
				Help:      "Number of workers currently marked online",
			},
		),
		WorkerRPCTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_rpc_total",
				Help:      "Total number of worker command-socket RPCs sent",
			},
			[]string{"message_type", "status"},
		),
		WorkerRPCDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_rpc_duration_seconds",
				Help:      "Worker command-socket RPC round-trip duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"message_type"},
		),
		WorkerRPCErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_rpc_errors_total",
				Help:      "Total number of worker command-socket RPC failures",
			},
			[]string{"message_type"},
		),

		RecoveryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_total",
				Help:      "Total number of crash-recovery runs by fault-tolerance mode",
			},
			[]string{"ft_mode"},
		),
		RecoveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recovery_duration_seconds",
				Help:      "Time spent rescheduling subgraphs after a worker loss",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"ft_mode"},
		),
		ResubmittedSubgraphs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resubmitted_subgraphs_total",
				Help:      "Total number of subgraphs resubmitted after a crash",
			},
			[]string{"ft_mode"},
		),
		PersistedSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "persisted_skipped_total",
				Help:      "Total number of subgraphs skipped on recovery because the discovery service found them already persisted",
			},
		),

		CompletionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completions_total",
				Help:      "Total number of completion notices received",
			},
		),
		CompletionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "completion_errors_total",
				Help:      "Total number of malformed or unmatched completion notices",
			},
			[]string{"reason"},
		),

		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of domain events published",
			},
			[]string{"event_type"},
		),
		EventsConsumedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Total number of domain events consumed",
			},
			[]string{"event_type"},
		),

		DBQueriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_active",
				Help:      "Number of active database connections",
			},
		),
	}
}

// RecordHTTPRequest records an admin HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// RecordDispatch records a successful dispatch: how long it took and how
// many subgraphs the graph was split into.
func (m *Metrics) RecordDispatch(duration time.Duration, subgraphCount int) {
	m.DispatchTotal.Inc()
	m.DispatchDuration.Observe(duration.Seconds())
	m.SplitSubgraphs.Observe(float64(subgraphCount))
}

// RecordDispatchError records a dispatch failure at the named stage
// ("split", "rewrite", "send", ...).
func (m *Metrics) RecordDispatchError(stage string) {
	m.DispatchErrors.WithLabelValues(stage).Inc()
}

// RecordWorkerRPC records a worker command-socket round trip.
func (m *Metrics) RecordWorkerRPC(messageType string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.WorkerRPCErrors.WithLabelValues(messageType).Inc()
	}
	m.WorkerRPCTotal.WithLabelValues(messageType, status).Inc()
	m.WorkerRPCDuration.WithLabelValues(messageType).Observe(duration.Seconds())
}

// RecordRecovery records one crash-recovery run and how many subgraphs it
// resubmitted.
func (m *Metrics) RecordRecovery(ftMode string, duration time.Duration, resubmitted int) {
	m.RecoveryTotal.WithLabelValues(ftMode).Inc()
	m.RecoveryDuration.WithLabelValues(ftMode).Observe(duration.Seconds())
	m.ResubmittedSubgraphs.WithLabelValues(ftMode).Add(float64(resubmitted))
}

// RecordCompletion records a completion notice; reason is empty on success
// or names why the notice was rejected ("short-read", "unknown-uuid").
func (m *Metrics) RecordCompletion(reason string) {
	if reason == "" {
		m.CompletionsTotal.Inc()
		return
	}
	m.CompletionErrors.WithLabelValues(reason).Inc()
}

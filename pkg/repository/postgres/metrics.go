package postgres

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// repositoryMetrics holds the Prometheus collectors shared by every postgres
// repository in this package. All six repositories (Task, Queue,
// DispatchLog, IdeaTask, IdeaExecution, Idea) report into the same vectors,
// distinguished by the "operation" label.
type repositoryMetrics struct {
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	errors        *prometheus.CounterVec
	poolStats     *prometheus.GaugeVec
}

// observe records a repository call's outcome and latency. Every repository
// in this package shares these vectors, distinguished by the operation
// label, so dashboards can compare e.g. task_get against queue_get without
// per-repository boilerplate.
func (m *repositoryMetrics) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.errors.WithLabelValues(operation, classifyDBError(err)).Inc()
	}
	m.queries.WithLabelValues(operation, status).Inc()
	m.queryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

var (
	sharedMetrics     *repositoryMetrics
	sharedMetricsOnce sync.Once
)

// getRepositoryMetrics returns the package-wide metrics singleton,
// registering its collectors with the default Prometheus registry on first
// use. A plain package-level var would double-register once a second
// repository constructor ran.
func getRepositoryMetrics() *repositoryMetrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = initializeMetrics()
	})
	return sharedMetrics
}

// initializeMetrics creates and registers repository metrics
func initializeMetrics() *repositoryMetrics {
	m := &repositoryMetrics{
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_queries_total",
				Help: "Total number of repository queries",
			},
			[]string{"operation", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repository_query_duration_seconds",
				Help:    "Query duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"level"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"level"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repository_errors_total",
				Help: "Total number of repository errors",
			},
			[]string{"operation", "error_type"},
		),
		poolStats: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "repository_pool_connections",
				Help: "Database connection pool statistics",
			},
			[]string{"pool", "state"},
		),
	}

	prometheus.MustRegister(
		m.queries,
		m.queryDuration,
		m.cacheHits,
		m.cacheMisses,
		m.errors,
		m.poolStats,
	)

	return m
}

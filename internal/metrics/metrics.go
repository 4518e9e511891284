// Package metrics holds the Prometheus collectors for the job pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranshivaraju/webgenie/pkg/models"
)

type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted     *prometheus.CounterVec
	jobsFinished      *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	skippedRows       prometheus.Counter
	sweptDirs         prometheus.Counter
	sweptBytes        prometheus.Counter
	reconciledJobs    *prometheus.CounterVec
	runningTasks      prometheus.Gauge
}

// New registers every collector on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webgenie_jobs_submitted_total",
			Help: "Number of jobs accepted for execution, by algorithm.",
		}, []string{"algorithm"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webgenie_jobs_finished_total",
			Help: "Number of jobs that reached a terminal status, by algorithm, status and error kind.",
		}, []string{"algorithm", "status", "error_kind"}),
		executionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webgenie_execution_duration_seconds",
			Help:    "Wall-clock duration of algorithm executions.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"algorithm", "status"}),
		skippedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "webgenie_network_skipped_rows_total",
			Help: "Malformed rows skipped while reading network files.",
		}),
		sweptDirs: f.NewCounter(prometheus.CounterOpts{
			Name: "webgenie_cleanup_deleted_dirs_total",
			Help: "Job directories removed by the retention sweep.",
		}),
		sweptBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "webgenie_cleanup_freed_bytes_total",
			Help: "Bytes freed by the retention sweep.",
		}),
		reconciledJobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "webgenie_watchdog_reconciled_jobs_total",
			Help: "Stuck jobs failed by the watchdog, by error kind.",
		}, []string{"error_kind"}),
		runningTasks: f.NewGauge(prometheus.GaugeOpts{
			Name: "webgenie_worker_running_tasks",
			Help: "Tasks currently executing in this process.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) JobSubmitted(algorithm string) {
	if m == nil {
		return
	}
	m.jobsSubmitted.WithLabelValues(algorithm).Inc()
}

func (m *Metrics) JobFinished(algorithm string, status models.JobStatus, kind models.ErrorKind) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(algorithm, string(status), string(kind)).Inc()
}

func (m *Metrics) ObserveExecution(algorithm string, status models.JobStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.executionDuration.WithLabelValues(algorithm, string(status)).Observe(d.Seconds())
}

func (m *Metrics) SkippedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedRows.Add(float64(n))
}

func (m *Metrics) Swept(dirs int, bytes int64) {
	if m == nil {
		return
	}
	m.sweptDirs.Add(float64(dirs))
	m.sweptBytes.Add(float64(bytes))
}

func (m *Metrics) Reconciled(kind models.ErrorKind) {
	if m == nil {
		return
	}
	m.reconciledJobs.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.runningTasks.Inc()
}

func (m *Metrics) TaskDone() {
	if m == nil {
		return
	}
	m.runningTasks.Dec()
}

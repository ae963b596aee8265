package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerfSnapshot is the process-lifetime rolling aggregate. Reset only by
// process restart.
type PerfSnapshot struct {
	TotalJobs       int     `json:"total_jobs"`
	TotalProducts   int     `json:"total_products"`
	AvgMsPerProduct float64 `json:"avg_ms_per_product"`
}

// perfAggregate accumulates the rolling average incrementally so Snapshot is
// cheap no matter how many jobs have run.
type perfAggregate struct {
	mu            sync.Mutex
	totalJobs     int
	totalProducts int
	totalDuration time.Duration
}

func (p *perfAggregate) record(products int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalJobs++
	p.totalProducts += products
	p.totalDuration += elapsed
}

func (p *perfAggregate) Snapshot() PerfSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := PerfSnapshot{
		TotalJobs:     p.totalJobs,
		TotalProducts: p.totalProducts,
	}
	if p.totalProducts > 0 {
		snap.AvgMsPerProduct = float64(p.totalDuration.Milliseconds()) / float64(p.totalProducts)
	}
	return snap
}

// Metrics bundles the Prometheus collectors for the scheduler. All methods
// are nil-safe so the scheduler runs unchanged without a registry.
type Metrics struct {
	Registry         *prometheus.Registry
	JobsTotal        *prometheus.CounterVec
	ProductsTotal    prometheus.Counter
	ExtractionErrors *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	QueueDepth       prometheus.Gauge
}

// NewMetrics constructs and registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_jobs_total",
			Help: "Jobs reaching a terminal state, by status.",
		},
		[]string{"status"},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_products_total",
			Help: "Successfully extracted and normalized products.",
		},
	)
	extractionErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_extraction_errors_total",
			Help: "Non-fatal extraction failures, by error code.",
		},
		[]string{"code"},
	)
	jobDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_job_duration_seconds",
			Help:    "Wall time per job from dequeue to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_queue_depth",
			Help: "Pending jobs waiting to run.",
		},
	)

	registry.MustRegister(jobs, products, extractionErrors, jobDuration, queueDepth)

	return &Metrics{
		Registry:         registry,
		JobsTotal:        jobs,
		ProductsTotal:    products,
		ExtractionErrors: extractionErrors,
		JobDuration:      jobDuration,
		QueueDepth:       queueDepth,
	}
}

func (m *Metrics) jobFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) addProducts(n int) {
	if m == nil {
		return
	}
	m.ProductsTotal.Add(float64(n))
}

func (m *Metrics) extractionError(code string) {
	if m == nil {
		return
	}
	m.ExtractionErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

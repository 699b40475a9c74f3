package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the pipeline's Prometheus registry and every instrument the
// run records into. A nil *Metrics is valid and turns every method into a
// no-op, which keeps call sites unconditional when ENABLE_METRICS=false.
//
// All instruments are safe under one concurrent scraper and one writer;
// the client library guarantees readers observe pre- or post-update values,
// never torn ones.
type Metrics struct {
	registry *prometheus.Registry

	PostsFetched          *prometheus.CounterVec
	PostsDeduplicated     prometheus.Counter
	PostsProcessed        prometheus.Counter
	SentimentDistribution *prometheus.CounterVec

	SentimentAnalysisDuration prometheus.Histogram
	SentimentBatchSize        prometheus.Histogram
	PipelineDuration          prometheus.Histogram
	ModelLoadDuration         prometheus.Histogram

	PipelineErrors *prometheus.CounterVec
	SourceErrors   *prometheus.CounterVec

	PipelineStatus    prometheus.Gauge
	LastSuccessfulRun prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	BuildInfo         *prometheus.GaugeVec
}

// New builds a Metrics backed by a fresh registry. Tests get isolated
// registries for free; the process creates exactly one.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.PostsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_fetched_total",
		Help: "Submissions returned by the source client",
	}, []string{"community"})

	m.PostsDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_deduplicated_total",
		Help: "Submissions dropped as already seen",
	})

	m.PostsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_processed_total",
		Help: "Enriched records successfully written to the sink",
	})

	m.SentimentDistribution = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_distribution_total",
		Help: "Count of outputs per sentiment label",
	}, []string{"label"})

	m.SentimentAnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentiment_analysis_duration_seconds",
		Help:    "Wall time per sentiment batch",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})

	m.SentimentBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentiment_batch_size",
		Help:    "Batch sizes used for sentiment analysis",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200},
	})

	m.PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_total_duration_seconds",
		Help:    "End-to-end run wall time",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
	})

	m.ModelLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "model_load_duration_seconds",
		Help:    "Time taken to construct the sentiment classifier",
		Buckets: []float64{1, 5, 10, 30, 60, 120},
	})

	m.PipelineErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "All pipeline errors, classified",
	}, []string{"component", "error_kind"})

	m.SourceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "source_errors_total",
		Help: "Source-specific errors",
	}, []string{"error_kind"})

	m.PipelineStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_status",
		Help: "Pipeline status, 1 healthy and 0 unhealthy",
	})

	m.LastSuccessfulRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_last_successful_run_timestamp",
		Help: "Seconds since epoch of the last successful run",
	})

	m.MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_bytes",
		Help: "Process resident memory at end of run",
	})

	m.BuildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Static build identification",
	}, []string{"version", "commit", "build_date"})

	m.registry.MustRegister(
		m.PostsFetched, m.PostsDeduplicated, m.PostsProcessed,
		m.SentimentDistribution, m.SentimentAnalysisDuration,
		m.SentimentBatchSize, m.PipelineDuration, m.ModelLoadDuration,
		m.PipelineErrors, m.SourceErrors, m.PipelineStatus,
		m.LastSuccessfulRun, m.MemoryUsage, m.BuildInfo,
	)

	m.PipelineStatus.Set(1)
	return m
}

func (m *Metrics) RecordPostsFetched(community string, count int) {
	if m == nil {
		return
	}
	m.PostsFetched.WithLabelValues(community).Add(float64(count))
}

func (m *Metrics) RecordDeduplicated() {
	if m == nil {
		return
	}
	m.PostsDeduplicated.Inc()
}

// RecordProcessed counts one successfully written record and its label.
func (m *Metrics) RecordProcessed(label string) {
	if m == nil {
		return
	}
	m.PostsProcessed.Inc()
	m.SentimentDistribution.WithLabelValues(label).Inc()
}

// RecordError counts an error under its component and kind. Source errors
// are additionally counted on source_errors_total.
func (m *Metrics) RecordError(component, errorKind string) {
	if m == nil {
		return
	}
	m.PipelineErrors.WithLabelValues(component, errorKind).Inc()
	if component == "source" {
		m.SourceErrors.WithLabelValues(errorKind).Inc()
	}
}

func (m *Metrics) ObserveSentimentBatch(d time.Duration, size int) {
	if m == nil {
		return
	}
	m.SentimentAnalysisDuration.Observe(d.Seconds())
	m.SentimentBatchSize.Observe(float64(size))
}

func (m *Metrics) ObserveModelLoad(d time.Duration) {
	if m == nil {
		return
	}
	m.ModelLoadDuration.Observe(d.Seconds())
	slog.Debug("[Metrics] Recorded model load time", slog.Duration("elapsed", d))
}

// SetUnhealthy latches pipeline_status to 0 for the rest of the run.
func (m *Metrics) SetUnhealthy() {
	if m == nil {
		return
	}
	m.PipelineStatus.Set(0)
}

// RecordSuccessfulRun marks the pipeline healthy and stamps the run.
func (m *Metrics) RecordSuccessfulRun(d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineStatus.Set(1)
	m.LastSuccessfulRun.Set(float64(time.Now().Unix()))
	m.PipelineDuration.Observe(d.Seconds())
}

func (m *Metrics) ObservePipelineDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordMemoryUsage(bytes uint64) {
	if m == nil {
		return
	}
	m.MemoryUsage.Set(float64(bytes))
}

func (m *Metrics) SetBuildInfo(version, commit, buildDate string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

// Package metrics exposes run metrics in the Prometheus text format.
//
// taxosort is a batch tool, so nothing is served over HTTP: the registry is
// written once at the end of a run to a file that node_exporter's textfile
// collector picks up.
package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"taxosort/internal/classifier"
)

const defaultNamespace = "taxosort"

// Option configures a Recorder.
type Option func(*Recorder)

// WithNamespace overrides the metric name prefix.
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if ns := strings.TrimSpace(namespace); ns != "" {
			r.namespace = ns
		}
	}
}

// WithHistogramBuckets overrides the duration buckets in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// WithRegistry records into registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// WithConstLabels attaches labels to every metric, e.g. the pipeline mode.
func WithConstLabels(labels map[string]string) Option {
	return func(r *Recorder) {
		for k, v := range labels {
			r.constLabels[k] = v
		}
	}
}

// Recorder owns the metrics of one process.
type Recorder struct {
	namespace   string
	buckets     []float64
	constLabels prometheus.Labels
	registry    *prometheus.Registry

	itemsClassified  *prometheus.CounterVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	classifyDuration prometheus.Histogram
	ledgerRows       prometheus.Gauge
	remaining        prometheus.Gauge
	lastRun          *prometheus.GaugeVec
}

// New builds a Recorder on a private registry unless WithRegistry is given.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace:   defaultNamespace,
		buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		constLabels: prometheus.Labels{},
		registry:    prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.initializeMetrics()
	return r
}

func (r *Recorder) initializeMetrics() {
	auto := promauto.With(r.registry)
	r.itemsClassified = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   r.namespace,
		Name:        "items_classified_total",
		Help:        "Images classified and committed to the ledger, by category.",
		ConstLabels: r.constLabels,
	}, []string{"category"})
	r.requests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   r.namespace,
		Name:        "classifier_requests_total",
		Help:        "Classifier HTTP attempts by operation, rank and outcome.",
		ConstLabels: r.constLabels,
	}, []string{"op", "rank", "outcome"})
	r.requestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   r.namespace,
		Name:        "classifier_request_duration_seconds",
		Help:        "Duration of classifier HTTP attempts.",
		Buckets:     r.buckets,
		ConstLabels: r.constLabels,
	}, []string{"op"})
	r.classifyDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   r.namespace,
		Name:        "classify_duration_seconds",
		Help:        "Wall time to classify one image across all queried ranks.",
		Buckets:     r.buckets,
		ConstLabels: r.constLabels,
	})
	r.ledgerRows = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   r.namespace,
		Name:        "ledger_rows",
		Help:        "Processed keys in the ledger.",
		ConstLabels: r.constLabels,
	})
	r.remaining = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   r.namespace,
		Name:        "remaining_items",
		Help:        "Discovered images not yet classified.",
		ConstLabels: r.constLabels,
	})
	r.lastRun = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   r.namespace,
		Name:        "last_run_timestamp_seconds",
		Help:        "Unix time the last run finished, by final status.",
		ConstLabels: r.constLabels,
	}, []string{"status"})
}

// ObserveItem records one committed image.
func (r *Recorder) ObserveItem(category string, elapsed time.Duration) {
	r.itemsClassified.WithLabelValues(category).Inc()
	r.classifyDuration.Observe(elapsed.Seconds())
}

// ObserveRequest records one classifier attempt.
func (r *Recorder) ObserveRequest(op string, rank classifier.Rank, outcome string, elapsed time.Duration) {
	r.requests.WithLabelValues(op, string(rank), outcome).Inc()
	r.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ClassifierObserver adapts the recorder to the classifier client hook.
func (r *Recorder) ClassifierObserver() classifier.Observer {
	return r.ObserveRequest
}

// SetLedgerRows sets the processed key gauge.
func (r *Recorder) SetLedgerRows(n int) {
	r.ledgerRows.Set(float64(n))
}

// SetRemaining sets the outstanding image gauge.
func (r *Recorder) SetRemaining(n int) {
	r.remaining.Set(float64(n))
}

// MarkRunFinished stamps the finish time under status.
func (r *Recorder) MarkRunFinished(status string, at time.Time) {
	r.lastRun.WithLabelValues(status).Set(float64(at.Unix()))
}

// Gatherer exposes the registry, mainly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

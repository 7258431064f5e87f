// Package metrics records pipeline counters in a private Prometheus registry
// and writes them to a node_exporter textfile after each command. Counters
// accumulate across invocations: Flush adds the totals already in the
// textfile before rewriting it. Histograms and gauges describe the latest
// invocation only.
package metrics

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"grantfeed/internal/catalogue"
)

const namespace = "grantfeed"

// Recorder holds the pipeline metrics for one invocation.
type Recorder struct {
	registry *prometheus.Registry
	path     string
	carried  bool

	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	bytesFetched  prometheus.Counter
	recordsLoaded *prometheus.CounterVec
	published     prometheus.Counter
	releases      *prometheus.GaugeVec
	patents       prometheus.Gauge
	images        *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
}

// New builds a Recorder. An empty textfilePath disables Flush.
func New(textfilePath string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		path:     strings.TrimSpace(textfilePath),
		stageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage executions by outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per pipeline stage.",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 1800, 3600},
		}, []string{"stage"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Stage failures by error kind.",
		}, []string{"stage", "kind"}),
		bytesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Archive bytes written to the cache.",
		}),
		recordsLoaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Patent records processed by the loader.",
		}, []string{"result"}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_published_total",
			Help:      "Images posted successfully.",
		}),
		releases: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "releases",
			Help:      "Catalogued releases by status.",
		}, []string{"status"}),
		patents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "patents",
			Help:      "Catalogued patents.",
		}),
		images: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "images",
			Help:      "Catalogued images by status.",
		}, []string{"status"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per stage.",
		}, []string{"stage"}),
	}
}

// ObserveStage records one stage execution. kind is the error taxonomy label
// and is empty on success.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, kind string) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if kind == "" {
		r.stageRuns.WithLabelValues(stage, "success").Inc()
		r.lastSuccess.WithLabelValues(stage).SetToCurrentTime()
		return
	}
	r.stageRuns.WithLabelValues(stage, "failure").Inc()
	r.errors.WithLabelValues(stage, kind).Inc()
}

// AddFetchedBytes counts archive bytes written.
func (r *Recorder) AddFetchedBytes(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.bytesFetched.Add(float64(n))
}

// AddRecords counts loader outcomes.
func (r *Recorder) AddRecords(loaded, existing, skipped int) {
	if r == nil {
		return
	}
	r.recordsLoaded.WithLabelValues("loaded").Add(float64(loaded))
	r.recordsLoaded.WithLabelValues("existing").Add(float64(existing))
	r.recordsLoaded.WithLabelValues("skipped").Add(float64(skipped))
}

// IncPublished counts one posted image.
func (r *Recorder) IncPublished() {
	if r == nil {
		return
	}
	r.published.Inc()
}

// SetCatalogue mirrors catalogue totals into gauges.
func (r *Recorder) SetCatalogue(stats catalogue.Stats) {
	if r == nil {
		return
	}
	for status, count := range stats.Releases {
		r.releases.WithLabelValues(string(status)).Set(float64(count))
	}
	r.patents.Set(float64(stats.Patents))
	r.images.WithLabelValues(string(catalogue.ImagePending)).Set(float64(stats.ImagesPending))
	r.images.WithLabelValues(string(catalogue.ImagePublished)).Set(float64(stats.ImagesPublished))
	r.images.WithLabelValues(string(catalogue.ImageUnavailable)).Set(float64(stats.ImagesUnavailable))
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Enabled reports whether Flush writes anything.
func (r *Recorder) Enabled() bool {
	return r != nil && r.path != ""
}

// Flush writes every metric to the configured textfile atomically. The first
// Flush folds the counter totals of the existing textfile into this Recorder.
// An unreadable textfile is replaced and its error returned.
func (r *Recorder) Flush() error {
	if !r.Enabled() {
		return nil
	}
	var carryErr error
	if !r.carried {
		r.carried = true
		carryErr = r.carryForward()
	}
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return errors.Join(carryErr, fmt.Errorf("write metrics textfile: %w", err))
	}
	return carryErr
}

func (r *Recorder) counters() map[string]func(prometheus.Labels) (prometheus.Counter, error) {
	plain := func(c prometheus.Counter) func(prometheus.Labels) (prometheus.Counter, error) {
		return func(prometheus.Labels) (prometheus.Counter, error) { return c, nil }
	}
	return map[string]func(prometheus.Labels) (prometheus.Counter, error){
		namespace + "_stage_runs_total":       r.stageRuns.GetMetricWith,
		namespace + "_errors_total":           r.errors.GetMetricWith,
		namespace + "_records_total":          r.recordsLoaded.GetMetricWith,
		namespace + "_fetched_bytes_total":    plain(r.bytesFetched),
		namespace + "_images_published_total": plain(r.published),
	}
}

func (r *Recorder) carryForward() error {
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read metrics textfile: %w", err)
	}
	defer f.Close()

	parser := expfmt.NewTextParser(model.UTF8Validation)
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return fmt.Errorf("parse metrics textfile %s: %w", r.path, err)
	}

	for name, lookup := range r.counters() {
		family, ok := families[name]
		if !ok || family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, m := range family.GetMetric() {
			value := m.GetCounter().GetValue()
			if value <= 0 {
				continue
			}
			labels := make(prometheus.Labels, len(m.GetLabel()))
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			counter, err := lookup(labels)
			if err != nil {
				continue
			}
			counter.Add(value)
		}
	}
	return nil
}

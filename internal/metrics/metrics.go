// Package metrics records run statistics with Prometheus collectors. A
// batch run has no scrape endpoint, so the registry is exported to a
// node_exporter textfile at the end of the run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private registry so repeated runs in one process
// (scheduled mode, tests) never collide on registration.
type Recorder struct {
	registry *prometheus.Registry

	items          *prometheus.CounterVec
	stageErrors    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	workingSetSize prometheus.Gauge
	lastRun        *prometheus.GaugeVec
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "illustrator_items_total",
				Help: "Illustrations attempted, by result",
			},
			[]string{"result"}, // result: succeeded|failed
		),
		stageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "illustrator_stage_errors_total",
				Help: "Errors by pipeline stage and error kind",
			},
			[]string{"stage", "kind"}, // stage: resolve|generate|upload
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "illustrator_stage_duration_seconds",
				Help:    "Duration of pipeline stages",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s..128s
			},
			[]string{"stage"},
		),
		workingSetSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "illustrator_working_set_size",
				Help: "Illustrations selected for the last run",
			},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "illustrator_last_run_timestamp_seconds",
				Help: "Unix time the last run finished, by outcome",
			},
			[]string{"outcome"},
		),
	}

	r.registry.MustRegister(
		r.items,
		r.stageErrors,
		r.stageDuration,
		r.workingSetSize,
		r.lastRun,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// IncItem counts one finished illustration by result
func (r *Recorder) IncItem(result string) {
	r.items.WithLabelValues(result).Inc()
}

// IncStageError counts a failure in stage, classified by kind
func (r *Recorder) IncStageError(stage, kind string) {
	r.stageErrors.WithLabelValues(stage, kind).Inc()
}

// ObserveStage records how long a stage took
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetWorkingSet records the number of items selected for the run
func (r *Recorder) SetWorkingSet(n int) {
	r.workingSetSize.Set(float64(n))
}

// MarkRunFinished stamps the finish time of a run under its outcome
func (r *Recorder) MarkRunFinished(outcome string, at time.Time) {
	r.lastRun.WithLabelValues(outcome).Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the text exposition format. The
// write goes through a temp file and rename.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

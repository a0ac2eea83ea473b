// Package metrics exposes import pipeline activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

const namespace = "catalog_import"

// Recorder implements core.Observer.
type Recorder struct {
	registry *prometheus.Registry

	stageTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rows          *prometheus.CounterVec
	issues        *prometheus.CounterVec
	committed     *prometheus.CounterVec
}

var _ core.Observer = (*Recorder)(nil)

// New registers the pipeline collectors plus the Go and process collectors
// on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Pipeline stage executions by outcome.",
		}, []string{"stage", "entity_type", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage", "entity_type"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      "Rows decoded from uploaded files.",
		}, []string{"entity_type"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Validation issues by severity.",
		}, []string{"entity_type", "severity"}),
		committed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_entities_total",
			Help:      "Catalog entities written by confirmed imports.",
		}, []string{"entity_type", "op"}),
	}
	r.registry.MustRegister(
		r.stageTotal,
		r.stageDuration,
		r.rows,
		r.issues,
		r.committed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the collectors live on.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveStage(stage string, t catalog.EntityType, outcome string, d time.Duration) {
	r.stageTotal.WithLabelValues(stage, string(t), outcome).Inc()
	r.stageDuration.WithLabelValues(stage, string(t)).Observe(d.Seconds())
}

func (r *Recorder) ObserveRows(t catalog.EntityType, rows int) {
	r.rows.WithLabelValues(string(t)).Add(float64(rows))
}

func (r *Recorder) ObserveIssues(t catalog.EntityType, issues core.Issues) {
	r.issues.WithLabelValues(string(t), "error").Add(float64(len(issues.Errors)))
	r.issues.WithLabelValues(string(t), "warning").Add(float64(len(issues.Warnings)))
}

func (r *Recorder) ObserveCommit(t catalog.EntityType, created, updated int) {
	r.committed.WithLabelValues(string(t), "created").Add(float64(created))
	r.committed.WithLabelValues(string(t), "updated").Add(float64(updated))
}

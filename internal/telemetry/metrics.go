package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the Prometheus instruments for the analysis pipeline.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal    prometheus.Counter
	AnalysisDuration prometheus.Histogram
	ModuleRuns       *prometheus.CounterVec
	ModuleScore      *prometheus.HistogramVec
	RedFlags         *prometheus.CounterVec
	RedFlagIndex     prometheus.Histogram
	ConfigReloads    *prometheus.CounterVec
}

// New creates a metrics set on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		AnalysesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finhealth_analyses_total",
			Help: "Total number of analysis workflow runs",
		}),

		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finhealth_analysis_duration_seconds",
			Help:    "End-to-end duration of one analysis workflow",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		ModuleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finhealth_module_runs_total",
			Help: "Module runs by module id and result",
		}, []string{"module", "result"}),

		ModuleScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finhealth_module_score",
			Help:    "Distribution of module health scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"module"}),

		RedFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finhealth_red_flags_total",
			Help: "Red flags emitted by severity",
		}, []string{"severity"}),

		RedFlagIndex: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finhealth_red_flag_index",
			Help:    "Distribution of the aggregated red flag index",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finhealth_config_reloads_total",
			Help: "Configuration reload attempts by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.ModuleRuns,
		m.ModuleScore,
		m.RedFlags,
		m.RedFlagIndex,
		m.ConfigReloads,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the raw metric families, used by tests.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

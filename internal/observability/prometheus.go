package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics exports pipeline measurements on a private registry. It
// satisfies core.PipelineRecorder.
type PipelineMetrics struct {
	registry *prometheus.Registry

	traces      prometheus.Counter
	events      *prometheus.CounterVec
	failed      prometheus.Counter
	encodings   *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	produced    *prometheus.GaugeVec
}

// NewPipelineMetrics registers the pipeline collectors on a new registry.
func NewPipelineMetrics() *PipelineMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &PipelineMetrics{
		registry: reg,
		traces: f.NewCounter(prometheus.CounterOpts{
			Name: "rung_traces_built_total",
			Help: "Traces built from event batches",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rung_events_total",
			Help: "Captured events by outcome",
		}, []string{"outcome"}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "rung_traces_failed_total",
			Help: "Event batches that failed to build a trace",
		}),
		encodings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rung_encodings_total",
			Help: "Trace encodings by rung and whether they degraded",
		}, []string{"rung", "degraded"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rung_runs_total",
			Help: "Mining and clustering runs by completeness",
		}, []string{"stage", "complete"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rung_run_duration_seconds",
			Help:    "Mining and clustering run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}, []string{"stage"}),
		produced: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rung_run_output",
			Help: "Motifs or clusters produced by the latest run",
		}, []string{"stage"}),
	}
}

func (p *PipelineMetrics) TracesBuilt(traces, events, dropped, failed int) {
	p.traces.Add(float64(traces))
	p.events.WithLabelValues("accepted").Add(float64(events))
	p.events.WithLabelValues("dropped").Add(float64(dropped))
	p.failed.Add(float64(failed))
}

func (p *PipelineMetrics) Encoded(rung string, degraded bool) {
	d := "false"
	if degraded {
		d = "true"
	}
	p.encodings.WithLabelValues(rung, d).Inc()
}

func (p *PipelineMetrics) RunFinished(stage string, complete bool, elapsed time.Duration, produced int) {
	c := "false"
	if complete {
		c = "true"
	}
	p.runs.WithLabelValues(stage, c).Inc()
	p.runDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	p.produced.WithLabelValues(stage).Set(float64(produced))
}

// Registry exposes the private registry, mostly for tests.
func (p *PipelineMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Replay seeds the trace and event counters and the run output gauges
// from event log metrics, so a freshly started exporter reflects past runs.
func (p *PipelineMetrics) Replay(m *Metrics) {
	p.TracesBuilt(m.TracesBuilt, m.EventsAccepted, m.EventsDropped, m.FailedTraces)
	if m.MiningRuns > 0 {
		p.produced.WithLabelValues("mining").Set(float64(m.MotifsMined))
	}
	if m.ClusteringRuns > 0 {
		p.produced.WithLabelValues("clustering").Set(float64(m.ClustersBuilt))
	}
}

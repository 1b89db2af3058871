// Package metrics exposes daemon instrumentation as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "medvision"

// Generator request kinds
const (
	KindEmbeddings      = "embeddings"
	KindSlice           = "slice"
	KindLabelEfficiency = "label_efficiency"
	KindEvaluation      = "evaluation"
	KindFinetune        = "finetune"
)

// Recorder collects lab and API metrics. A nil *Recorder is a no-op.
type Recorder struct {
	experimentsStarted  *prometheus.CounterVec
	experimentsFinished *prometheus.CounterVec
	epochsGenerated     *prometheus.CounterVec
	rejectedTransitions *prometheus.CounterVec
	generatorRequests   *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	runDuration         *prometheus.HistogramVec
	activeRuns          prometheus.Gauge
}

// NewRecorder registers the collectors with reg. A nil reg creates unregistered
// collectors, which is what tests and embedded uses want.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		experimentsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lab",
			Name:      "experiments_started_total",
			Help:      "Experiment runs started or resumed, by pretraining method",
		}, []string{"method"}),
		experimentsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lab",
			Name:      "experiments_finished_total",
			Help:      "Experiment runs that reached a terminal or paused status",
		}, []string{"method", "status"}),
		epochsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lab",
			Name:      "epochs_generated_total",
			Help:      "Synthetic epochs appended to experiment histories",
		}, []string{"method"}),
		rejectedTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lab",
			Name:      "rejected_transitions_total",
			Help:      "Lifecycle operations rejected because of the experiment status",
		}, []string{"operation"}),
		generatorRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synth",
			Name:      "requests_total",
			Help:      "Generator requests by kind and result",
		}, []string{"kind", "result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status code class",
		}, []string{"route", "code"}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lab",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one run loop, start or resume to stop",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10), // 0.5ms to ~2m
		}, []string{"method"}),
		activeRuns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lab",
			Name:      "active_runs",
			Help:      "Run loops currently generating epochs",
		}),
	}
}

// RunStarted records the start or resumption of a run loop.
func (r *Recorder) RunStarted(method string) {
	if r == nil {
		return
	}
	r.experimentsStarted.WithLabelValues(method).Inc()
	r.activeRuns.Inc()
}

// RunStopped records the end of a run loop with the status it left the experiment in.
func (r *Recorder) RunStopped(method, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.experimentsFinished.WithLabelValues(method, status).Inc()
	r.runDuration.WithLabelValues(method).Observe(elapsed.Seconds())
	r.activeRuns.Dec()
}

func (r *Recorder) EpochGenerated(method string) {
	if r == nil {
		return
	}
	r.epochsGenerated.WithLabelValues(method).Inc()
}

func (r *Recorder) TransitionRejected(operation string) {
	if r == nil {
		return
	}
	r.rejectedTransitions.WithLabelValues(operation).Inc()
}

// GeneratorRequest counts one generator call; err selects the result label.
func (r *Recorder) GeneratorRequest(kind string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.generatorRequests.WithLabelValues(kind, result).Inc()
}

// HTTPRequest counts one API request. code is collapsed to its class (2xx, 4xx...).
func (r *Recorder) HTTPRequest(route string, code int) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, codeClass(code)).Inc()
}

func codeClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

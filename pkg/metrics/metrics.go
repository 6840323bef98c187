package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Text generation metrics
	LLMCalls     *prometheus.CounterVec
	LLMRetries   prometheus.Counter
	LLMFallbacks *prometheus.CounterVec
	LLMLatency   prometheus.Histogram

	// Intake metrics
	SessionsStarted prometheus.Counter
	SessionsClosed  *prometheus.CounterVec
	TriageResults   *prometheus.CounterVec

	// Matching metrics
	MatchRequests *prometheus.CounterVec
	CascadeSteps  *prometheus.CounterVec
	RosterSize    prometheus.Gauge

	// Note quality metrics
	Validations  *prometheus.CounterVec
	OverallScore prometheus.Histogram
	EditsLogged  *prometheus.CounterVec
	EditDistance prometheus.Histogram

	// Background workers
	EventsConsumed *prometheus.CounterVec
	SessionsPruned prometheus.Counter
}

// NewMetrics creates and registers all application metrics on reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	ratioBuckets := []float64{.1, .2, .3, .4, .5, .6, .7, .8, .9, 1}

	return &Metrics{
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Text generation calls by outcome",
		}, []string{"outcome"}),
		LLMRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Retries issued after rate limiting",
		}),
		LLMFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "fallbacks_total",
			Help:      "Deterministic fallbacks used instead of generated output",
		}, []string{"component"}),
		LLMLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Latency of text generation calls including retries",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "sessions_started_total",
			Help:      "Intake sessions created",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "sessions_closed_total",
			Help:      "Intake sessions reaching a terminal stage",
		}, []string{"stage"}),
		TriageResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "triage_results_total",
			Help:      "Triage results by priority band",
		}, []string{"priority"}),
		MatchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "requests_total",
			Help:      "Doctor match requests by outcome",
		}, []string{"outcome"}),
		CascadeSteps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "cascade_steps_total",
			Help:      "Fallback specialties tried after an empty match",
		}, []string{"step"}),
		RosterSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "roster_size",
			Help:      "Doctors in the currently loaded roster",
		}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "results_total",
			Help:      "Note validations by verdict",
		}, []string{"valid"}),
		OverallScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "overall_score",
			Help:      "Distribution of overall note scores",
			Buckets:   ratioBuckets,
		}),
		EditsLogged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reflexion",
			Name:      "edits_total",
			Help:      "Clinician edits logged by severity",
		}, []string{"severity"}),
		EditDistance: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reflexion",
			Name:      "edit_distance",
			Help:      "Distribution of edit distances between drafts and final notes",
			Buckets:   ratioBuckets,
		}),
		EventsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "consumed_total",
			Help:      "Domain events consumed from the broker by type",
		}, []string{"type"}),
		SessionsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "sessions_pruned_total",
			Help:      "Idle intake sessions removed by the retention worker",
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "test")
}

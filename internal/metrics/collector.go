package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/dialogmesh/core"
)

// TurnStateKey is the turn state key the collector registers under.
const TurnStateKey = "dialogmesh.metrics"

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dialogmesh"

// Collector records dialog turn, skill call and token flow metrics.
type Collector struct {
	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	skillCalls    *prometheus.CounterVec
	skillDuration *prometheus.HistogramVec
	tokenFlows    *prometheus.CounterVec
	promptResults *prometheus.CounterVec
}

// NewCollector registers the dialog metrics on reg. A nil reg uses the
// default Prometheus registerer. Registering twice on the same registerer
// panics, as with any promauto metric.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Collector{
		turnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of dialog turns by resulting status",
			},
			[]string{"status"},
		),
		turnDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Dialog turn duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		skillCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skill_calls_total",
				Help:      "Total number of activities posted to skills",
			},
			[]string{"skill", "status"},
		),
		skillDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "skill_call_duration_seconds",
				Help:      "Skill call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"skill"},
		),
		tokenFlows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_flows_total",
				Help:      "Total number of OAuth and token exchange outcomes",
			},
			[]string{"flow", "outcome"},
		),
		promptResults: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prompt_results_total",
				Help:      "Total number of recognized prompt inputs by validity",
			},
			[]string{"prompt", "valid"},
		),
	}
}

// Register stores c in turn state.
func (c *Collector) Register(tc *core.TurnContext) {
	if c == nil {
		return
	}
	tc.TurnState().Set(TurnStateKey, c)
}

// FromTurn returns the collector registered for the turn, or nil.
func FromTurn(tc *core.TurnContext) *Collector {
	if tc == nil {
		return nil
	}
	c, _ := core.TurnValue[*Collector](tc.TurnState(), TurnStateKey)
	return c
}

// RecordTurn records one dialog turn.
func (c *Collector) RecordTurn(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(status).Inc()
	c.turnDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordSkillCall records one post to a skill. status is the HTTP status or
// "error" for transport failures.
func (c *Collector) RecordSkillCall(skill, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.skillCalls.WithLabelValues(skill, status).Inc()
	c.skillDuration.WithLabelValues(skill).Observe(d.Seconds())
}

// RecordTokenFlow records an OAuth outcome such as ("oauth", "token") or
// ("sso", "fallback").
func (c *Collector) RecordTokenFlow(flow, outcome string) {
	if c == nil {
		return
	}
	c.tokenFlows.WithLabelValues(flow, outcome).Inc()
}

// RecordPrompt records a recognized prompt input.
func (c *Collector) RecordPrompt(prompt string, valid bool) {
	if c == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	c.promptResults.WithLabelValues(prompt, v).Inc()
}

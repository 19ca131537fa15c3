package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GateDecisions counts enforcement gate outcomes by decision
var GateDecisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskcore_gate_decisions_total",
		Help: "Total number of enforcement gate decisions by outcome",
	},
	[]string{"decision"},
)

// GateLatency records latency distribution for gate evaluations
var GateLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "riskcore_gate_evaluation_latency_seconds",
		Help:    "Latency in seconds to evaluate a proposed trading action",
		Buckets: prometheus.DefBuckets,
	},
)

// LimitBreaches counts detected limit breaches by limit type
var LimitBreaches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "riskcore_limit_breaches_total",
		Help: "Total number of risk limit breaches by limit type",
	},
	[]string{"limit_type"},
)

// Kill switch metrics
var (
	KillSwitchActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_killswitch_activations_total",
			Help: "Total number of kill switch activations by scope",
		},
		[]string{"scope"},
	)

	KillSwitchFanout = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskcore_killswitch_fanout_total",
			Help: "Stop/cancel fan-out attempts by target and result",
		},
		[]string{"target", "result"},
	)
)

func init() {
	prometheus.MustRegister(GateDecisions, GateLatency, LimitBreaches)
	prometheus.MustRegister(KillSwitchActivations, KillSwitchFanout)
}

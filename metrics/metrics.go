// Package metrics exposes Prometheus instrumentation for the
// transformation pipeline: phase durations, fan-out failures, debate
// rounds, and Model Router fallbacks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PhaseDuration records how long each pipeline phase takes, labeled by
// phase name and terminal status.
var PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "repotransform_phase_duration_seconds",
	Help:    "Duration of a pipeline phase in seconds.",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
}, []string{"phase", "status"})

// FanoutFailuresTotal counts per-item failures captured by a settle-all
// fan-out (reviewer audits, reviewer change reviews), labeled by the
// phase that ran the fan-out.
var FanoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "repotransform_fanout_failures_total",
	Help: "Number of individual fan-out task failures.",
}, []string{"phase"})

// ConsensusRoundsTotal counts debate rounds run, labeled by whether the
// round converged.
var ConsensusRoundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "repotransform_consensus_rounds_total",
	Help: "Number of consensus debate rounds run.",
}, []string{"converged"})

// RouterFallbacksTotal counts Model Router backend fallbacks, labeled by
// the role whose primary backend failed and the backend it fell back to.
var RouterFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "repotransform_router_fallbacks_total",
	Help: "Number of times the model router fell back to a non-primary backend.",
}, []string{"role", "backend"})

// JobsTotal counts completed pipeline runs, labeled by terminal status.
var JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "repotransform_jobs_total",
	Help: "Number of pipeline jobs run to completion.",
}, []string{"status"})

// RecordPhase observes a phase's wall-clock duration.
func RecordPhase(phase, status string, d time.Duration) {
	PhaseDuration.WithLabelValues(phase, status).Observe(d.Seconds())
}

// RecordFanoutFailure increments the fan-out failure counter for phase.
func RecordFanoutFailure(phase string) {
	FanoutFailuresTotal.WithLabelValues(phase).Inc()
}

// RecordConsensusRound increments the debate round counter.
func RecordConsensusRound(converged bool) {
	ConsensusRoundsTotal.WithLabelValues(boolLabel(converged)).Inc()
}

// RecordRouterFallback increments the router fallback counter.
func RecordRouterFallback(role, backend string) {
	RouterFallbacksTotal.WithLabelValues(role, backend).Inc()
}

// RecordJob increments the terminal job-status counter.
func RecordJob(status string) {
	JobsTotal.WithLabelValues(status).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

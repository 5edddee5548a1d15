// Package stats accumulates per-transaction latency and outcome
// counters for the commit coordinator, exported via Prometheus.
// Grounded on FC/network/participant/stats.go's per-node Stat/Info
// accumulator (latency, abort/success, local-vs-distributed split),
// generalized from a hand-rolled percentile sketch logged to stdout
// into prometheus/client_golang histograms and counters, per SPEC_FULL
// §1.1's ambient observability stack.
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome classifies how a commit attempt ended, mirroring the
// IsAbort/ACP split FC/network/participant/stats.go tracked manually.
type Outcome string

const (
	OutcomeCommitted     Outcome = "committed"
	OutcomeAborted       Outcome = "aborted"
	OutcomePrepareFailed Outcome = "prepare_failed"
	OutcomeWentOffline   Outcome = "went_offline"
)

// Recorder is the per-node commit statistics sink.
type Recorder struct {
	latency  *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	gather   *prometheus.HistogramVec
}

// NewRecorder builds a Recorder registered against reg. Passing a
// fresh prometheus.NewRegistry() per node keeps tests isolated from
// the global default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mtm",
			Subsystem: "commit",
			Name:      "latency_seconds",
			Help:      "End-to-end commit coordinator latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mtm",
			Subsystem: "commit",
			Name:      "outcomes_total",
			Help:      "Count of commit attempts by outcome.",
		}, []string{"outcome"}),
		gather: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mtm",
			Subsystem: "commit",
			Name:      "gather_seconds",
			Help:      "Time spent waiting on DMQ gather loops, by phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	reg.MustRegister(r.latency, r.outcomes, r.gather)
	return r
}

// Observe records one completed commit attempt.
func (r *Recorder) Observe(outcome Outcome, started time.Time) {
	elapsed := time.Since(started).Seconds()
	r.latency.WithLabelValues(string(outcome)).Observe(elapsed)
	r.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveGather records how long a single gather phase (prepare,
// precommit, commit) took.
func (r *Recorder) ObserveGather(phase string, started time.Time) {
	r.gather.WithLabelValues(phase).Observe(time.Since(started).Seconds())
}

// Package metrics exposes prometheus collectors for the sync core.
//
// A nil *Recorder is valid and records nothing, so services take one
// unconditionally and tests can pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch outcomes.
const (
	FetchRemote   = "remote"   // groups loaded from the backend
	FetchEmpty    = "empty"    // backend reachable, no groups
	FetchFallback = "fallback" // backend unavailable, fixed dataset published
	FetchError    = "error"    // backend failed, error state published
	FetchSkipped  = "skipped"  // nobody signed in, or superseded by a newer fetch
)

// Mutation outcomes.
const (
	MutationRemote   = "remote"
	MutationFallback = "fallback"
	MutationError    = "error"
)

// Recorder holds the collectors.
type Recorder struct {
	fetches       *prometheus.CounterVec
	mutations     *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Name:      "fetch_total",
			Help:      "Study group fetches by outcome.",
		}, []string{"outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studysync",
			Name:      "mutation_total",
			Help:      "Study group mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studysync",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching and joining study groups.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{r.fetches, r.mutations, r.fetchDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Fetch records one finished fetch.
func (r *Recorder) Fetch(outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(outcome).Inc()
	r.fetchDuration.Observe(took.Seconds())
}

// Mutation records one finished mutation.
func (r *Recorder) Mutation(op, outcome string) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(op, outcome).Inc()
}

// Package metrics defines the prometheus instrumentation for the
// moderation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the pipeline's counters. One instance per process,
// registered against the registry exposed on the ops surface.
type Pipeline struct {
	// MessagesProcessed counts terminal outcomes by kind
	// (deleted, flagged, approved, duplicate).
	MessagesProcessed *prometheus.CounterVec

	// FallbackErrors counts failed fallback verdict requests.
	FallbackErrors prometheus.Counter

	// FlagsSubmitted counts explicit flag submissions by result.
	FlagsSubmitted *prometheus.CounterVec

	// Polls counts live-fetch cycles by result (ok, error, skipped).
	Polls *prometheus.CounterVec
}

// New creates and registers the pipeline metrics.
func New(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		MessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderationd_messages_processed_total",
				Help: "Total messages processed by terminal outcome",
			},
			[]string{"outcome"},
		),
		FallbackErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "moderationd_fallback_errors_total",
				Help: "Total failed fallback moderation requests",
			},
		),
		FlagsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderationd_flags_submitted_total",
				Help: "Total explicit flag submissions by result",
			},
			[]string{"result"},
		),
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderationd_polls_total",
				Help: "Total live message poll cycles by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(p.MessagesProcessed, p.FallbackErrors, p.FlagsSubmitted, p.Polls)
	return p
}

// Package metrics provides Prometheus metrics for the content-acquisition core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration observes wall-clock time spent in each pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acquisition_stage_duration_seconds",
		Help:    "Wall-clock duration of a pipeline stage, by stage and outcome.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
	}, []string{"stage", "outcome"})

	// PipelineOutcomeTotal counts terminal pipeline outcomes.
	PipelineOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisition_pipeline_outcome_total",
		Help: "Total number of pipeline runs reaching a terminal status, by status.",
	}, []string{"status"})

	// StateTransitionTotal counts download state machine transitions.
	StateTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisition_download_transition_total",
		Help: "Total number of download state transitions, by from and to state.",
	}, []string{"from", "to"})

	// InvalidTransitionTotal counts rejected state machine transitions.
	InvalidTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisition_download_invalid_transition_total",
		Help: "Total number of rejected download state transitions, by from state.",
	}, []string{"from"})

	// QueueDepth tracks the current number of non-terminal queue entries, by account.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acquisition_queue_depth",
		Help: "Current number of non-terminal acquisition queue entries, by account.",
	}, []string{"account"})

	// RSSItemsTotal counts ingested RSS feed items by outcome.
	RSSItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisition_rss_items_total",
		Help: "Total number of RSS feed items ingested, by outcome (matched/rejected/duplicate).",
	}, []string{"outcome"})

	// FeedCheckTotal counts scheduled feed check attempts by result.
	FeedCheckTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisition_feed_check_total",
		Help: "Total number of scheduled RSS feed checks, by result (success/failure).",
	}, []string{"result"})

	// CircuitBreakerStateChanges counts circuit breaker state transitions, by sibling and new state.
	CircuitBreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acquisition_circuit_breaker_state_total",
		Help: "Total number of circuit breaker state transitions, by sibling and new state.",
	}, []string{"sibling", "state"})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailsProcessed counts evaluation passes by trigger source
	EmailsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailpilot_emails_processed_total",
		Help: "Number of rule evaluation passes over incoming emails.",
	}, []string{"source"})

	// RulesMatched counts rules whose conditions matched an email
	RulesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailpilot_rules_matched_total",
		Help: "Number of rule matches across all evaluation passes.",
	})

	// SyncActionsExecuted counts sync actions applied through the provider
	SyncActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailpilot_sync_actions_executed_total",
		Help: "Number of sync actions executed, by action type.",
	}, []string{"type"})

	// AsyncActionsQueued counts actions durably enqueued for the worker
	AsyncActionsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailpilot_async_actions_queued_total",
		Help: "Number of async actions enqueued, by action type.",
	}, []string{"type"})

	// RateLimitRejections counts window breaches by cohort (pass, forward, reply)
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailpilot_rate_limit_rejections_total",
		Help: "Number of rate-limited executions or action cohorts.",
	}, []string{"cohort"})

	// QueuedActionResults counts worker outcomes for queued actions
	QueuedActionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailpilot_queued_action_results_total",
		Help: "Worker outcomes for queued actions, by result.",
	}, []string{"result"})
)

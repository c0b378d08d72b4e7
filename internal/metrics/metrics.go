// Package metrics exposes Prometheus instrumentation for routing decisions,
// queue depth, and verification outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoutingDecisions counts routing outcomes by route and document type.
	RoutingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_routing_decisions_total",
		Help: "Routing decisions by route and document type.",
	}, []string{"route", "document_type"})

	// QueueTasks tracks the number of QC tasks by lifecycle status.
	QueueTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "docflow_queue_tasks",
		Help: "QC tasks currently known to the queue, by status.",
	}, []string{"status"})

	// Verifications counts verification submissions by outcome.
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_verifications_total",
		Help: "Verification submissions by outcome.",
	}, []string{"outcome"})

	// StageFailures counts non-fatal pipeline stage failures by stage.
	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_stage_failures_total",
		Help: "Pipeline stage failures recorded as degraded statuses.",
	}, []string{"stage"})
)

// Package telemetry exports Prometheus metrics for the workflow engine.
// Counters are registered once at init via promauto; the /metrics endpoint
// is mounted by the server.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InstancesStarted counts workflow instances started, by entity type.
	InstancesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusflow_instances_started_total",
		Help: "Total workflow instances started",
	}, []string{"entity_type"})

	// InstancesCompleted counts instances reaching a terminal status.
	InstancesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusflow_instances_completed_total",
		Help: "Total workflow instances completed, by terminal status",
	}, []string{"status"})

	// ApprovalsDecided counts approve/reject decisions recorded.
	ApprovalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusflow_approvals_decided_total",
		Help: "Total approval decisions recorded",
	}, []string{"decision"})

	// ApprovalsEscalated counts overdue approvals escalated by the sweep.
	ApprovalsEscalated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexusflow_approvals_escalated_total",
		Help: "Total overdue approvals escalated",
	})

	// InstancesStalled counts instances stalled on unresolvable assignees or
	// failed actions.
	InstancesStalled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nexusflow_instances_stalled_total",
		Help: "Total instances that entered the stalled status",
	})

	// SweepDuration observes the wall time of each escalation sweep pass.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nexusflow_escalation_sweep_duration_seconds",
		Help:    "Duration of escalation sweep passes",
		Buckets: prometheus.DefBuckets,
	})

	// EventsPublished counts lifecycle events emitted on the event bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nexusflow_events_published_total",
		Help: "Total lifecycle events published",
	}, []string{"event_type"})
)

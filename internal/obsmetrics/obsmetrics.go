// Package obsmetrics exposes the supervisor's prometheus metrics, named
// autoscaled_<noun>_<unit>_total|seconds, registered via promauto the way
// the rest of the corpus registers its counters and gauges.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScalingDecisionsTotal counts every non-hold decision the pipeline
	// emits, labeled by queue and action (scale_up/scale_down).
	ScalingDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaled_scaling_decisions_total",
		Help: "Total number of scaling decisions applied, by queue and action.",
	}, []string{"connection", "queue", "action"})

	// SlaTransitionsTotal counts SlaBreached/SlaRecovered events.
	SlaTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaled_sla_transitions_total",
		Help: "Total number of SLA state transitions, by queue and transition kind.",
	}, []string{"connection", "queue", "transition"})

	// WorkerCount reports the live worker count per queue after each
	// reconcile pass.
	WorkerCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "autoscaled_worker_count",
		Help: "Current running worker count per queue.",
	}, []string{"connection", "queue"})

	// TickDurationSeconds measures one full supervisor tick, start to
	// snapshot publish.
	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autoscaled_tick_duration_seconds",
		Help:    "Duration of one supervisor tick.",
		Buckets: prometheus.DefBuckets,
	})

	// MetricsFetchFailuresTotal counts MetricsSource.Fetch errors, by
	// queue.
	MetricsFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaled_metrics_fetch_failures_total",
		Help: "Total number of metrics source fetch failures, by queue.",
	}, []string{"connection", "queue"})

	// SpawnFailuresTotal counts ProcessLauncher.Spawn errors, by queue.
	SpawnFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "autoscaled_spawn_failures_total",
		Help: "Total number of worker spawn failures, by queue.",
	}, []string{"connection", "queue"})
)

// Package domain holds the value types shared across the scaling engine,
// policy pipeline, worker pool, and supervisor: queue configuration and
// metrics snapshots, scaling decisions, and worker process identity.
package domain

import "time"

// QueueConfiguration is immutable per queue for the lifetime of a process;
// nothing mutates it in place. The queue list is read once at startup and
// there is no configuration reload (SIGHUP is not handled).
type QueueConfiguration struct {
	Connection string
	Queue      string

	SLASeconds  float64
	MinWorkers  int
	MaxWorkers  int

	Strategy string

	CooldownUpSeconds   float64
	CooldownDownSeconds float64
	HysteresisDelta     int
	HysteresisFraction  float64
	MaxStepUp           int
	MaxStepDown         int

	// DrainHorizonSeconds, PredictLookaheadSeconds and TrendSamples override
	// strategy_defaults for this queue when non-zero.
	DrainHorizonSeconds     float64
	PredictLookaheadSeconds float64
	TrendSamples            int

	// WarnFraction is the fraction of SLASeconds at which a queue enters the
	// "warning" SlaStatus (e.g. 0.8). RecoveryFactor is the fraction at which
	// a "breached" queue returns to "ok" (e.g. 0.8, applied to SLASeconds).
	WarnFraction   float64
	RecoveryFactor float64
}

// Key identifies a queue by (connection, queue) pair, the composite key used
// throughout the pool, policy state, and SLA state maps.
type Key struct {
	Connection string
	Queue      string
}

func (c QueueConfiguration) Key() Key {
	return Key{Connection: c.Connection, Queue: c.Queue}
}

// QueueMetrics is a snapshot of queue state at a point in time, as returned
// by a MetricsSource. Zero values are valid inputs to calculators; the
// calculators are responsible for guarding against division by zero or
// non-finite results.
type QueueMetrics struct {
	ObservedAt time.Time

	Pending             int
	Reserved            int
	ThroughputPerMinute float64
	OldestJobAge        float64
	ArrivalRatePerMinute float64
	AvgJobDurationSeconds float64
}

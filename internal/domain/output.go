package domain

import "time"

// QueueSnapshot is one queue's row in an OutputData snapshot.
type QueueSnapshot struct {
	Connection string
	Queue      string

	Pending             int
	ThroughputPerMinute float64
	OldestJobAge        float64
	SlaStatus           SlaStatus

	ActiveWorkers int
	TargetWorkers int
}

// WorkerSnapshot is one worker's row in an OutputData snapshot.
type WorkerSnapshot struct {
	Pid        int
	Connection string
	Queue      string
	Running    bool
	UptimeSecs float64
}

// JobActivityLine is one line of worker stdout, attributed to the worker
// that produced it and timestamped at ingestion.
type JobActivityLine struct {
	At         time.Time
	Pid        int
	Connection string
	Queue      string
	Line       string
}

// ScalingLogEntry is a recent scaling decision, kept for display — the
// authoritative record is the event stream, this is a bounded recent-N
// view for the dashboard.
type ScalingLogEntry struct {
	At         time.Time
	Connection string
	Queue      string
	Action     Action
	From       int
	To         int
	Reason     string
}

// OutputData is an immutable snapshot of supervisor state, rebuilt once
// per tick and published to any renderer over a single-producer channel.
// Renderers and event subscribers never read the WorkerPool directly —
// this snapshot is the only thing they ever see.
type OutputData struct {
	GeneratedAt time.Time

	Queues  []QueueSnapshot
	Workers []WorkerSnapshot

	RecentJobActivity []JobActivityLine
	RecentScalingLog  []ScalingLogEntry
}

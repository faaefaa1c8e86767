package metricssource

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// throughputTracker derives arrival rate and completion throughput from
// successive pending-count observations, since neither Redis list lengths
// nor Kafka consumer-group lag expose a rate directly. It keeps the last
// observation per queue key and reports per-minute deltas.
type throughputTracker struct {
	mu   sync.Mutex
	last map[domain.Key]throughputSample
}

type throughputSample struct {
	at      time.Time
	pending int
}

func newThroughputTracker() *throughputTracker {
	return &throughputTracker{last: make(map[domain.Key]throughputSample)}
}

// observe records a new pending-count sample and returns the estimated
// arrival rate per minute, average job duration in seconds, and completion
// throughput per minute. The average job duration is derived only from a
// fall in pending since the previous sample; on any other tick it is 0, and
// no earlier value is carried over.
//
// A rise in pending is attributed entirely to arrivals; a fall is
// attributed entirely to completions. This likely understates both when
// arrivals and completions happen concurrently, but without per-job
// completion timestamps it is the best estimate available from backlog
// depth alone — the same approximation the calculators are built to
// tolerate (see internal/calc).
func (t *throughputTracker) observe(key domain.Key, now time.Time, pending int) (arrivalRatePerMinute, avgJobDurationSeconds, throughputPerMinute float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.last[key]
	t.last[key] = throughputSample{at: now, pending: pending}
	if !ok {
		return 0, 0, 0
	}

	elapsedMinutes := now.Sub(prev.at).Minutes()
	if elapsedMinutes <= 0 {
		return 0, 0, 0
	}

	delta := pending - prev.pending
	switch {
	case delta > 0:
		arrivalRatePerMinute = float64(delta) / elapsedMinutes
	case delta < 0:
		throughputPerMinute = float64(-delta) / elapsedMinutes
	}
	if throughputPerMinute > 0 {
		avgJobDurationSeconds = 60 / throughputPerMinute
	}
	return arrivalRatePerMinute, avgJobDurationSeconds, throughputPerMinute
}

// extractPushedAt parses the "pushedAt" unix-seconds field out of a queue
// payload, matching the convention go-coffee's producers use for message
// envelopes.
func extractPushedAt(raw string) (time.Time, bool) {
	var envelope struct {
		PushedAt int64 `json:"pushedAt"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil || envelope.PushedAt == 0 {
		return time.Time{}, false
	}
	return time.Unix(envelope.PushedAt, 0), true
}

package metricssource

import (
	"strconv"
	"testing"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestThroughputTrackerFirstObservationIsZero(t *testing.T) {
	tr := newThroughputTracker()
	key := domain.Key{Connection: "redis", Queue: "default"}

	arrival, avgDuration, throughput := tr.observe(key, time.Now(), 10)
	assert.Zero(t, arrival)
	assert.Zero(t, avgDuration)
	assert.Zero(t, throughput)
}

func TestThroughputTrackerRisingBacklogIsArrivalRate(t *testing.T) {
	tr := newThroughputTracker()
	key := domain.Key{Connection: "redis", Queue: "default"}
	start := time.Now()

	tr.observe(key, start, 10)
	arrival, _, throughput := tr.observe(key, start.Add(1*time.Minute), 70)

	assert.InDelta(t, 60, arrival, 0.001)
	assert.Zero(t, throughput)
}

func TestThroughputTrackerFallingBacklogIsThroughput(t *testing.T) {
	tr := newThroughputTracker()
	key := domain.Key{Connection: "redis", Queue: "default"}
	start := time.Now()

	tr.observe(key, start, 100)
	arrival, avgDuration, throughput := tr.observe(key, start.Add(2*time.Minute), 40)

	assert.Zero(t, arrival)
	assert.InDelta(t, 30, throughput, 0.001)
	assert.InDelta(t, 2, avgDuration, 0.001)
}

func TestExtractPushedAtIgnoresMalformedPayload(t *testing.T) {
	_, ok := extractPushedAt("not json")
	assert.False(t, ok)

	_, ok = extractPushedAt(`{"other":"field"}`)
	assert.False(t, ok)
}

func TestExtractPushedAtParsesEnvelope(t *testing.T) {
	ts := time.Now().Add(-30 * time.Second).Unix()
	got, ok := extractPushedAt(`{"pushedAt":` + strconv.FormatInt(ts, 10) + `}`)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Unix(ts, 0), got, time.Second)
}

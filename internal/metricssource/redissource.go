package metricssource

import (
	"context"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisSource derives QueueMetrics from a Redis-backed queue's list
// length and a reserved/processing set, matching how Laravel-style queue
// backends (and the Horizon dashboard) expose backlog depth: pending is
// LLEN on the queue key, reserved is ZCARD on the delayed/reserved set.
type RedisSource struct {
	client     *redis.Client
	throughput *throughputTracker
}

// NewRedisSource builds a RedisSource around an already-connected
// *redis.Client. addr/password/db selection is the caller's job (see
// internal/config), mirroring the connection-options-by-value pattern
// used elsewhere for external clients.
func NewRedisSource(client *redis.Client) *RedisSource {
	return &RedisSource{client: client, throughput: newThroughputTracker()}
}

func (s *RedisSource) Fetch(ctx context.Context, cfg domain.QueueConfiguration) (domain.QueueMetrics, error) {
	queueKey := "queues:" + cfg.Queue
	reservedKey := "queues:" + cfg.Queue + ":reserved"

	pending, err := s.client.LLen(ctx, queueKey).Result()
	if err != nil {
		return domain.QueueMetrics{}, &UnavailableError{Connection: cfg.Connection, Queue: cfg.Queue, Err: err}
	}

	reserved, err := s.client.ZCard(ctx, reservedKey).Result()
	if err != nil && err != redis.Nil {
		return domain.QueueMetrics{}, &UnavailableError{Connection: cfg.Connection, Queue: cfg.Queue, Err: err}
	}

	oldestAge, err := s.oldestJobAge(ctx, queueKey)
	if err != nil {
		return domain.QueueMetrics{}, &UnavailableError{Connection: cfg.Connection, Queue: cfg.Queue, Err: err}
	}

	now := time.Now()
	arrivalRate, avgDuration, throughput := s.throughput.observe(cfg.Key(), now, int(pending))

	return domain.QueueMetrics{
		ObservedAt:            now,
		Pending:               int(pending),
		Reserved:              int(reserved),
		ThroughputPerMinute:   throughput,
		OldestJobAge:          oldestAge,
		ArrivalRatePerMinute:  arrivalRate,
		AvgJobDurationSeconds: avgDuration,
	}, nil
}

// oldestJobAge inspects the head of the list for a payload timestamp.
// Queue payloads are expected to carry a Unix "pushedAt" field; jobs that
// don't parse are treated as age zero rather than failing the whole
// fetch — a single malformed payload must not block autoscaling.
func (s *RedisSource) oldestJobAge(ctx context.Context, queueKey string) (float64, error) {
	items, err := s.client.LRange(ctx, queueKey, 0, 0).Result()
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}
	pushedAt, ok := extractPushedAt(items[0])
	if !ok {
		return 0, nil
	}
	age := time.Since(pushedAt).Seconds()
	if age < 0 {
		return 0, nil
	}
	return age, nil
}

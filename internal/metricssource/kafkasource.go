package metricssource

import (
	"context"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/segmentio/kafka-go"
)

// KafkaSource derives QueueMetrics from a consumer group's reported lag,
// treating lag as the "pending" backlog depth — the same interpretation
// a Kafka-based queue-worker autoscaler (e.g. KEDA's kafka scaler) uses.
type KafkaSource struct {
	readerFor  func(cfg domain.QueueConfiguration) *kafka.Reader
	readers    map[domain.Key]*kafka.Reader
	throughput *throughputTracker
}

// NewKafkaSource builds a KafkaSource. readerFor lazily constructs a
// *kafka.Reader (bound to the queue's topic and consumer group) the first
// time a given queue is fetched; the reader is cached and reused on
// subsequent ticks so Stats() reflects an established consumer group
// rather than reconnecting every tick.
func NewKafkaSource(readerFor func(cfg domain.QueueConfiguration) *kafka.Reader) *KafkaSource {
	return &KafkaSource{
		readerFor:  readerFor,
		readers:    make(map[domain.Key]*kafka.Reader),
		throughput: newThroughputTracker(),
	}
}

func (s *KafkaSource) Fetch(ctx context.Context, cfg domain.QueueConfiguration) (domain.QueueMetrics, error) {
	key := cfg.Key()
	reader, ok := s.readers[key]
	if !ok {
		reader = s.readerFor(cfg)
		s.readers[key] = reader
	}

	stats := reader.Stats()
	pending := int(stats.Lag)
	if pending < 0 {
		pending = 0
	}

	now := time.Now()
	arrivalRate, avgDuration, throughput := s.throughput.observe(key, now, pending)

	return domain.QueueMetrics{
		ObservedAt:            now,
		Pending:               pending,
		Reserved:              0,
		ThroughputPerMinute:   throughput,
		OldestJobAge:          0,
		ArrivalRatePerMinute:  arrivalRate,
		AvgJobDurationSeconds: avgDuration,
	}, nil
}

// Close releases every reader this source has opened.
func (s *KafkaSource) Close() error {
	var firstErr error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

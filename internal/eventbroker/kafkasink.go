// Package eventbroker publishes autoscaling activity to Kafka, giving
// downstream consumers (dashboards, audit logs, alerting) a durable feed
// of every scaling decision and SLA transition.
package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/autoscaled/autoscaled/internal/events"
	"go.uber.org/zap"
)

// KafkaSink implements events.Sink on top of a Sarama async producer,
// mirroring the fire-and-forget publish pattern used elsewhere in the
// stack for high-volume event streams.
type KafkaSink struct {
	producer sarama.AsyncProducer
	topic    string
	log      *zap.Logger
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewKafkaSink builds a KafkaSink, connecting to brokers through Sarama's
// async producer and configuring producer behavior (acks, retries,
// compression) the way a scaling-event feed needs: at-least-once
// delivery without blocking the tick loop on broker acks.
func NewKafkaSink(brokers []string, topic string, log *zap.Logger) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("eventbroker: new producer: %w", err)
	}

	sink := &KafkaSink{
		producer: producer,
		topic:    topic,
		log:      log,
		done:     make(chan struct{}),
	}
	sink.wg.Add(2)
	go sink.drainSuccesses()
	go sink.drainErrors()
	return sink, nil
}

func (k *KafkaSink) drainSuccesses() {
	defer k.wg.Done()
	for {
		select {
		case msg, ok := <-k.producer.Successes():
			if !ok {
				return
			}
			k.log.Debug("event published",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		case <-k.done:
			return
		}
	}
}

func (k *KafkaSink) drainErrors() {
	defer k.wg.Done()
	for {
		select {
		case err, ok := <-k.producer.Errors():
			if !ok {
				return
			}
			k.log.Warn("event publish failed", zap.String("topic", err.Msg.Topic), zap.Error(err.Err))
		case <-k.done:
			return
		}
	}
}

func (k *KafkaSink) publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventbroker: marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *KafkaSink) PublishWorkersScaled(ctx context.Context, e events.WorkersScaled) error {
	return k.publish(ctx, e.Connection+"/"+e.Queue, struct {
		Type string `json:"type"`
		events.WorkersScaled
	}{Type: "workers_scaled", WorkersScaled: e})
}

func (k *KafkaSink) PublishSlaBreached(ctx context.Context, e events.SlaBreached) error {
	return k.publish(ctx, e.Connection+"/"+e.Queue, struct {
		Type string `json:"type"`
		events.SlaBreached
	}{Type: "sla_breached", SlaBreached: e})
}

func (k *KafkaSink) PublishSlaRecovered(ctx context.Context, e events.SlaRecovered) error {
	return k.publish(ctx, e.Connection+"/"+e.Queue, struct {
		Type string `json:"type"`
		events.SlaRecovered
	}{Type: "sla_recovered", SlaRecovered: e})
}

// Close flushes and shuts down the underlying producer.
func (k *KafkaSink) Close() error {
	close(k.done)
	err := k.producer.Close()
	k.wg.Wait()
	return err
}

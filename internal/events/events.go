// Package events defines the EventSink the supervisor publishes scaling
// activity and SLA transitions to, plus an in-memory fan-out Bus that
// forwards each event to every Sink registered with it.
package events

import (
	"context"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// WorkersScaled fires once per tick per queue whose worker count actually
// changed (Action != Hold after the full policy pipeline has run).
type WorkersScaled struct {
	At         time.Time
	Connection string
	Queue      string
	FromCount  int
	ToCount    int
	Action     domain.Action
	Reason     string
}

// SlaBreached fires on the ok/warning -> breached transition.
type SlaBreached struct {
	At           time.Time
	Connection   string
	Queue        string
	OldestJobAge float64
	SLASeconds   float64
}

// SlaRecovered fires on the breached -> ok transition.
type SlaRecovered struct {
	At         time.Time
	Connection string
	Queue      string
}

// Sink is the EventSink interface: anything that can receive the three
// event kinds above. Implementations must not block the tick loop for
// long — the in-memory Bus fans out synchronously, the Kafka sink
// (internal/eventbroker) produces asynchronously instead.
type Sink interface {
	PublishWorkersScaled(ctx context.Context, e WorkersScaled) error
	PublishSlaBreached(ctx context.Context, e SlaBreached) error
	PublishSlaRecovered(ctx context.Context, e SlaRecovered) error
}

// Bus fans events out to every subscribed Sink, in registration order,
// continuing past a subscriber's error so one failing sink (e.g. a Kafka
// producer timeout) never silences the others.
type Bus struct {
	sinks []Sink
}

// NewBus builds a Bus over the given sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

func (b *Bus) PublishWorkersScaled(ctx context.Context, e WorkersScaled) error {
	var firstErr error
	for _, s := range b.sinks {
		if err := s.PublishWorkersScaled(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) PublishSlaBreached(ctx context.Context, e SlaBreached) error {
	var firstErr error
	for _, s := range b.sinks {
		if err := s.PublishSlaBreached(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) PublishSlaRecovered(ctx context.Context, e SlaRecovered) error {
	var firstErr error
	for _, s := range b.sinks {
		if err := s.PublishSlaRecovered(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

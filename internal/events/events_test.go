package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	scaled    []WorkersScaled
	breached  []SlaBreached
	recovered []SlaRecovered
	failCalls bool
}

func (s *recordingSink) PublishWorkersScaled(_ context.Context, e WorkersScaled) error {
	s.scaled = append(s.scaled, e)
	if s.failCalls {
		return errors.New("boom")
	}
	return nil
}

func (s *recordingSink) PublishSlaBreached(_ context.Context, e SlaBreached) error {
	s.breached = append(s.breached, e)
	return nil
}

func (s *recordingSink) PublishSlaRecovered(_ context.Context, e SlaRecovered) error {
	s.recovered = append(s.recovered, e)
	return nil
}

func TestBusFansOutToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	bus := NewBus(a, b)

	err := bus.PublishWorkersScaled(context.Background(), WorkersScaled{At: time.Now(), Queue: "default"})
	require.NoError(t, err)
	assert.Len(t, a.scaled, 1)
	assert.Len(t, b.scaled, 1)
}

func TestBusContinuesPastFailingSink(t *testing.T) {
	failing, ok := &recordingSink{failCalls: true}, &recordingSink{}
	bus := NewBus(failing, ok)

	err := bus.PublishWorkersScaled(context.Background(), WorkersScaled{At: time.Now(), Queue: "default"})
	assert.Error(t, err)
	assert.Len(t, ok.scaled, 1, "second sink must still receive the event despite the first failing")
}

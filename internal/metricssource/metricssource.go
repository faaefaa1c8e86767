// Package metricssource adapts external queue backends (Redis lists,
// Kafka consumer groups) into the domain.QueueMetrics snapshots the
// scaling engine consumes.
package metricssource

import (
	"context"
	"errors"
	"fmt"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// ErrUnavailable indicates a metrics source could not be reached this
// tick. The supervisor treats this as "hold at current level" rather than
// a fatal error, per the spec's degraded-mode handling.
var ErrUnavailable = errors.New("metricssource: unavailable")

// UnavailableError wraps a lower-level transport failure (redis timeout,
// kafka broker unreachable) while preserving ErrUnavailable for
// errors.Is checks in the supervisor.
type UnavailableError struct {
	Connection string
	Queue      string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("metricssource: %s/%s unavailable: %v", e.Connection, e.Queue, e.Err)
}

func (e *UnavailableError) Unwrap() error { return errors.Join(ErrUnavailable, e.Err) }

// Source fetches a QueueMetrics snapshot for one configured queue.
type Source interface {
	Fetch(ctx context.Context, cfg domain.QueueConfiguration) (domain.QueueMetrics, error)
}

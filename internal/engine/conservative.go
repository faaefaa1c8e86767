package engine

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/calc"
	"github.com/autoscaled/autoscaled/internal/domain"
)

// ConservativeStrategy sizes off the full SLA window (T = SLA, not a
// fraction of it) and refuses to scale up at all unless pending exceeds a
// threshold — it prefers running lean and tolerating a slower pickup time
// over spinning up workers for a small, possibly transient, backlog.
type ConservativeStrategy struct {
	reason string
}

// conservativePendingThreshold is the pending count at or below which
// ConservativeStrategy holds the current worker count, regardless of what
// Little's Law would suggest.
const conservativePendingThreshold = 5

func NewConservativeStrategy() *ConservativeStrategy {
	return &ConservativeStrategy{}
}

func (s *ConservativeStrategy) Name() string { return "conservative" }

func (s *ConservativeStrategy) CalculateTargetWorkers(m domain.QueueMetrics, cfg domain.QueueConfiguration, currentWorkers int, now time.Time) int {
	n := calc.LittlesLaw(m.Pending, m.AvgJobDurationSeconds, cfg.SLASeconds, cfg.MinWorkers)
	n = calc.Clamp(n, cfg.MinWorkers, cfg.MaxWorkers)

	if m.Pending <= conservativePendingThreshold {
		hold := calc.Clamp(currentWorkers, cfg.MinWorkers, cfg.MaxWorkers)
		s.reason = fmt.Sprintf("conservative: pending=%d at/below threshold=%d, holding staffing level at %d",
			m.Pending, conservativePendingThreshold, hold)
		return hold
	}

	s.reason = fmt.Sprintf("conservative: pending=%d avgDuration=%.2fs target=%.1fs -> %d workers",
		m.Pending, m.AvgJobDurationSeconds, cfg.SLASeconds, n)
	return n
}

func (s *ConservativeStrategy) LastReason() string      { return s.reason }
func (s *ConservativeStrategy) LastPrediction() *float64 { return nil }

package engine

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/calc"
	"github.com/autoscaled/autoscaled/internal/domain"
)

// ReactiveStrategy sizes purely off the current backlog: Little's Law with
// T = SLA/2, so the queue is staffed to clear the current pending jobs in
// half the SLA window, leaving headroom for arrivals during that window.
type ReactiveStrategy struct {
	reason string
}

func NewReactiveStrategy() *ReactiveStrategy {
	return &ReactiveStrategy{}
}

func (s *ReactiveStrategy) Name() string { return "reactive" }

func (s *ReactiveStrategy) CalculateTargetWorkers(m domain.QueueMetrics, cfg domain.QueueConfiguration, currentWorkers int, now time.Time) int {
	target := cfg.SLASeconds / 2
	n := calc.LittlesLaw(m.Pending, m.AvgJobDurationSeconds, target, cfg.MinWorkers)
	n = calc.Clamp(n, cfg.MinWorkers, cfg.MaxWorkers)
	s.reason = fmt.Sprintf("reactive: pending=%d avgDuration=%.2fs target=%.1fs -> %d workers",
		m.Pending, m.AvgJobDurationSeconds, target, n)
	return n
}

func (s *ReactiveStrategy) LastReason() string        { return s.reason }
func (s *ReactiveStrategy) LastPrediction() *float64   { return nil }

package engine

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/calc"
	"github.com/autoscaled/autoscaled/internal/domain"
)

// AggressiveDrainStrategy uses BacklogDrainCalculator with a horizon of
// SLA/2, sizing to clear the backlog (plus absorb ongoing arrivals) in
// half the SLA window — the most eager of the four built-ins.
type AggressiveDrainStrategy struct {
	defaults StrategyDefaults
	reason   string
}

func NewAggressiveDrainStrategy(defaults StrategyDefaults) *AggressiveDrainStrategy {
	return &AggressiveDrainStrategy{defaults: defaults}
}

func (s *AggressiveDrainStrategy) Name() string { return "aggressive_drain" }

func (s *AggressiveDrainStrategy) CalculateTargetWorkers(m domain.QueueMetrics, cfg domain.QueueConfiguration, currentWorkers int, now time.Time) int {
	horizon := cfg.SLASeconds / 2
	n := calc.BacklogDrain(m.Pending, m.ArrivalRatePerMinute, m.AvgJobDurationSeconds, horizon, cfg.MaxWorkers)
	n = calc.Clamp(n, cfg.MinWorkers, cfg.MaxWorkers)
	s.reason = fmt.Sprintf("aggressive_drain: pending=%d arrivalRate=%.1f/min horizon=%.1fs -> %d workers",
		m.Pending, m.ArrivalRatePerMinute, horizon, n)
	return n
}

func (s *AggressiveDrainStrategy) LastReason() string      { return s.reason }
func (s *AggressiveDrainStrategy) LastPrediction() *float64 { return nil }

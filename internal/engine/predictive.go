package engine

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/calc"
	"github.com/autoscaled/autoscaled/internal/domain"
)

// PredictiveStrategy combines TrendPredictor's forecast with Little's Law:
// if the predicted oldestJobAge at t+lookahead would exceed the queue's
// SLA, it sizes staffing for that predicted age (scaling ahead of the
// breach); otherwise it sizes for the current pending count, same as
// ReactiveStrategy.
type PredictiveStrategy struct {
	defaults   StrategyDefaults
	trend      *calc.TrendPredictor
	reason     string
	prediction *float64
}

func NewPredictiveStrategy(defaults StrategyDefaults) *PredictiveStrategy {
	return &PredictiveStrategy{
		defaults: defaults,
		trend:    calc.NewTrendPredictor(defaults.TrendSamples),
	}
}

func (s *PredictiveStrategy) Name() string { return "predictive" }

func (s *PredictiveStrategy) CalculateTargetWorkers(m domain.QueueMetrics, cfg domain.QueueConfiguration, currentWorkers int, now time.Time) int {
	d := effectiveDefaults(s.defaults, cfg)
	s.trend.Observe(now, m.OldestJobAge)

	lookahead := time.Duration(d.PredictLookaheadSeconds * float64(time.Second))
	s.prediction = s.trend.Predict(lookahead)

	if s.prediction != nil && *s.prediction > cfg.SLASeconds {
		// Size as if the backlog were already at the predicted age: treat the
		// predicted age as the pickup time we're racing against, and size the
		// current backlog to clear within that (shrinking) window.
		remaining := cfg.SLASeconds - (*s.prediction - cfg.SLASeconds)
		if remaining < 1 {
			remaining = 1
		}
		n := calc.LittlesLaw(m.Pending, m.AvgJobDurationSeconds, remaining, cfg.MinWorkers)
		n = calc.Clamp(n, cfg.MinWorkers, cfg.MaxWorkers)
		s.reason = fmt.Sprintf("predictive: predicted age %.1fs at +%.0fs exceeds SLA %.1fs -> %d workers",
			*s.prediction, d.PredictLookaheadSeconds, cfg.SLASeconds, n)
		return n
	}

	n := calc.LittlesLaw(m.Pending, m.AvgJobDurationSeconds, cfg.SLASeconds/2, cfg.MinWorkers)
	n = calc.Clamp(n, cfg.MinWorkers, cfg.MaxWorkers)
	if s.prediction != nil {
		s.reason = fmt.Sprintf("predictive: predicted age %.1fs within SLA %.1fs, sizing for current pending=%d -> %d workers",
			*s.prediction, cfg.SLASeconds, m.Pending, n)
	} else {
		s.reason = fmt.Sprintf("predictive: insufficient trend samples (%d), sizing for current pending=%d -> %d workers",
			s.trend.SampleCount(), m.Pending, n)
	}
	return n
}

func (s *PredictiveStrategy) LastReason() string      { return s.reason }
func (s *PredictiveStrategy) LastPrediction() *float64 { return s.prediction }

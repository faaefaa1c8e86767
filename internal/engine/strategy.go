// Package engine composes the pure calculators in internal/calc into
// pluggable strategies and the ScalingEngine that runs one strategy per
// queue, once per tick.
package engine

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// Strategy turns a metrics snapshot into a target worker count for one
// queue. Implementations also record the human-readable reason and
// optional prediction from their most recent call, for observability —
// the engine does not thread those through return values since every
// strategy call happens on the single control thread.
type Strategy interface {
	// CalculateTargetWorkers returns the target worker count. currentWorkers
	// is the live count this tick is reconciling from — most strategies
	// ignore it (the calculators are current-count-agnostic), but
	// ConservativeStrategy needs it to implement "never scale up below the
	// pending threshold" without scaling down either.
	CalculateTargetWorkers(metrics domain.QueueMetrics, cfg domain.QueueConfiguration, currentWorkers int, now time.Time) int
	LastReason() string
	LastPrediction() *float64
	Name() string
}

// Factory builds a fresh Strategy instance for one queue. Strategies with
// per-queue state (PredictiveStrategy's trend predictor) must not be
// shared across queues, so the registry hands out one instance per
// (connection, queue) rather than a singleton.
type Factory func(defaults StrategyDefaults) Strategy

// StrategyDefaults carries the strategy_defaults configuration block,
// overridable per queue via QueueConfiguration's optional fields.
type StrategyDefaults struct {
	DrainHorizonSeconds     float64
	PredictLookaheadSeconds float64
	TrendSamples            int
}

// Registry maps a configured strategy name to a Factory. Populated at
// startup with the four built-in strategies; unknown names are a
// ConfigError when the engine configures each queue at startup, never
// mid-tick.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry pre-populated with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("reactive", func(d StrategyDefaults) Strategy { return NewReactiveStrategy() })
	r.Register("predictive", func(d StrategyDefaults) Strategy { return NewPredictiveStrategy(d) })
	r.Register("aggressive_drain", func(d StrategyDefaults) Strategy { return NewAggressiveDrainStrategy(d) })
	r.Register("conservative", func(d StrategyDefaults) Strategy { return NewConservativeStrategy() })
	return r
}

// Register adds (or replaces) a factory under name, allowing callers to
// extend the registry with custom strategies.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build constructs a new Strategy instance for the given name. Returns a
// *ConfigError when name is not registered.
func (r *Registry) Build(name string, defaults StrategyDefaults) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &ConfigError{Strategy: name}
	}
	return f(defaults), nil
}

// ConfigError is returned when a queue names a strategy that was never
// registered. Startup code should treat this as fatal (exit code 2).
type ConfigError struct {
	Strategy string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown scaling strategy %q", e.Strategy)
}

// effectiveDefaults resolves per-queue overrides of strategy_defaults.
func effectiveDefaults(d StrategyDefaults, cfg domain.QueueConfiguration) StrategyDefaults {
	out := d
	if cfg.DrainHorizonSeconds > 0 {
		out.DrainHorizonSeconds = cfg.DrainHorizonSeconds
	}
	if cfg.PredictLookaheadSeconds > 0 {
		out.PredictLookaheadSeconds = cfg.PredictLookaheadSeconds
	}
	if cfg.TrendSamples > 0 {
		out.TrendSamples = cfg.TrendSamples
	}
	return out
}

package engine

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// Engine holds one Strategy instance per queue (resolved from
// configuration; distinct queues may use distinct strategies) and exposes
// Decide, which runs the configured strategy and returns a ScalingDecision.
// The engine itself never clamps beyond what the strategy's calculators
// already did — enforcing [min,max] a second time is ClampPolicy's job, as
// defence in depth.
type Engine struct {
	registry   *Registry
	defaults   StrategyDefaults
	strategies map[domain.Key]Strategy
}

// NewEngine builds an engine around the given strategy registry and
// system-wide strategy_defaults.
func NewEngine(registry *Registry, defaults StrategyDefaults) *Engine {
	return &Engine{
		registry:   registry,
		defaults:   defaults,
		strategies: make(map[domain.Key]Strategy),
	}
}

// Configure resolves and caches the Strategy instance for cfg's queue. Call
// this once at startup (and again after a config reload) for every
// configured queue; unknown strategy names surface as *ConfigError here,
// at load time, not mid-tick.
func (e *Engine) Configure(cfg domain.QueueConfiguration) error {
	s, err := e.registry.Build(cfg.Strategy, effectiveDefaults(e.defaults, cfg))
	if err != nil {
		return err
	}
	e.strategies[cfg.Key()] = s
	return nil
}

// Decide runs the queue's configured strategy and returns a
// ScalingDecision from currentWorkers to the strategy's target. A panic
// inside the strategy (e.g. a calculator's arithmetic invariant violated
// by a corrupt metrics snapshot) is caught and translated into a `hold`
// decision rather than taking down the supervisor — it is the engine-level
// embodiment of the CalculatorError containment the spec requires.
func (e *Engine) Decide(cfg domain.QueueConfiguration, metrics domain.QueueMetrics, currentWorkers int, now time.Time) (decision domain.ScalingDecision, err error) {
	strategy, ok := e.strategies[cfg.Key()]
	if !ok {
		return domain.ScalingDecision{}, fmt.Errorf("engine: queue %s/%s not configured", cfg.Connection, cfg.Queue)
	}

	decision = domain.ScalingDecision{
		Connection:  cfg.Connection,
		Queue:       cfg.Queue,
		FromWorkers: currentWorkers,
	}

	defer func() {
		if r := recover(); r != nil {
			decision.ToWorkers = currentWorkers
			decision.Action = domain.ActionHold
			decision.Reason = fmt.Sprintf("calculator error: %v", r)
			decision.SourceStrategy = strategy.Name()
			err = nil
		}
	}()

	target := strategy.CalculateTargetWorkers(metrics, cfg, currentWorkers, now)

	decision.ToWorkers = target
	decision.SourceStrategy = strategy.Name()
	decision.Reason = strategy.LastReason()
	decision.Prediction = strategy.LastPrediction()

	switch {
	case target > currentWorkers:
		decision.Action = domain.ActionScaleUp
	case target < currentWorkers:
		decision.Action = domain.ActionScaleDown
	default:
		decision.Action = domain.ActionHold
	}

	if currentWorkers == 0 && target <= cfg.MinWorkers && cfg.MinWorkers > 0 {
		// Cold start: nothing running yet and the strategy's target is at the
		// queue's floor (strategies clamp zero demand up to MinWorkers), so the
		// floor alone drives this scale-up. ClampPolicy will also catch this;
		// giving it a clear reason here keeps the "minimum workers" scenario
		// observable straight out of the engine.
		decision.ToWorkers = cfg.MinWorkers
		decision.Action = domain.ActionScaleUp
		decision.Reason = "minimum workers"
	}

	return decision, nil
}

// Reason returns the last human-readable reason recorded for cfg's queue,
// or "" if the queue has not been configured.
func (e *Engine) Reason(key domain.Key) string {
	if s, ok := e.strategies[key]; ok {
		return s.LastReason()
	}
	return ""
}

// Package policy implements the ordered pipeline of policies that may
// rewrite or veto a ScalingDecision before it reaches reconciliation:
// cooldown, hysteresis, rate-limit, and min/max clamp.
package policy

import (
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// Policy sees every decision the pipeline processes and may return a
// rewritten one. beforeScaling runs in registration order with no
// short-circuit — every policy sees every decision, even one a prior
// policy already rewrote to hold — so a later policy can still veto
// further. ClampPolicy is the exception that can move a held decision: it
// pulls a ToWorkers outside [min, max] to the nearest bound, which can turn
// a hold into a scale_up or scale_down.
type Policy interface {
	Name() string
	BeforeScaling(decision domain.ScalingDecision, now time.Time) domain.ScalingDecision
	AfterScaling(final domain.ScalingDecision, now time.Time)
}

// Pipeline runs an ordered list of Policy values over every decision.
type Pipeline struct {
	policies []Policy
}

// NewPipeline builds a pipeline from policies in registration order.
func NewPipeline(policies ...Policy) *Pipeline {
	return &Pipeline{policies: policies}
}

// BeforeScaling runs every policy's BeforeScaling hook in order, threading
// the (possibly rewritten) decision through each. A panic from a single
// policy is caught and turned into a hold, mirroring the engine's
// CalculatorError containment — a broken policy must not take the
// supervisor down.
func (p *Pipeline) BeforeScaling(decision domain.ScalingDecision, now time.Time) (result domain.ScalingDecision) {
	result = decision
	for _, pol := range p.policies {
		result = p.runOne(pol, result, now)
	}
	return result
}

func (p *Pipeline) runOne(pol Policy, decision domain.ScalingDecision, now time.Time) (out domain.ScalingDecision) {
	out = decision
	defer func() {
		if r := recover(); r != nil {
			out = decision.Hold("policy error: " + pol.Name())
		}
	}()
	return pol.BeforeScaling(decision, now)
}

// AfterScaling notifies every policy of the final decision, in order, so
// stateful policies (cooldown) can record it.
func (p *Pipeline) AfterScaling(final domain.ScalingDecision, now time.Time) {
	for _, pol := range p.policies {
		pol.AfterScaling(final, now)
	}
}

// Policies returns the ordered policy list (for introspection/tests).
func (p *Pipeline) Policies() []Policy {
	return p.policies
}

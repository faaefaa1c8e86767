package policy

import (
	"fmt"
	"time"

	"github.com/autoscaled/autoscaled/internal/calc"
	"github.com/autoscaled/autoscaled/internal/domain"
)

// ClampPolicy enforces [min, max] on the final ToWorkers value. The
// strategy and CapacityCalculator should already have clamped it; this is
// defence in depth against a misbehaving strategy or an earlier policy
// rewriting a decision out of bounds.
type ClampPolicy struct {
	min func(domain.Key) int
	max func(domain.Key) int
}

// NewClampPolicy builds a ClampPolicy. min/max resolve the per-queue
// MinWorkers/MaxWorkers configuration by key.
func NewClampPolicy(min, max func(domain.Key) int) *ClampPolicy {
	return &ClampPolicy{min: min, max: max}
}

func (p *ClampPolicy) Name() string { return "clamp" }

func (p *ClampPolicy) BeforeScaling(d domain.ScalingDecision, now time.Time) domain.ScalingDecision {
	key := d.Key()
	lo, hi := p.min(key), p.max(key)
	clamped := calc.Clamp(d.ToWorkers, lo, hi)
	if clamped == d.ToWorkers {
		return d
	}

	d.Reason = fmt.Sprintf("clamp: %d out of [%d,%d] range, clamped to %d: %s", d.ToWorkers, lo, hi, clamped, d.Reason)
	d.ToWorkers = clamped
	switch {
	case clamped > d.FromWorkers:
		d.Action = domain.ActionScaleUp
	case clamped < d.FromWorkers:
		d.Action = domain.ActionScaleDown
	default:
		d.Action = domain.ActionHold
	}
	return d
}

func (p *ClampPolicy) AfterScaling(domain.ScalingDecision, time.Time) {}

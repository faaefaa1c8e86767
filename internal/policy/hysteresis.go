package policy

import (
	"fmt"
	"math"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// HysteresisPolicy gates scale_down decisions: a reduction is only allowed
// through if it requests at least hysteresisDelta workers (absolute) or
// hysteresisFraction of the current count (whichever is larger); smaller
// reductions are rewritten to hold. Scale-up is never gated here — the
// system prefers to over-provision rather than risk SLA breaches from
// under-staffing, so only the downward direction needs a dead-band.
type HysteresisPolicy struct {
	delta    func(domain.Key) int
	fraction func(domain.Key) float64
}

// NewHysteresisPolicy builds a HysteresisPolicy. delta/fraction resolve the
// per-queue HysteresisDelta/HysteresisFraction configuration by key.
func NewHysteresisPolicy(delta func(domain.Key) int, fraction func(domain.Key) float64) *HysteresisPolicy {
	return &HysteresisPolicy{delta: delta, fraction: fraction}
}

func (p *HysteresisPolicy) Name() string { return "hysteresis" }

func (p *HysteresisPolicy) BeforeScaling(d domain.ScalingDecision, now time.Time) domain.ScalingDecision {
	if d.Action != domain.ActionScaleDown {
		return d
	}

	key := d.Key()
	requested := d.FromWorkers - d.ToWorkers
	absoluteFloor := p.delta(key)
	fractionFloor := int(math.Ceil(p.fraction(key) * float64(d.FromWorkers)))

	required := absoluteFloor
	if fractionFloor > required {
		required = fractionFloor
	}

	if requested < required {
		return d.Hold(fmt.Sprintf("hysteresis: requested reduction %d below required %d (delta=%d, fraction of %d=%d)",
			requested, required, absoluteFloor, d.FromWorkers, fractionFloor))
	}
	return d
}

func (p *HysteresisPolicy) AfterScaling(domain.ScalingDecision, time.Time) {}

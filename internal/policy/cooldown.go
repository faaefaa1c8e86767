package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// CooldownPolicy rewrites scale_up/scale_down decisions to hold until
// cooldownSeconds have elapsed since the last scaling action in that same
// direction for that queue. Scale-up and scale-down cooldowns are tracked
// independently, so a recent scale-up does not block a scale-down (and
// vice versa).
type CooldownPolicy struct {
	mu         sync.Mutex
	lastUp     map[domain.Key]time.Time
	lastDown   map[domain.Key]time.Time
	upSeconds  func(domain.Key) float64
	downSeconds func(domain.Key) float64
}

// NewCooldownPolicy builds a CooldownPolicy. upSeconds/downSeconds resolve
// the per-queue cooldown configuration (QueueConfiguration's
// CooldownUpSeconds/CooldownDownSeconds) by key.
func NewCooldownPolicy(upSeconds, downSeconds func(domain.Key) float64) *CooldownPolicy {
	return &CooldownPolicy{
		lastUp:      make(map[domain.Key]time.Time),
		lastDown:    make(map[domain.Key]time.Time),
		upSeconds:   upSeconds,
		downSeconds: downSeconds,
	}
}

func (p *CooldownPolicy) Name() string { return "cooldown" }

func (p *CooldownPolicy) BeforeScaling(d domain.ScalingDecision, now time.Time) domain.ScalingDecision {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := d.Key()
	switch d.Action {
	case domain.ActionScaleUp:
		if last, ok := p.lastUp[key]; ok {
			elapsed := now.Sub(last).Seconds()
			if window := p.upSeconds(key); elapsed < window {
				return d.Hold(fmt.Sprintf("cooldown: scale-up %.0fs ago, window %.0fs", elapsed, window))
			}
		}
	case domain.ActionScaleDown:
		if last, ok := p.lastDown[key]; ok {
			elapsed := now.Sub(last).Seconds()
			if window := p.downSeconds(key); elapsed < window {
				return d.Hold(fmt.Sprintf("cooldown: scale-down %.0fs ago, window %.0fs", elapsed, window))
			}
		}
	}
	return d
}

func (p *CooldownPolicy) AfterScaling(final domain.ScalingDecision, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := final.Key()
	switch final.Action {
	case domain.ActionScaleUp:
		p.lastUp[key] = now
	case domain.ActionScaleDown:
		p.lastDown[key] = now
	}
}

// Reset drops recorded cooldown state for key.
func (p *CooldownPolicy) Reset(key domain.Key) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastUp, key)
	delete(p.lastDown, key)
}

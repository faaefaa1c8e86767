package policy

import (
	"testing"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/stretchr/testify/assert"
)

func fixedKey() domain.Key { return domain.Key{Connection: "redis", Queue: "default"} }

func TestCooldownVetoesRecentScaleUp(t *testing.T) {
	p := NewCooldownPolicy(
		func(domain.Key) float64 { return 60 },
		func(domain.Key) float64 { return 60 },
	)

	now := time.Now()
	first := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 5, Action: domain.ActionScaleUp}
	p.AfterScaling(first, now.Add(-10*time.Second))

	second := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 5, Action: domain.ActionScaleUp}
	got := p.BeforeScaling(second, now)

	assert.Equal(t, domain.ActionHold, got.Action)
	assert.Contains(t, got.Reason, "cooldown")
	assert.Equal(t, got.FromWorkers, got.ToWorkers)
}

func TestCooldownAllowsAfterWindowElapses(t *testing.T) {
	p := NewCooldownPolicy(
		func(domain.Key) float64 { return 60 },
		func(domain.Key) float64 { return 60 },
	)
	now := time.Now()
	first := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 5, Action: domain.ActionScaleUp}
	p.AfterScaling(first, now.Add(-120*time.Second))

	second := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 5, ToWorkers: 7, Action: domain.ActionScaleUp}
	got := p.BeforeScaling(second, now)
	assert.Equal(t, domain.ActionScaleUp, got.Action)
}

func TestCooldownDirectionsIndependent(t *testing.T) {
	p := NewCooldownPolicy(
		func(domain.Key) float64 { return 60 },
		func(domain.Key) float64 { return 60 },
	)
	now := time.Now()
	up := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 5, Action: domain.ActionScaleUp}
	p.AfterScaling(up, now.Add(-1*time.Second))

	down := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 5, ToWorkers: 2, Action: domain.ActionScaleDown}
	got := p.BeforeScaling(down, now)
	assert.Equal(t, domain.ActionScaleDown, got.Action)
}

func TestHysteresisHoldsSmallReduction(t *testing.T) {
	p := NewHysteresisPolicy(
		func(domain.Key) int { return 2 },
		func(domain.Key) float64 { return 0 },
	)
	d := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 10, ToWorkers: 9, Action: domain.ActionScaleDown}
	got := p.BeforeScaling(d, time.Now())
	assert.Equal(t, domain.ActionHold, got.Action)
	assert.Contains(t, got.Reason, "hysteresis")
}

func TestHysteresisAllowsLargeReduction(t *testing.T) {
	p := NewHysteresisPolicy(
		func(domain.Key) int { return 2 },
		func(domain.Key) float64 { return 0 },
	)
	d := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 10, ToWorkers: 7, Action: domain.ActionScaleDown}
	got := p.BeforeScaling(d, time.Now())
	assert.Equal(t, domain.ActionScaleDown, got.Action)
}

func TestHysteresisNeverGatesScaleUp(t *testing.T) {
	p := NewHysteresisPolicy(
		func(domain.Key) int { return 100 },
		func(domain.Key) float64 { return 1 },
	)
	d := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 2, Action: domain.ActionScaleUp}
	got := p.BeforeScaling(d, time.Now())
	assert.Equal(t, domain.ActionScaleUp, got.Action)
}

func TestRateLimitCapsStep(t *testing.T) {
	p := NewRateLimitPolicy(
		func(domain.Key) int { return 2 },
		func(domain.Key) int { return 2 },
	)
	d := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 5, Action: domain.ActionScaleUp}
	got := p.BeforeScaling(d, time.Now())
	assert.Equal(t, 3, got.ToWorkers)
	assert.Equal(t, domain.ActionScaleUp, got.Action)
}

func TestClampEnforcesBounds(t *testing.T) {
	p := NewClampPolicy(
		func(domain.Key) int { return 1 },
		func(domain.Key) int { return 5 },
	)
	d := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 9, Action: domain.ActionScaleUp}
	got := p.BeforeScaling(d, time.Now())
	assert.Equal(t, 5, got.ToWorkers)
}

func TestPipelineEveryPolicySeesEveryDecision(t *testing.T) {
	cooldown := NewCooldownPolicy(func(domain.Key) float64 { return 0 }, func(domain.Key) float64 { return 0 })
	hysteresis := NewHysteresisPolicy(func(domain.Key) int { return 0 }, func(domain.Key) float64 { return 0 })
	rateLimit := NewRateLimitPolicy(func(domain.Key) int { return 0 }, func(domain.Key) int { return 0 })
	clampPol := NewClampPolicy(func(domain.Key) int { return 1 }, func(domain.Key) int { return 5 })

	pipeline := NewPipeline(cooldown, hysteresis, rateLimit, clampPol)
	d := domain.ScalingDecision{Connection: "redis", Queue: "default", FromWorkers: 1, ToWorkers: 9, Action: domain.ActionScaleUp}
	got := pipeline.BeforeScaling(d, time.Now())

	assert.GreaterOrEqual(t, got.ToWorkers, 1)
	assert.LessOrEqual(t, got.ToWorkers, 5)
}

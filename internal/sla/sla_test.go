package sla

import (
	"testing"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/stretchr/testify/assert"
)

func cfg() domain.QueueConfiguration {
	return domain.QueueConfiguration{
		Connection: "redis",
		Queue:      "default",
		SLASeconds: 30,
	}
}

func TestBreachThenRecoveryScenario(t *testing.T) {
	tr := NewTracker()
	c := cfg()

	prev, cur := tr.Update(c, 5)
	assert.Equal(t, domain.SlaOK, prev)
	assert.Equal(t, domain.SlaOK, cur)

	prev, cur = tr.Update(c, 35)
	assert.Equal(t, domain.SlaOK, prev)
	assert.Equal(t, domain.SlaBreached, cur, "age 35 >= sla 30 must breach")

	prev, cur = tr.Update(c, 10)
	assert.Equal(t, domain.SlaBreached, prev)
	assert.Equal(t, domain.SlaOK, cur, "age 10 < sla*0.8=24 must recover")

	prev, cur = tr.Update(c, 12)
	assert.Equal(t, domain.SlaOK, prev)
	assert.Equal(t, domain.SlaOK, cur, "third tick must not re-emit a breach")
}

func TestWarningBandIsObservableButIntermediate(t *testing.T) {
	tr := NewTracker()
	c := cfg()

	_, cur := tr.Update(c, 25)
	assert.Equal(t, domain.SlaWarning, cur, "25 is in [24,30) warn band")
}

func TestNeverTwoConsecutiveBreachesWithoutRecovery(t *testing.T) {
	tr := NewTracker()
	c := cfg()

	tr.Update(c, 40)
	prev, cur := tr.Update(c, 50)
	assert.Equal(t, domain.SlaBreached, prev)
	assert.Equal(t, domain.SlaBreached, cur)
	// same status twice is fine; what must never happen is an *event* fired
	// twice for breached without an intervening recovered — that invariant
	// is enforced by the supervisor only emitting SlaBreached on the
	// ok/warning -> breached edge (prev != current), not on prev == current.
}

func TestZeroSLADisablesStateMachine(t *testing.T) {
	tr := NewTracker()
	c := cfg()
	c.SLASeconds = 0

	_, cur := tr.Update(c, 1000)
	assert.Equal(t, domain.SlaOK, cur)
}

package dashboard

import (
	"testing"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRenderIncludesEveryQueue(t *testing.T) {
	r := New()
	snap := domain.OutputData{
		GeneratedAt: time.Now(),
		Queues: []domain.QueueSnapshot{
			{Connection: "redis", Queue: "default", Pending: 10, ActiveWorkers: 2, TargetWorkers: 2, SlaStatus: domain.SlaOK},
			{Connection: "redis", Queue: "reports", Pending: 0, ActiveWorkers: 1, TargetWorkers: 1, SlaStatus: domain.SlaBreached},
		},
	}

	out := r.Render(snap)
	assert.Contains(t, out, "redis/default")
	assert.Contains(t, out, "redis/reports")
	assert.Contains(t, out, "breached")
}

func TestRenderHandlesEmptySnapshot(t *testing.T) {
	r := New()
	out := r.Render(domain.OutputData{GeneratedAt: time.Now()})
	assert.Contains(t, out, "(none)")
}

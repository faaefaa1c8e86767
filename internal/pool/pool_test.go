package pool

import (
	"testing"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	pid     int
	running bool
}

func (h *fakeHandle) Pid() int          { return h.pid }
func (h *fakeHandle) Running() bool     { return h.running }
func (h *fakeHandle) SignalTerm() error { h.running = false; return nil }
func (h *fakeHandle) SignalKill() error { h.running = false; return nil }

func newWorker(pid int, connection, queue string, spawnedAt time.Time) *domain.WorkerProcess {
	return &domain.WorkerProcess{
		Connection: connection,
		Queue:      queue,
		Pid:        pid,
		SpawnedAt:  spawnedAt,
		Handle:     &fakeHandle{pid: pid, running: true},
	}
}

func TestAddRejectsDuplicatePid(t *testing.T) {
	p := New()
	w1 := newWorker(100, "redis", "default", time.Now())
	w2 := newWorker(100, "redis", "other", time.Now())

	require.NoError(t, p.Add(w1))
	err := p.Add(w2)
	assert.ErrorIs(t, err, ErrDuplicatePid)
}

func TestPidNeverReappearsAfterRemoval(t *testing.T) {
	p := New()
	key := domain.Key{Connection: "redis", Queue: "default"}
	w1 := newWorker(100, key.Connection, key.Queue, time.Now())
	require.NoError(t, p.Add(w1))

	p.RemoveWorker(w1)

	w2 := newWorker(100, key.Connection, key.Queue, time.Now())
	err := p.Add(w2)
	assert.ErrorIs(t, err, ErrDuplicatePid)
}

func TestCountMatchesRunningWorkersOnly(t *testing.T) {
	p := New()
	key := domain.Key{Connection: "redis", Queue: "default"}

	w1 := newWorker(1, key.Connection, key.Queue, time.Now())
	w2 := newWorker(2, key.Connection, key.Queue, time.Now())
	require.NoError(t, p.Add(w1))
	require.NoError(t, p.Add(w2))

	w2.Handle.(*fakeHandle).running = false

	assert.Equal(t, 1, p.Count(key))
	assert.Len(t, p.ByConnection(key), 2)
}

func TestRemovePrefersLongestUptimeFirst(t *testing.T) {
	p := New()
	key := domain.Key{Connection: "redis", Queue: "default"}
	now := time.Now()

	oldest := newWorker(1, key.Connection, key.Queue, now.Add(-1*time.Hour))
	middle := newWorker(2, key.Connection, key.Queue, now.Add(-30*time.Minute))
	newest := newWorker(3, key.Connection, key.Queue, now.Add(-1*time.Minute))

	require.NoError(t, p.Add(newest))
	require.NoError(t, p.Add(oldest))
	require.NoError(t, p.Add(middle))

	removed := p.Remove(key, 2)
	require.Len(t, removed, 2)
	assert.Equal(t, 1, removed[0].Pid)
	assert.Equal(t, 2, removed[1].Pid)
	assert.Equal(t, 1, p.Count(key))
}

func TestDeadWorkersDisjointFromRunningSet(t *testing.T) {
	p := New()
	key := domain.Key{Connection: "redis", Queue: "default"}

	alive := newWorker(1, key.Connection, key.Queue, time.Now())
	dead := newWorker(2, key.Connection, key.Queue, time.Now())
	require.NoError(t, p.Add(alive))
	require.NoError(t, p.Add(dead))
	dead.Handle.(*fakeHandle).running = false

	deadList := p.DeadWorkers()
	require.Len(t, deadList, 1)
	assert.Equal(t, 2, deadList[0].Pid)

	for _, w := range deadList {
		assert.NotEqual(t, alive.Pid, w.Pid)
	}
}

func TestTotalCountAcrossQueues(t *testing.T) {
	p := New()
	require.NoError(t, p.Add(newWorker(1, "redis", "default", time.Now())))
	require.NoError(t, p.Add(newWorker(2, "redis", "reports", time.Now())))
	require.NoError(t, p.Add(newWorker(3, "sqs", "default", time.Now())))

	assert.Equal(t, 3, p.TotalCount())
}

func TestResetClearsEverything(t *testing.T) {
	p := New()
	key := domain.Key{Connection: "redis", Queue: "default"}
	require.NoError(t, p.Add(newWorker(1, key.Connection, key.Queue, time.Now())))

	p.Reset()

	assert.Equal(t, 0, p.TotalCount())
	assert.Empty(t, p.Keys())
	// after Reset, removed-pid tracking is cleared too — pid 1 can be reused
	require.NoError(t, p.Add(newWorker(1, key.Connection, key.Queue, time.Now())))
}

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/autoscaled/autoscaled/internal/engine"
	"github.com/autoscaled/autoscaled/internal/events"
	"github.com/autoscaled/autoscaled/internal/launcher"
	"github.com/autoscaled/autoscaled/internal/pool"
	"github.com/autoscaled/autoscaled/internal/policy"
	"github.com/autoscaled/autoscaled/internal/sla"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMetricsSource returns a canned QueueMetrics or error per call,
// recording how many times it was invoked for assertions.
type fakeMetricsSource struct {
	mu      sync.Mutex
	metrics domain.QueueMetrics
	err     error
	calls   int
}

func (f *fakeMetricsSource) Fetch(ctx context.Context, cfg domain.QueueConfiguration) (domain.QueueMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.metrics, f.err
}

func (f *fakeMetricsSource) set(m domain.QueueMetrics, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics, f.err = m, err
}

// recordingSink captures every event published to it.
type recordingSink struct {
	mu        sync.Mutex
	scaled    []events.WorkersScaled
	breached  []events.SlaBreached
	recovered []events.SlaRecovered
}

func (r *recordingSink) PublishWorkersScaled(ctx context.Context, e events.WorkersScaled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scaled = append(r.scaled, e)
	return nil
}

func (r *recordingSink) PublishSlaBreached(ctx context.Context, e events.SlaBreached) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breached = append(r.breached, e)
	return nil
}

func (r *recordingSink) PublishSlaRecovered(ctx context.Context, e events.SlaRecovered) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recovered = append(r.recovered, e)
	return nil
}

func testQueue() domain.QueueConfiguration {
	return domain.QueueConfiguration{
		Connection: "redis",
		Queue:      "default",
		SLASeconds: 30,
		MinWorkers: 0,
		MaxWorkers: 5,
		Strategy:   "reactive",
	}
}

// sleepLauncher spawns real short-lived `sleep` processes so the
// supervisor's reconcile/reap paths exercise genuine os/exec lifecycles
// without depending on an external worker binary.
func sleepLauncher(t *testing.T, log *zap.Logger) *launcher.Launcher {
	t.Helper()
	return launcher.New(log, func(connection, queue string) launcher.Spec {
		return launcher.Spec{Command: "sleep", Args: []string{"5"}}
	})
}

func newTestManager(t *testing.T, qcfg domain.QueueConfiguration, ms *fakeMetricsSource, sink events.Sink) *Manager {
	t.Helper()
	log := zap.NewNop()

	reg := engine.NewRegistry()
	eng := engine.NewEngine(reg, engine.StrategyDefaults{})

	byKey := map[domain.Key]domain.QueueConfiguration{qcfg.Key(): qcfg}
	min := func(k domain.Key) int { return byKey[k].MinWorkers }
	max := func(k domain.Key) int { return byKey[k].MaxWorkers }
	pipeline := policy.NewPipeline(policy.NewClampPolicy(min, max))

	mgr, err := New(Config{
		Queues:           []domain.QueueConfiguration{qcfg},
		Pool:             pool.New(),
		Engine:           eng,
		Pipeline:         pipeline,
		SlaTracker:       sla.NewTracker(),
		MetricsSource:    ms,
		Launcher:         sleepLauncher(t, log),
		Sink:             sink,
		Log:              log,
		TickInterval:     time.Second,
		ShutdownDeadline: time.Second,
		GracePeriod:      time.Second,
	})
	require.NoError(t, err)
	return mgr
}

func TestColdQueueScalesUpToMinimum(t *testing.T) {
	qcfg := testQueue()
	qcfg.MinWorkers = 2

	ms := &fakeMetricsSource{metrics: domain.QueueMetrics{}}
	sink := &recordingSink{}
	mgr := newTestManager(t, qcfg, ms, sink)

	mgr.runTick(context.Background())

	assert.Equal(t, 2, mgr.pool.Count(qcfg.Key()))
	require.Len(t, sink.scaled, 1)
	assert.Equal(t, domain.ActionScaleUp, sink.scaled[0].Action)

	mgr.shutdown()
}

func TestMetricsFailureDoesNotCrashTickAndIsCounted(t *testing.T) {
	qcfg := testQueue()
	ms := &fakeMetricsSource{err: assertError("redis down")}
	sink := &recordingSink{}
	mgr := newTestManager(t, qcfg, ms, sink)

	mgr.runTick(context.Background())
	mgr.runTick(context.Background())
	mgr.runTick(context.Background())

	mgr.mu.Lock()
	failures := mgr.consecutiveFailures[qcfg.Key()]
	degraded := mgr.degradedEmitted[qcfg.Key()]
	mgr.mu.Unlock()

	assert.Equal(t, 3, failures)
	assert.True(t, degraded)
	assert.Empty(t, sink.scaled, "no scaling decisions should be made without metrics")
}

func TestFatalMetricsFailureAfterTenConsecutiveTicks(t *testing.T) {
	qcfg := testQueue()
	ms := &fakeMetricsSource{err: assertError("redis down")}
	sink := &recordingSink{}
	mgr := newTestManager(t, qcfg, ms, sink)

	for i := 0; i < consecutiveAllQueuesFailingForFatalExit; i++ {
		mgr.runTick(context.Background())
	}

	assert.True(t, mgr.FatalMetricsFailure())
}

func TestFatalMetricsFailureResetsOnSuccess(t *testing.T) {
	qcfg := testQueue()
	ms := &fakeMetricsSource{err: assertError("redis down")}
	sink := &recordingSink{}
	mgr := newTestManager(t, qcfg, ms, sink)

	for i := 0; i < consecutiveAllQueuesFailingForFatalExit-1; i++ {
		mgr.runTick(context.Background())
	}
	ms.set(domain.QueueMetrics{}, nil)
	mgr.runTick(context.Background())

	assert.False(t, mgr.FatalMetricsFailure())
}

func TestSlaBreachAndRecoveryEmitEventsOnTransitionOnly(t *testing.T) {
	qcfg := testQueue()
	ms := &fakeMetricsSource{}
	sink := &recordingSink{}
	mgr := newTestManager(t, qcfg, ms, sink)

	ms.set(domain.QueueMetrics{OldestJobAge: 5}, nil)
	mgr.runTick(context.Background())
	assert.Empty(t, sink.breached)

	ms.set(domain.QueueMetrics{OldestJobAge: 35}, nil)
	mgr.runTick(context.Background())
	require.Len(t, sink.breached, 1)

	ms.set(domain.QueueMetrics{OldestJobAge: 10}, nil)
	mgr.runTick(context.Background())
	require.Len(t, sink.recovered, 1)

	ms.set(domain.QueueMetrics{OldestJobAge: 12}, nil)
	mgr.runTick(context.Background())
	assert.Len(t, sink.breached, 1, "no re-breach without crossing the SLA threshold again")
	assert.Len(t, sink.recovered, 1)
}

func TestGracefulShutdownTerminatesAllWorkers(t *testing.T) {
	qcfg := testQueue()
	qcfg.MinWorkers = 1
	ms := &fakeMetricsSource{metrics: domain.QueueMetrics{}}
	sink := &recordingSink{}
	mgr := newTestManager(t, qcfg, ms, sink)

	mgr.runTick(context.Background())
	require.Equal(t, 1, mgr.pool.TotalCount())

	mgr.shutdown()

	for _, key := range mgr.pool.Keys() {
		for _, w := range mgr.pool.ByConnection(key) {
			assert.False(t, w.Running())
		}
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func assertError(msg string) error { return assertErr(msg) }

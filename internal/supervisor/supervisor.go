// Package supervisor implements the AutoscaleManager tick loop: it is
// the single control thread that owns the WorkerPool, the policy
// pipeline's state, and the SLA state map, and the only thing in the
// process that ever mutates them.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autoscaled/autoscaled/internal/calc"
	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/autoscaled/autoscaled/internal/engine"
	"github.com/autoscaled/autoscaled/internal/events"
	"github.com/autoscaled/autoscaled/internal/launcher"
	"github.com/autoscaled/autoscaled/internal/metricssource"
	"github.com/autoscaled/autoscaled/internal/obsmetrics"
	"github.com/autoscaled/autoscaled/internal/pool"
	"github.com/autoscaled/autoscaled/internal/policy"
	"github.com/autoscaled/autoscaled/internal/sla"
	"go.uber.org/zap"
)

const consecutiveMetricsFailuresForDegradedEvent = 3
const consecutiveAllQueuesFailingForFatalExit = 10

// maxRecentEntries bounds the OutputData's recent-activity slices so a
// long-running supervisor doesn't grow them without limit.
const maxRecentEntries = 200

// Manager is the AutoscaleManager.
type Manager struct {
	queues []domain.QueueConfiguration

	pool       *pool.Pool
	engine     *engine.Engine
	pipeline   *policy.Pipeline
	slaTracker *sla.Tracker
	metrics    metricssource.Source
	launcher   *launcher.Launcher
	sink       events.Sink
	log        *zap.Logger

	tickInterval     time.Duration
	shutdownDeadline time.Duration
	gracePeriod      time.Duration
	globalMaxWorkers int

	mu                  sync.Mutex
	consecutiveFailures map[domain.Key]int
	degradedEmitted     map[domain.Key]bool
	allQueuesFailStreak int

	recentJobActivity []domain.JobActivityLine
	recentScalingLog  []domain.ScalingLogEntry

	// lastMetrics and lastTargetWorkers hold each queue's most recent
	// successful fetch and post-policy target, read back by
	// publishSnapshot. Like pool and slaTracker, these are owned
	// exclusively by the tick goroutine.
	lastMetrics       map[domain.Key]domain.QueueMetrics
	lastTargetWorkers map[domain.Key]int

	snapshot chan domain.OutputData
	stopping bool
}

// Config bundles everything Manager needs at construction. Fields mirror
// the external collaborators wired up in cmd/autoscaled.
type Config struct {
	Queues           []domain.QueueConfiguration
	Pool             *pool.Pool
	Engine           *engine.Engine
	Pipeline         *policy.Pipeline
	SlaTracker       *sla.Tracker
	MetricsSource    metricssource.Source
	Launcher         *launcher.Launcher
	Sink             events.Sink
	Log              *zap.Logger
	TickInterval     time.Duration
	ShutdownDeadline time.Duration
	GracePeriod      time.Duration
	GlobalMaxWorkers int
}

// New builds a Manager and configures the engine for every queue. Returns
// a ConfigError-wrapping error if any queue names an unknown strategy.
func New(cfg Config) (*Manager, error) {
	for _, q := range cfg.Queues {
		if err := cfg.Engine.Configure(q); err != nil {
			return nil, fmt.Errorf("supervisor: configure %s/%s: %w", q.Connection, q.Queue, err)
		}
	}

	return &Manager{
		queues:              cfg.Queues,
		pool:                cfg.Pool,
		engine:              cfg.Engine,
		pipeline:            cfg.Pipeline,
		slaTracker:          cfg.SlaTracker,
		metrics:             cfg.MetricsSource,
		launcher:            cfg.Launcher,
		sink:                cfg.Sink,
		log:                 cfg.Log,
		tickInterval:        cfg.TickInterval,
		shutdownDeadline:    cfg.ShutdownDeadline,
		gracePeriod:         cfg.GracePeriod,
		globalMaxWorkers:    cfg.GlobalMaxWorkers,
		consecutiveFailures: make(map[domain.Key]int),
		degradedEmitted:     make(map[domain.Key]bool),
		lastMetrics:         make(map[domain.Key]domain.QueueMetrics),
		lastTargetWorkers:   make(map[domain.Key]int),
		snapshot:            make(chan domain.OutputData, 1),
	}, nil
}

// Snapshots returns the channel one OutputData value is published to per
// tick. Consumers (a dashboard, a metrics recorder) should drain it
// promptly; the channel is buffered to 1 and a full buffer means the
// newest snapshot replaces the unconsumed one rather than blocking the
// tick loop.
func (m *Manager) Snapshots() <-chan domain.OutputData {
	return m.snapshot
}

// Run drives the tick loop until ctx is cancelled, then performs the
// shutdown sequence: stop spawning, broadcast graceful terminate to every
// worker, wait up to shutdownDeadline, then force-kill survivors.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	var tickRunning sync.Mutex
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-ticker.C:
			if !tickRunning.TryLock() {
				m.log.Warn("tick skipped: previous tick still running")
				continue
			}
			func() {
				defer tickRunning.Unlock()
				m.runTick(ctx)
			}()
			if m.FatalMetricsFailure() {
				m.log.Error("all queues' metrics source failed for too many consecutive ticks")
				m.shutdown()
				return ErrFatalMetricsFailure
			}
		}
	}
}

// ErrFatalMetricsFailure is returned by Run when every queue's metrics
// source has failed for consecutiveAllQueuesFailingForFatalExit or more
// consecutive ticks in a row. cmd/autoscaled maps this to exit code 3.
var ErrFatalMetricsFailure = fmt.Errorf("supervisor: metrics source unavailable for too many consecutive ticks")

// queueTick carries one queue's metrics and post-BeforeScaling decision
// through the global cap pass before reconciliation.
type queueTick struct {
	qcfg     domain.QueueConfiguration
	metrics  domain.QueueMetrics
	decision domain.ScalingDecision
}

// runTick executes exactly one pass of the loop described in the spec:
// per-queue metrics -> decide -> policies -> global cap -> SLA -> reconcile
// -> events, then a pool-wide reap and snapshot publish. The global cap is
// applied across every queue decided this tick, before any of them is
// reconciled, so it can see the whole set of requests at once.
func (m *Manager) runTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		obsmetrics.TickDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if m.isStopping() {
		return
	}

	deadline := m.tickInterval / 2
	allFailed := true

	var ticks []queueTick
	for _, qcfg := range m.queues {
		fetchCtx, cancel := context.WithTimeout(ctx, deadline)
		metrics, err := m.metrics.Fetch(fetchCtx, qcfg)
		cancel()

		if err != nil {
			m.recordMetricsFailure(qcfg, err)
			continue
		}
		allFailed = false
		m.resetMetricsFailure(qcfg)

		key := qcfg.Key()
		current := m.pool.Count(key)
		decision, err := m.engine.Decide(qcfg, metrics, current, start)
		if err != nil {
			m.log.Warn("engine decide failed", zap.String("queue", key.Queue), zap.Error(err))
			continue
		}
		decision = m.pipeline.BeforeScaling(decision, start)

		ticks = append(ticks, queueTick{qcfg: qcfg, metrics: metrics, decision: decision})
	}

	ticks = m.applyGlobalCap(ticks)

	for _, t := range ticks {
		m.processQueue(ctx, t.qcfg, t.metrics, t.decision, start)
	}

	m.updateAllQueuesFailStreak(allFailed)
	m.reapDeadWorkers()
	m.publishSnapshot(start)
}

func (m *Manager) processQueue(ctx context.Context, qcfg domain.QueueConfiguration, metrics domain.QueueMetrics, decision domain.ScalingDecision, now time.Time) {
	key := qcfg.Key()

	prevSla, curSla := m.slaTracker.Update(qcfg, metrics.OldestJobAge)
	m.emitSlaTransition(ctx, qcfg, metrics, prevSla, curSla)

	m.reconcile(ctx, qcfg, decision)
	m.pipeline.AfterScaling(decision, now)

	if decision.Action != domain.ActionHold {
		m.emitWorkersScaled(ctx, decision, now)
	}

	m.lastMetrics[key] = metrics
	m.lastTargetWorkers[key] = decision.ToWorkers

	obsmetrics.WorkerCount.WithLabelValues(qcfg.Connection, qcfg.Queue).Set(float64(m.pool.Count(key)))
}

// applyGlobalCap enforces global_max_workers (when configured) across every
// queue decided this tick: it collects each queue's post-clamp request,
// hands them to internal/calc.ApplyGlobalCap for the proportional,
// largest-remainder reduction, and rewrites each decision's ToWorkers/
// Action to the capped allowance before any queue is reconciled.
func (m *Manager) applyGlobalCap(ticks []queueTick) []queueTick {
	if m.globalMaxWorkers <= 0 || len(ticks) == 0 {
		return ticks
	}

	requests := make([]calc.CapacityRequest, len(ticks))
	for i, t := range ticks {
		requests[i] = calc.CapacityRequest{
			Key:       t.qcfg.Key(),
			Requested: t.decision.ToWorkers,
			Min:       t.qcfg.MinWorkers,
			Max:       t.qcfg.MaxWorkers,
		}
	}
	capped := calc.ApplyGlobalCap(requests, m.globalMaxWorkers)

	for i := range ticks {
		if capped[i] == ticks[i].decision.ToWorkers {
			continue
		}
		d := ticks[i].decision
		requested := d.ToWorkers
		d.ToWorkers = capped[i]
		switch {
		case d.ToWorkers > d.FromWorkers:
			d.Action = domain.ActionScaleUp
		case d.ToWorkers < d.FromWorkers:
			d.Action = domain.ActionScaleDown
		default:
			d.Action = domain.ActionHold
		}
		d.Reason = fmt.Sprintf("global_max_workers: capped to %d (requested %d): %s", d.ToWorkers, requested, d.Reason)
		ticks[i].decision = d
	}
	return ticks
}

func (m *Manager) reconcile(ctx context.Context, qcfg domain.QueueConfiguration, decision domain.ScalingDecision) {
	key := qcfg.Key()
	switch decision.Action {
	case domain.ActionScaleUp:
		count := decision.ToWorkers - decision.FromWorkers
		if count <= 0 {
			return
		}
		spawned, err := m.launcher.SpawnMany(ctx, qcfg.Connection, qcfg.Queue, count)
		if err != nil {
			obsmetrics.SpawnFailuresTotal.WithLabelValues(qcfg.Connection, qcfg.Queue).Inc()
			m.log.Warn("spawn shortfall, will retry next tick",
				zap.String("queue", key.Queue), zap.Int("requested", count), zap.Int("started", len(spawned)), zap.Error(err))
		}
		if addErr := m.pool.AddMany(spawned); addErr != nil {
			m.log.Error("pool add failed after spawn", zap.Error(addErr))
		}

	case domain.ActionScaleDown:
		count := decision.FromWorkers - decision.ToWorkers
		if count <= 0 {
			return
		}
		victims := m.pool.Remove(key, count)
		for _, v := range victims {
			if err := m.launcher.TerminateGraceful(v, m.gracePeriod); err != nil {
				m.log.Warn("graceful terminate failed", zap.Int("pid", v.Pid), zap.Error(err))
			}
		}
	}
}

func (m *Manager) recordMetricsFailure(qcfg domain.QueueConfiguration, err error) {
	key := qcfg.Key()
	m.log.Warn("metrics fetch failed", zap.String("queue", key.Queue), zap.Error(err))
	obsmetrics.MetricsFetchFailuresTotal.WithLabelValues(qcfg.Connection, qcfg.Queue).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveFailures[key]++
	if m.consecutiveFailures[key] == consecutiveMetricsFailuresForDegradedEvent && !m.degradedEmitted[key] {
		m.degradedEmitted[key] = true
		m.log.Warn("queue entering degraded mode: metrics unavailable", zap.String("queue", key.Queue))
	}
}

func (m *Manager) resetMetricsFailure(qcfg domain.QueueConfiguration) {
	key := qcfg.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consecutiveFailures[key] > 0 {
		m.consecutiveFailures[key] = 0
		m.degradedEmitted[key] = false
	}
}

func (m *Manager) updateAllQueuesFailStreak(allFailed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allFailed && len(m.queues) > 0 {
		m.allQueuesFailStreak++
	} else {
		m.allQueuesFailStreak = 0
	}
}

// FatalMetricsFailure reports whether every queue's metrics source has
// failed for consecutiveAllQueuesFailingForFatalExit or more ticks in a
// row — the condition cmd/autoscaled maps to exit code 3.
func (m *Manager) FatalMetricsFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allQueuesFailStreak >= consecutiveAllQueuesFailingForFatalExit
}

func (m *Manager) emitSlaTransition(ctx context.Context, qcfg domain.QueueConfiguration, metrics domain.QueueMetrics, prev, cur domain.SlaStatus) {
	key := qcfg.Key()
	if prev != domain.SlaBreached && cur == domain.SlaBreached {
		obsmetrics.SlaTransitionsTotal.WithLabelValues(qcfg.Connection, qcfg.Queue, "breached").Inc()
		if err := m.sink.PublishSlaBreached(ctx, events.SlaBreached{
			At: time.Now(), Connection: key.Connection, Queue: key.Queue,
			OldestJobAge: metrics.OldestJobAge, SLASeconds: qcfg.SLASeconds,
		}); err != nil {
			m.log.Warn("publish SlaBreached failed", zap.Error(err))
		}
	}
	if prev == domain.SlaBreached && cur == domain.SlaOK {
		obsmetrics.SlaTransitionsTotal.WithLabelValues(qcfg.Connection, qcfg.Queue, "recovered").Inc()
		if err := m.sink.PublishSlaRecovered(ctx, events.SlaRecovered{
			At: time.Now(), Connection: key.Connection, Queue: key.Queue,
		}); err != nil {
			m.log.Warn("publish SlaRecovered failed", zap.Error(err))
		}
	}
}

func (m *Manager) emitWorkersScaled(ctx context.Context, decision domain.ScalingDecision, now time.Time) {
	obsmetrics.ScalingDecisionsTotal.WithLabelValues(decision.Connection, decision.Queue, string(decision.Action)).Inc()

	if err := m.sink.PublishWorkersScaled(ctx, events.WorkersScaled{
		At: now, Connection: decision.Connection, Queue: decision.Queue,
		FromCount: decision.FromWorkers, ToCount: decision.ToWorkers,
		Action: decision.Action, Reason: decision.Reason,
	}); err != nil {
		m.log.Warn("publish WorkersScaled failed", zap.Error(err))
	}

	m.mu.Lock()
	m.recentScalingLog = appendBounded(m.recentScalingLog, domain.ScalingLogEntry{
		At: now, Connection: decision.Connection, Queue: decision.Queue,
		Action: decision.Action, From: decision.FromWorkers, To: decision.ToWorkers, Reason: decision.Reason,
	}, maxRecentEntries)
	m.mu.Unlock()
}

// reapDeadWorkers removes dead workers from the pool and escalates any
// worker still running past its graceful-termination deadline to
// SIGKILL, and drains completed stdout lines from every live worker.
func (m *Manager) reapDeadWorkers() {
	now := time.Now()
	var activity []domain.JobActivityLine

	for _, w := range m.pool.DeadWorkers() {
		m.pool.RemoveWorker(w)
	}

	for _, key := range m.pool.Keys() {
		for _, w := range m.pool.ByConnection(key) {
			if !w.Running() {
				continue
			}
			if w.GraceRequested && now.After(w.TerminationDeadline) {
				if err := m.launcher.TerminateForceful(w); err != nil {
					m.log.Warn("forceful terminate failed", zap.Int("pid", w.Pid), zap.Error(err))
				}
			}
			if drainer, ok := w.Handle.(launcher.StdoutDrainer); ok {
				for _, line := range drainer.DrainLines() {
					activity = append(activity, domain.JobActivityLine{
						At: now, Pid: w.Pid, Connection: w.Connection, Queue: w.Queue, Line: line,
					})
				}
			}
		}
	}

	if len(activity) == 0 {
		return
	}
	m.mu.Lock()
	for _, a := range activity {
		m.recentJobActivity = appendBounded(m.recentJobActivity, a, maxRecentEntries)
	}
	m.mu.Unlock()
}

func (m *Manager) publishSnapshot(now time.Time) {
	var queueSnaps []domain.QueueSnapshot
	var workerSnaps []domain.WorkerSnapshot

	for _, qcfg := range m.queues {
		key := qcfg.Key()
		metrics := m.lastMetrics[key]
		queueSnaps = append(queueSnaps, domain.QueueSnapshot{
			Connection:          qcfg.Connection,
			Queue:               qcfg.Queue,
			Pending:             metrics.Pending,
			ThroughputPerMinute: metrics.ThroughputPerMinute,
			OldestJobAge:        metrics.OldestJobAge,
			SlaStatus:           m.slaTracker.Status(key),
			ActiveWorkers:       m.pool.Count(key),
			TargetWorkers:       m.lastTargetWorkers[key],
		})
	}

	for _, key := range m.pool.Keys() {
		for _, w := range m.pool.ByConnection(key) {
			workerSnaps = append(workerSnaps, domain.WorkerSnapshot{
				Pid: w.Pid, Connection: w.Connection, Queue: w.Queue,
				Running: w.Running(), UptimeSecs: w.Uptime(now).Seconds(),
			})
		}
	}

	m.mu.Lock()
	snap := domain.OutputData{
		GeneratedAt:       now,
		Queues:            queueSnaps,
		Workers:           workerSnaps,
		RecentJobActivity: append([]domain.JobActivityLine(nil), m.recentJobActivity...),
		RecentScalingLog:  append([]domain.ScalingLogEntry(nil), m.recentScalingLog...),
	}
	m.mu.Unlock()

	select {
	case m.snapshot <- snap:
	default:
		select {
		case <-m.snapshot:
		default:
		}
		m.snapshot <- snap
	}
}

func (m *Manager) isStopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// shutdown runs the graceful-shutdown sequence: stop issuing new spawns
// (enforced by isStopping short-circuiting runTick), broadcast graceful
// terminate to every running worker, wait up to shutdownDeadline, then
// force-kill survivors.
func (m *Manager) shutdown() {
	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	m.log.Info("shutdown: terminating all workers gracefully")

	var allWorkers []*domain.WorkerProcess
	for _, key := range m.pool.Keys() {
		allWorkers = append(allWorkers, m.pool.ByConnection(key)...)
	}
	for _, w := range allWorkers {
		if w.Running() {
			_ = m.launcher.TerminateGraceful(w, m.shutdownDeadline)
		}
	}

	deadline := time.Now().Add(m.shutdownDeadline)
	for time.Now().Before(deadline) {
		if !anyRunning(allWorkers) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, w := range allWorkers {
		if w.Running() {
			_ = m.launcher.TerminateForceful(w)
		}
	}
	m.log.Info("shutdown complete")
}

func anyRunning(workers []*domain.WorkerProcess) bool {
	for _, w := range workers {
		if w.Running() {
			return true
		}
	}
	return false
}

func appendBounded[T any](slice []T, item T, max int) []T {
	slice = append(slice, item)
	if len(slice) > max {
		slice = slice[len(slice)-max:]
	}
	return slice
}

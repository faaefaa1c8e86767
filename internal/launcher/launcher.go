// Package launcher spawns and terminates the OS processes backing
// WorkerProcess entries. The default implementation shells out via
// os/exec, mirroring how a real queue worker binary (artisan queue:work,
// a Sidekiq process, a custom consumer) is started and stopped.
package launcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StdoutDrainer is implemented by a ProcessHandle that accumulates a
// worker's stdout and can hand back complete lines without blocking. The
// supervisor type-asserts for this on each reap pass to feed JobActivity
// entries into the next OutputData snapshot.
type StdoutDrainer interface {
	DrainLines() []string
}

// SpawnError wraps a failure to start a worker process.
type SpawnError struct {
	Connection string
	Queue      string
	Err        error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("launcher: spawn %s/%s: %v", e.Connection, e.Queue, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Spec describes how to launch one worker process for a queue: the
// command template is the teacher's exec.Command(w.BinaryPath) call,
// generalized to accept arguments and an environment template.
type Spec struct {
	Command string
	Args    []string
	Env     []string
}

// Launcher is the ProcessLauncher: it knows how to spawn a new worker
// process for a (connection, queue) and how to escalate its termination.
type Launcher struct {
	log     *zap.Logger
	specFor func(connection, queue string) Spec
}

// New builds a Launcher. specFor resolves the launch spec (binary path,
// args, env) for a given queue — normally sourced from QueueConfiguration.
func New(log *zap.Logger, specFor func(connection, queue string) Spec) *Launcher {
	return &Launcher{log: log, specFor: specFor}
}

// Spawn starts one new worker process for (connection, queue) and returns
// its WorkerProcess, wired to a cmdHandle ProcessHandle. Partial failure
// (one of several requested spawns failing) is the caller's concern — each
// call to Spawn is independent.
func (l *Launcher) Spawn(ctx context.Context, connection, queue string) (*domain.WorkerProcess, error) {
	spec := l.specFor(connection, queue)
	if spec.Command == "" {
		return nil, &SpawnError{Connection: connection, Queue: queue, Err: fmt.Errorf("no command configured")}
	}

	// Intentionally exec.Command, not exec.CommandContext: a spawned worker
	// must survive cancellation of the caller's tick context — shutdown is
	// handled explicitly via TerminateGraceful/TerminateForceful instead.
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	stdout := newLineBuffer()
	cmd.Stdout = io.MultiWriter(os.Stdout, stdout)
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Connection: connection, Queue: queue, Err: err}
	}

	handle := &cmdHandle{cmd: cmd, stdout: stdout}
	go handle.wait()

	w := &domain.WorkerProcess{
		InstanceID: uuid.New(),
		Connection: connection,
		Queue:      queue,
		SpawnedAt:  time.Now(),
		Pid:        cmd.Process.Pid,
		Handle:     handle,
	}

	l.log.Info("spawned worker",
		zap.String("connection", connection),
		zap.String("queue", queue),
		zap.Int("pid", w.Pid),
	)
	return w, nil
}

// SpawnMany calls Spawn count times, stopping at the first failure and
// returning the workers started so far alongside the error — mirroring
// the spec's "partial success tolerated" scale-up semantics.
func (l *Launcher) SpawnMany(ctx context.Context, connection, queue string, count int) ([]*domain.WorkerProcess, error) {
	started := make([]*domain.WorkerProcess, 0, count)
	for i := 0; i < count; i++ {
		w, err := l.Spawn(ctx, connection, queue)
		if err != nil {
			return started, err
		}
		started = append(started, w)
	}
	return started, nil
}

// TerminateGraceful sends SIGTERM and records the deadline by which a
// reap pass should escalate to TerminateForceful if the process is still
// alive.
func (l *Launcher) TerminateGraceful(w *domain.WorkerProcess, grace time.Duration) error {
	w.GraceRequested = true
	w.TerminationDeadline = time.Now().Add(grace)
	if w.Handle == nil {
		return nil
	}
	if err := w.Handle.SignalTerm(); err != nil {
		l.log.Warn("graceful term failed", zap.Int("pid", w.Pid), zap.Error(err))
		return err
	}
	return nil
}

// TerminateForceful sends SIGKILL immediately, used once a worker has
// outlived its TerminationDeadline.
func (l *Launcher) TerminateForceful(w *domain.WorkerProcess) error {
	if w.Handle == nil {
		return nil
	}
	if err := w.Handle.SignalKill(); err != nil {
		l.log.Warn("forceful kill failed", zap.Int("pid", w.Pid), zap.Error(err))
		return err
	}
	return nil
}

// IsAlive reports whether w's underlying process is still running.
func (l *Launcher) IsAlive(w *domain.WorkerProcess) bool {
	return w.Running()
}

// cmdHandle adapts *exec.Cmd to domain.ProcessHandle, mirroring the
// teacher's Worker.monitor/Kill pattern but without the auto-restart —
// restart decisions belong to the supervisor's reconcile step, not the
// handle itself.
type cmdHandle struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
	started bool
	stdout  *lineBuffer
}

// DrainLines returns and clears every complete line accumulated since the
// last call, implementing StdoutDrainer.
func (h *cmdHandle) DrainLines() []string {
	return h.stdout.drain()
}

// lineBuffer is an io.Writer that splits writes on '\n' and buffers
// complete lines for later non-blocking retrieval, matching the spec's
// "accumulate partial reads, emit complete lines, keep trailing bytes for
// next tick" stdout fan-in model.
type lineBuffer struct {
	mu      sync.Mutex
	pending []byte
	lines   []string
}

func newLineBuffer() *lineBuffer { return &lineBuffer{} }

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, p...)
	for {
		idx := bytes.IndexByte(b.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(b.pending[:idx], "\r")
		b.lines = append(b.lines, string(line))
		b.pending = b.pending[idx+1:]
	}
	return len(p), nil
}

func (b *lineBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.lines
	b.lines = nil
	return out
}

func (h *cmdHandle) wait() {
	h.mu.Lock()
	h.running = true
	h.started = true
	h.mu.Unlock()

	_ = h.cmd.Wait()

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()
}

func (h *cmdHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *cmdHandle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return true
	}
	return h.running
}

func (h *cmdHandle) SignalTerm() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *cmdHandle) SignalKill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

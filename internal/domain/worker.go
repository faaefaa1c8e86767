package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessHandle abstracts the OS-level operations a WorkerProcess needs:
// liveness, graceful/forceful termination. The default implementation
// wraps an *os/exec.Cmd (see internal/launcher); tests substitute a fake.
type ProcessHandle interface {
	Pid() int
	Running() bool
	SignalTerm() error
	SignalKill() error
}

// WorkerProcess is owned exclusively by the WorkerPool for its entire
// lifetime; the supervisor only ever borrows read access to it.
//
// Lifecycle: spawned -> running -> (graceful-stop | died) -> reaped.
type WorkerProcess struct {
	InstanceID uuid.UUID
	Connection string
	Queue      string
	SpawnedAt  time.Time
	Pid        int

	Handle ProcessHandle

	// TerminationDeadline is set by the pool/supervisor when a graceful
	// SIGTERM has been sent; a reap pass that finds Running() still true
	// past this deadline escalates to SignalKill.
	TerminationDeadline time.Time
	GraceRequested      bool
}

// Running reports whether the underlying OS process is still alive.
func (w *WorkerProcess) Running() bool {
	if w.Handle == nil {
		return false
	}
	return w.Handle.Running()
}

// Key returns the (connection, queue) this worker belongs to.
func (w *WorkerProcess) Key() Key {
	return Key{Connection: w.Connection, Queue: w.Queue}
}

// Uptime returns how long this worker has been running.
func (w *WorkerProcess) Uptime(now time.Time) time.Duration {
	return now.Sub(w.SpawnedAt)
}

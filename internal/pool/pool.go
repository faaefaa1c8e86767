// Package pool is the in-memory bookkeeping registry of live
// WorkerProcess entries: add/remove/count/liveness, keyed by pid and by
// (connection, queue). It is deliberately not safe for concurrent mutation
// from multiple goroutines — the supervisor's single control thread is the
// only writer, per the spec's concurrency model; see Pool's doc comment.
package pool

import (
	"errors"
	"sort"

	"github.com/autoscaled/autoscaled/internal/domain"
)

// ErrDuplicatePid is returned by Add/AddMany when a worker's pid already
// exists in the pool.
var ErrDuplicatePid = errors.New("pool: duplicate pid")

// Pool is the WorkerPool described in the spec: a mapping from pid to
// WorkerProcess plus a secondary (connection, queue) -> pids index.
//
// Invariants (I1-I3 in the spec):
//   - a pid never re-appears after removal within the same process lifetime
//   - count(c,q) <= len(byConnection(c,q))
//   - deadWorkers() is disjoint from the running set
//
// Pool is called only from the supervisor's control goroutine; it holds no
// internal lock. Renderers and event subscribers never touch it directly —
// they consume OutputData snapshots instead (see internal/supervisor).
type Pool struct {
	byPid   map[int]*domain.WorkerProcess
	byKey   map[domain.Key]map[int]struct{}
	removed map[int]struct{}
}

// New creates an empty pool.
func New() *Pool {
	return &Pool{
		byPid:   make(map[int]*domain.WorkerProcess),
		byKey:   make(map[domain.Key]map[int]struct{}),
		removed: make(map[int]struct{}),
	}
}

// Add registers a new worker. Fails with ErrDuplicatePid if w.Pid already
// exists in the pool (including a pid removed earlier in this process's
// lifetime — I1).
func (p *Pool) Add(w *domain.WorkerProcess) error {
	if _, exists := p.byPid[w.Pid]; exists {
		return ErrDuplicatePid
	}
	if _, wasRemoved := p.removed[w.Pid]; wasRemoved {
		return ErrDuplicatePid
	}

	p.byPid[w.Pid] = w
	key := w.Key()
	if p.byKey[key] == nil {
		p.byKey[key] = make(map[int]struct{})
	}
	p.byKey[key][w.Pid] = struct{}{}
	return nil
}

// AddMany adds every worker in ws, stopping at the first failure and
// returning it; workers added before the failure remain in the pool
// (partial success is the caller's — the supervisor's — responsibility to
// handle, matching the spec's "partial success tolerated" spawn model).
func (p *Pool) AddMany(ws []*domain.WorkerProcess) error {
	for _, w := range ws {
		if err := p.Add(w); err != nil {
			return err
		}
	}
	return nil
}

// RemoveWorker removes w by identity (pid).
func (p *Pool) RemoveWorker(w *domain.WorkerProcess) {
	p.removeByPid(w.Pid)
}

func (p *Pool) removeByPid(pid int) {
	w, ok := p.byPid[pid]
	if !ok {
		return
	}
	delete(p.byPid, pid)
	if set, ok := p.byKey[w.Key()]; ok {
		delete(set, pid)
		if len(set) == 0 {
			delete(p.byKey, w.Key())
		}
	}
	p.removed[pid] = struct{}{}
}

// Remove selects up to count running workers matching (connection, queue),
// preferring the longest-uptime ones first (drain oldest), and returns the
// selected set. It does not terminate them — the caller (supervisor) is
// responsible for actually sending SIGTERM via the ProcessLauncher; Remove
// only updates pool bookkeeping.
func (p *Pool) Remove(key domain.Key, count int) []*domain.WorkerProcess {
	if count <= 0 {
		return nil
	}

	candidates := p.runningByKey(key)
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].SpawnedAt.Before(candidates[j].SpawnedAt)
	})

	if count > len(candidates) {
		count = len(candidates)
	}
	selected := candidates[:count]
	for _, w := range selected {
		p.removeByPid(w.Pid)
	}
	return selected
}

// Count returns the number of running workers for (connection, queue).
func (p *Pool) Count(key domain.Key) int {
	n := 0
	for pid := range p.byKey[key] {
		if w, ok := p.byPid[pid]; ok && w.Running() {
			n++
		}
	}
	return n
}

// TotalCount returns the number of running workers across every queue.
func (p *Pool) TotalCount() int {
	n := 0
	for _, w := range p.byPid {
		if w.Running() {
			n++
		}
	}
	return n
}

// DeadWorkers returns every worker whose process is no longer running.
// Used by the supervisor's reaper to find pool slots to free.
func (p *Pool) DeadWorkers() []*domain.WorkerProcess {
	var dead []*domain.WorkerProcess
	for _, w := range p.byPid {
		if !w.Running() {
			dead = append(dead, w)
		}
	}
	return dead
}

// ByConnection returns every worker (running or not) for (connection,
// queue).
func (p *Pool) ByConnection(key domain.Key) []*domain.WorkerProcess {
	return p.allByKey(key)
}

func (p *Pool) allByKey(key domain.Key) []*domain.WorkerProcess {
	pids := p.byKey[key]
	out := make([]*domain.WorkerProcess, 0, len(pids))
	for pid := range pids {
		if w, ok := p.byPid[pid]; ok {
			out = append(out, w)
		}
	}
	return out
}

func (p *Pool) runningByKey(key domain.Key) []*domain.WorkerProcess {
	all := p.allByKey(key)
	out := all[:0]
	for _, w := range all {
		if w.Running() {
			out = append(out, w)
		}
	}
	return out
}

// Reset drops every entry without terminating the underlying processes.
// Used only in tests and fresh-start paths — in production the Supervisor
// always terminates workers through the ProcessLauncher before (or
// instead of) calling Reset.
func (p *Pool) Reset() {
	p.byPid = make(map[int]*domain.WorkerProcess)
	p.byKey = make(map[domain.Key]map[int]struct{})
	p.removed = make(map[int]struct{})
}

// Keys returns every (connection, queue) key currently tracked, including
// keys whose only entries are dead/not-yet-reaped.
func (p *Pool) Keys() []domain.Key {
	keys := make([]domain.Key, 0, len(p.byKey))
	for k := range p.byKey {
		keys = append(keys, k)
	}
	return keys
}

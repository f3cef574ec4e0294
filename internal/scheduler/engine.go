package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codeyard/dispatch/internal/eventbus"
	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
)

// Snapshot is a point-in-time, internally consistent view of all tasks and
// workers. Everything in it is a copy; callers can hold it indefinitely.
type Snapshot struct {
	Tasks   []task.Task     `yaml:"tasks" json:"tasks"`
	Workers []worker.Worker `yaml:"workers" json:"workers"`
}

// Sink persists snapshots after mutating operations for crash recovery.
type Sink interface {
	Save(snap Snapshot) error
}

// Engine owns the task queue and the matching algorithm.
//
// Enqueue, AssignUnassignedTasks, and UpdateTaskStatus share one mutex that
// also spans the worker BUSY flip, so "find an idle worker" and "mark it
// busy" are atomic as a pair on every call path and a worker can never be
// double-booked.
type Engine struct {
	mu       sync.Mutex
	tasks    []*task.Task
	registry *worker.Registry
	bus      *eventbus.Bus
	sink     Sink
	clock    func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithSink sets the snapshot persistence sink. Saves are best-effort; a
// failing sink is logged, never surfaced to callers.
func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func NewEngine(registry *worker.Registry, bus *eventbus.Bus, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		bus:      bus,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue creates a PENDING task, attempts an immediate match for it, and
// then runs a full sweep so older pending tasks also get a chance against
// the current worker state. It always succeeds and returns the task ID.
func (e *Engine) Enqueue(command, repoPath string, priority task.Priority) string {
	e.mu.Lock()
	now := e.clock()
	t := &task.Task{
		ID:        ulid.Make().String(),
		Command:   command,
		RepoPath:  repoPath,
		Priority:  priority,
		Status:    task.StatusPending,
		CreatedAt: now,
	}
	e.tasks = append(e.tasks, t)
	e.bus.PublishNew(eventbus.TypeTaskEnqueued, t.ID, map[string]string{
		"repo_path": t.RepoPath,
		"priority":  string(t.Priority),
	})

	if w, ok := e.findBestWorkerLocked(repoPath); ok {
		e.assignLocked(t, w)
	}
	// Sweep regardless of the immediate match: a previously orphaned task
	// must not have to wait for the periodic loop when worker state just
	// changed under it.
	e.sweepLocked()
	e.mu.Unlock()

	e.persist()
	slog.Info("task enqueued", "task_id", t.ID, "repo_path", repoPath, "priority", priority)
	return t.ID
}

// FindBestWorker selects the IDLE worker for a repository: exact normalized
// path match first, ties broken by oldest last activity; with no match it
// falls back to the oldest idle worker regardless of path.
func (e *Engine) FindBestWorker(repoPath string) (worker.Worker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findBestWorkerLocked(repoPath)
}

func (e *Engine) findBestWorkerLocked(repoPath string) (worker.Worker, bool) {
	var idle []worker.Worker
	for _, w := range e.registry.FindAvailable("") {
		if w.Status == worker.StatusIdle {
			idle = append(idle, w)
		}
	}
	if len(idle) == 0 {
		return worker.Worker{}, false
	}
	sort.Slice(idle, func(i, j int) bool {
		return idle[i].LastActivity.Before(idle[j].LastActivity)
	})
	for _, w := range idle {
		if worker.SameRepoPath(w.RepoPath, repoPath) {
			return w, true
		}
	}
	return idle[0], true
}

// AssignUnassignedTasks visits PENDING tasks in priority-then-age order and
// assigns each to the best idle worker, flipping that worker BUSY before
// moving on so no worker is picked twice in one sweep. The sweep is
// idempotent. Returns the number of tasks assigned.
func (e *Engine) AssignUnassignedTasks() int {
	e.mu.Lock()
	assigned := e.sweepLocked()
	e.mu.Unlock()
	if assigned > 0 {
		e.persist()
	}
	return assigned
}

// TriggerAssignment is the public synchronous entry point for the sweep,
// shared by the reconciliation loop and external callers.
func (e *Engine) TriggerAssignment() int {
	return e.AssignUnassignedTasks()
}

func (e *Engine) sweepLocked() int {
	pending := make([]*task.Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		if t.Status == task.StatusPending {
			pending = append(pending, t)
		}
	}
	// Queue order is recomputed per sweep: priority first, then age, so
	// insertion order within a priority band is preserved by CreatedAt.
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Priority.Weight() != pending[j].Priority.Weight() {
			return pending[i].Priority.Weight() < pending[j].Priority.Weight()
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	assigned := 0
	for _, t := range pending {
		w, ok := e.findBestWorkerLocked(t.RepoPath)
		if !ok {
			continue
		}
		e.assignLocked(t, w)
		assigned++
	}
	return assigned
}

func (e *Engine) assignLocked(t *task.Task, w worker.Worker) {
	now := e.clock()
	t.Status = task.StatusAssigned
	t.WorkerID = w.ID
	t.StartedAt = &now
	e.registry.UpdateStatus(w.ID, worker.StatusBusy, t.ID)
	e.bus.PublishNew(eventbus.TypeTaskAssigned, t.ID, map[string]string{
		"worker_id": w.ID,
		"repo_path": t.RepoPath,
	})
	slog.Info("task assigned", "task_id", t.ID, "worker_id", w.ID, "repo_path", t.RepoPath)
}

// UpdateTaskStatus applies a worker-reported status change. Only forward
// transitions are accepted; terminal tasks are immutable. Completing a task
// does not free its worker; the worker reports its own status separately.
func (e *Engine) UpdateTaskStatus(taskID string, status task.Status, result string) bool {
	e.mu.Lock()
	t := e.findTaskLocked(taskID)
	if t == nil || !t.Status.CanTransitionTo(status) {
		e.mu.Unlock()
		return false
	}
	from := t.Status
	t.Status = status
	if result != "" {
		t.Result = result
	}
	if status.Terminal() {
		now := e.clock()
		t.CompletedAt = &now
	}
	e.bus.PublishNew(eventbus.TypeTaskStatusChanged, t.ID, map[string]string{
		"from": string(from),
		"to":   string(status),
	})
	e.mu.Unlock()

	e.persist()
	slog.Info("task status updated", "task_id", taskID, "from", from, "to", status)
	return true
}

// Task returns a copy of the task with the given ID.
func (e *Engine) Task(id string) (task.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t := e.findTaskLocked(id); t != nil {
		return *t, true
	}
	return task.Task{}, false
}

func (e *Engine) findTaskLocked(id string) *task.Task {
	for _, t := range e.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Snapshot returns a consistent copy of all tasks and workers.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	tasks := make([]task.Task, len(e.tasks))
	for i, t := range e.tasks {
		tasks[i] = *t
	}
	e.mu.Unlock()
	return Snapshot{
		Tasks:   tasks,
		Workers: e.registry.GetAll(),
	}
}

// Restore replaces the task queue with tasks recovered from a persisted
// snapshot. Workers are not restored; discovery rebuilds them.
func (e *Engine) Restore(tasks []task.Task) {
	e.mu.Lock()
	e.tasks = make([]*task.Task, len(tasks))
	for i := range tasks {
		t := tasks[i]
		e.tasks[i] = &t
	}
	e.mu.Unlock()
}

func (e *Engine) persist() {
	if e.sink == nil {
		return
	}
	if err := e.sink.Save(e.Snapshot()); err != nil {
		slog.Warn("failed to persist snapshot", "error", err)
	}
}

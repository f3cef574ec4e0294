package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
)

const (
	// DefaultInterval bounds the worst-case latency between a worker
	// becoming available and a pending task being picked up.
	DefaultInterval = 2 * time.Second

	// backoffFactor stretches the wait after a cycle panic.
	backoffFactor = 10
)

// Loop periodically re-drives the engine's sweep so that pending work is
// picked up as soon as a worker becomes available, without any external
// trigger.
type Loop struct {
	engine   *Engine
	interval time.Duration
	backoff  time.Duration
}

func NewLoop(engine *Engine, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		engine:   engine,
		interval: interval,
		backoff:  interval * backoffFactor,
	}
}

// Run executes reconcile cycles until ctx is cancelled. A panicking cycle
// is recovered and logged, and the next cycle is delayed by an extended
// backoff; cancellation always wins, whether it arrives between cycles or
// during the wait.
func (l *Loop) Run(ctx context.Context) {
	slog.Info("reconciliation loop started", "interval", l.interval)
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciliation loop stopped")
			return
		case <-timer.C:
		}

		wait := l.interval
		if r := panics.Try(l.processCycle); r != nil {
			slog.Error("reconcile cycle failed", "panic", r.Value)
			wait = l.backoff
		}
		timer.Reset(wait)
	}
}

// processCycle assigns pending tasks when at least one idle worker exists.
// A cycle with nothing to do is a no-op, not an error.
func (l *Loop) processCycle() {
	snap := l.engine.Snapshot()
	unassigned := countUnassigned(snap.Tasks)
	idle := countIdle(snap.Workers)
	if unassigned == 0 || idle == 0 {
		return
	}

	l.engine.TriggerAssignment()

	after := l.engine.Snapshot()
	assigned := unassigned - countUnassigned(after.Tasks)
	slog.Info("reconcile cycle completed",
		"unassigned", unassigned,
		"idle_workers", idle,
		"assigned", assigned,
	)
}

func countUnassigned(tasks []task.Task) int {
	n := 0
	for _, t := range tasks {
		if t.WorkerID == "" && t.Status == task.StatusPending {
			n++
		}
	}
	return n
}

func countIdle(workers []worker.Worker) int {
	n := 0
	for _, w := range workers {
		if w.Status == worker.StatusIdle {
			n++
		}
	}
	return n
}

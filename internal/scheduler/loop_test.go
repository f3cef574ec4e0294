package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeyard/dispatch/internal/eventbus"
	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
)

func TestLoopAssignsWithinOneInterval(t *testing.T) {
	registry := worker.NewRegistry()
	e := NewEngine(registry, eventbus.New())
	l := NewLoop(e, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// Task arrives while no worker is idle.
	id := e.Enqueue("build", "repoA", task.PriorityNormal)
	got, _ := e.Task(id)
	require.Equal(t, task.StatusPending, got.Status)

	// A worker appears later; the loop must pick the task up on its own.
	registry.Register(worker.Worker{ID: "W1", RepoPath: "repoA", Status: worker.StatusIdle})

	require.Eventually(t, func() bool {
		got, _ := e.Task(id)
		return got.Status == task.StatusAssigned && got.WorkerID == "W1"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
}

func TestLoopStopsCleanlyDuringWait(t *testing.T) {
	e := NewEngine(worker.NewRegistry(), eventbus.New())
	l := NewLoop(e, time.Hour) // long wait: cancellation must interrupt it

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not observe cancellation during wait")
	}
}

func TestLoopNoOpCycleLeavesStateUntouched(t *testing.T) {
	registry := worker.NewRegistry()
	e := NewEngine(registry, eventbus.New())
	l := NewLoop(e, time.Millisecond)

	e.Enqueue("build", "repoA", task.PriorityNormal)

	// No idle workers: cycles must do nothing.
	l.processCycle()
	l.processCycle()

	snap := e.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, task.StatusPending, snap.Tasks[0].Status)
}

func TestNewLoopDefaultsInterval(t *testing.T) {
	l := NewLoop(nil, 0)
	assert.Equal(t, DefaultInterval, l.interval)
	assert.Equal(t, DefaultInterval*backoffFactor, l.backoff)
}

package scheduler

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeyard/dispatch/internal/eventbus"
	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
)

func newTestEngine(t *testing.T) (*Engine, *worker.Registry) {
	t.Helper()
	registry := worker.NewRegistry()
	return NewEngine(registry, eventbus.New()), registry
}

func idleWorker(id, repoPath string, lastActivity time.Time) worker.Worker {
	return worker.Worker{
		ID:           id,
		Name:         id,
		Kind:         "agent",
		RepoPath:     repoPath,
		Status:       worker.StatusIdle,
		LastActivity: lastActivity,
	}
}

func TestEnqueueWithNoWorkersStaysPending(t *testing.T) {
	e, _ := newTestEngine(t)

	id := e.Enqueue("go build ./...", "repoA", task.PriorityNormal)
	require.NotEmpty(t, id)

	got, ok := e.Task(id)
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Empty(t, got.WorkerID)
	assert.Nil(t, got.StartedAt)
}

func TestEnqueueImmediateAssignmentMarksWorkerBusy(t *testing.T) {
	e, registry := newTestEngine(t)
	registry.Register(idleWorker("W1", "repoA", time.Now()))

	id := e.Enqueue("go test ./...", "repoA", task.PriorityNormal)

	got, ok := e.Task(id)
	require.True(t, ok)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.Equal(t, "W1", got.WorkerID)
	require.NotNil(t, got.StartedAt)

	w, ok := registry.Get("W1")
	require.True(t, ok)
	assert.Equal(t, worker.StatusBusy, w.Status)
	assert.Equal(t, id, w.CurrentTaskID)
}

func TestSweepAssignsAtMostOnePerWorker(t *testing.T) {
	e, registry := newTestEngine(t)

	const nTasks, mWorkers = 8, 3
	for i := 0; i < nTasks; i++ {
		e.Enqueue(fmt.Sprintf("job %d", i), "repoA", task.PriorityNormal)
	}
	for i := 0; i < mWorkers; i++ {
		registry.Register(idleWorker(fmt.Sprintf("W%d", i), "repoA", time.Now()))
	}

	assigned := e.AssignUnassignedTasks()
	assert.Equal(t, mWorkers, assigned)

	snap := e.Snapshot()
	seen := map[string]string{}
	assignedCount := 0
	for _, tk := range snap.Tasks {
		if tk.Status != task.StatusAssigned {
			continue
		}
		assignedCount++
		if prev, dup := seen[tk.WorkerID]; dup {
			t.Fatalf("worker %s assigned to both %s and %s", tk.WorkerID, prev, tk.ID)
		}
		seen[tk.WorkerID] = tk.ID
	}
	assert.Equal(t, mWorkers, assignedCount)
}

func TestSweepIsIdempotent(t *testing.T) {
	e, registry := newTestEngine(t)
	registry.Register(idleWorker("W1", "repoA", time.Now()))
	e.Enqueue("job", "repoA", task.PriorityNormal)
	e.Enqueue("job", "repoA", task.PriorityNormal)

	first := e.Snapshot()
	again := e.AssignUnassignedTasks()
	assert.Zero(t, again)
	assert.Equal(t, first.Tasks, e.Snapshot().Tasks)
}

func TestSweepHonorsPriorityThenAge(t *testing.T) {
	e, registry := newTestEngine(t)

	normal1 := e.Enqueue("n1", "repoA", task.PriorityNormal)
	critical := e.Enqueue("c", "repoA", task.PriorityCritical)
	normal2 := e.Enqueue("n2", "repoA", task.PriorityNormal)
	high := e.Enqueue("h", "repoA", task.PriorityHigh)

	expectNext := func(wantID string) {
		t.Helper()
		registry.Register(idleWorker("W1", "repoA", time.Now()))
		require.Equal(t, 1, e.AssignUnassignedTasks())
		got, ok := e.Task(wantID)
		require.True(t, ok)
		assert.Equal(t, task.StatusAssigned, got.Status, "expected %s to be picked", wantID)
		// Simulate the worker finishing and coming back idle.
		require.True(t, e.UpdateTaskStatus(wantID, task.StatusInProgress, ""))
		require.True(t, e.UpdateTaskStatus(wantID, task.StatusCompleted, "done"))
		registry.UpdateStatus("W1", worker.StatusIdle, "")
	}

	expectNext(critical)
	expectNext(high)
	expectNext(normal1)
	expectNext(normal2)
}

func TestFindBestWorkerPrefersRepoAffinity(t *testing.T) {
	e, registry := newTestEngine(t)
	base := time.Now()
	// The other-repo worker is older and would win on age alone.
	registry.Register(idleWorker("W-other", "repoB", base.Add(-time.Hour)))
	registry.Register(idleWorker("W-match", "repoA", base))

	w, ok := e.FindBestWorker("repoA")
	require.True(t, ok)
	assert.Equal(t, "W-match", w.ID)
}

func TestFindBestWorkerFallsBackAcrossRepos(t *testing.T) {
	e, registry := newTestEngine(t)
	registry.Register(idleWorker("W-other", "repoB", time.Now()))

	w, ok := e.FindBestWorker("repoA")
	require.True(t, ok)
	assert.Equal(t, "W-other", w.ID)
}

func TestFindBestWorkerNoneIdle(t *testing.T) {
	e, registry := newTestEngine(t)
	w := idleWorker("W1", "repoA", time.Now())
	w.Status = worker.StatusBusy
	registry.Register(w)

	_, ok := e.FindBestWorker("repoA")
	assert.False(t, ok)
}

func TestFindBestWorkerBreaksTiesByOldestActivity(t *testing.T) {
	e, registry := newTestEngine(t)
	base := time.Now()
	registry.Register(idleWorker("W-new", "repoA", base))
	registry.Register(idleWorker("W-old", "repoA", base.Add(-time.Minute)))

	w, ok := e.FindBestWorker("repoA")
	require.True(t, ok)
	assert.Equal(t, "W-old", w.ID)
}

func TestFindBestWorkerNormalizesRepoPath(t *testing.T) {
	e, registry := newTestEngine(t)
	base := time.Now()
	registry.Register(idleWorker("W-other", "repoB", base.Add(-time.Hour)))
	registry.Register(idleWorker("W-win", `C:\Repo\`, base))

	w, ok := e.FindBestWorker("c:/repo")
	require.True(t, ok)
	assert.Equal(t, "W-win", w.ID)
}

func TestUpdateTaskStatusForwardOnly(t *testing.T) {
	e, registry := newTestEngine(t)
	registry.Register(idleWorker("W1", "repoA", time.Now()))
	id := e.Enqueue("job", "repoA", task.PriorityNormal)

	assert.False(t, e.UpdateTaskStatus(id, task.StatusPending, ""), "backward transition")
	assert.True(t, e.UpdateTaskStatus(id, task.StatusInProgress, ""))
	assert.True(t, e.UpdateTaskStatus(id, task.StatusFailed, "boom"))
	assert.False(t, e.UpdateTaskStatus(id, task.StatusCompleted, ""), "terminal task is immutable")

	got, _ := e.Task(id)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Result)
	require.NotNil(t, got.CompletedAt)
}

func TestUpdateTaskStatusUnknownTask(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.False(t, e.UpdateTaskStatus("nope", task.StatusInProgress, ""))
}

func TestCompletionDoesNotFreeWorker(t *testing.T) {
	e, registry := newTestEngine(t)
	registry.Register(idleWorker("W1", "repoA", time.Now()))
	id := e.Enqueue("job", "repoA", task.PriorityNormal)

	require.True(t, e.UpdateTaskStatus(id, task.StatusInProgress, ""))
	require.True(t, e.UpdateTaskStatus(id, task.StatusCompleted, ""))

	w, ok := registry.Get("W1")
	require.True(t, ok)
	assert.Equal(t, worker.StatusBusy, w.Status, "worker frees itself via its own status report")
}

func TestEndToEndWorkerArrivesAfterEnqueue(t *testing.T) {
	e, registry := newTestEngine(t)

	id := e.Enqueue("build", "repoA", task.PriorityNormal)
	got, _ := e.Task(id)
	require.Equal(t, task.StatusPending, got.Status)
	require.Empty(t, got.WorkerID)

	registry.Register(idleWorker("W1", "repoA", time.Now()))
	e.TriggerAssignment()

	got, _ = e.Task(id)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.Equal(t, "W1", got.WorkerID)
	w, _ := registry.Get("W1")
	assert.Equal(t, worker.StatusBusy, w.Status)
}

func TestSnapshotIsACopy(t *testing.T) {
	e, registry := newTestEngine(t)
	registry.Register(idleWorker("W1", "repoA", time.Now()))
	id := e.Enqueue("job", "repoA", task.PriorityNormal)

	snap := e.Snapshot()
	snap.Tasks[0].Status = task.StatusFailed
	snap.Workers[0].Status = worker.StatusOffline

	got, _ := e.Task(id)
	assert.Equal(t, task.StatusAssigned, got.Status)
	w, _ := registry.Get("W1")
	assert.Equal(t, worker.StatusBusy, w.Status)
}

func TestRestoreRecoversPendingTasks(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Restore([]task.Task{
		{ID: "T1", Command: "job", RepoPath: "repoA", Priority: task.PriorityNormal, Status: task.StatusPending, CreatedAt: time.Now()},
	})

	got, ok := e.Task("T1")
	require.True(t, ok)
	assert.Equal(t, task.StatusPending, got.Status)
}

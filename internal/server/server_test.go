package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeyard/dispatch/internal/config"
	"github.com/codeyard/dispatch/internal/eventbus"
	"github.com/codeyard/dispatch/internal/scheduler"
	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
)

const testAPIKey = "test-key"

func newTestServer(t *testing.T) (*httptest.Server, *scheduler.Engine, *worker.Registry) {
	t.Helper()
	registry := worker.NewRegistry()
	engine := scheduler.NewEngine(registry, eventbus.New())
	s := NewServer(&config.Env{
		BaseEnv: config.BaseEnv{APIKey: testAPIKey},
	}, engine, registry, nil)
	ts := httptest.NewServer(s.apiKeyMiddleware(s.Handler()))
	t.Cleanup(ts.Close)
	return ts, engine, registry
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestEnqueueAndGetTask(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/tasks", map[string]string{
		"command":   "make \\\n  build",
		"repo_path": "/srv/repoA",
		"priority":  "high",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[task.Task](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "make build", created.Command)
	assert.Equal(t, task.PriorityHigh, created.Priority)
	assert.Equal(t, task.StatusPending, created.Status)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[task.Task](t, resp)
	assert.Equal(t, created.ID, got.ID)
}

func TestEnqueueValidation(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/tasks", map[string]string{"repo_path": "/srv/repoA"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/tasks", map[string]string{"command": "ls", "priority": "urgent"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTaskNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/tasks/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateTaskStatus(t *testing.T) {
	ts, engine, registry := newTestServer(t)
	registry.Register(worker.Worker{ID: "W1", Status: worker.StatusIdle})
	id := engine.Enqueue("go test ./...", "", task.PriorityNormal)

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/tasks/"+id+"/status", map[string]string{"status": "in_progress"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/tasks/"+id+"/status", map[string]string{
		"status": "completed",
		"result": "ok",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	done := decode[task.Task](t, resp)
	assert.Equal(t, task.StatusCompleted, done.Status)
	assert.Equal(t, "ok", done.Result)

	// Terminal tasks reject further transitions.
	resp = doJSON(t, http.MethodPut, ts.URL+"/api/tasks/"+id+"/status", map[string]string{"status": "failed"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterWorkerAssignsPendingTask(t *testing.T) {
	ts, engine, _ := newTestServer(t)
	id := engine.Enqueue("make build", "/srv/repoA", task.PriorityNormal)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/workers", map[string]string{
		"id":        "W1",
		"repo_path": "/srv/repoA",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, ok := engine.Task(id)
	require.True(t, ok)
	assert.Equal(t, task.StatusAssigned, got.Status)
	assert.Equal(t, "W1", got.WorkerID)
}

func TestUpdateWorkerStatus(t *testing.T) {
	ts, _, registry := newTestServer(t)
	registry.Register(worker.Worker{ID: "W1", Status: worker.StatusBusy, CurrentTaskID: "T1"})

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/workers/W1/status", map[string]string{"status": "idle"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[worker.Worker](t, resp)
	assert.Equal(t, worker.StatusIdle, updated.Status)

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/workers/nope/status", map[string]string{"status": "idle"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClearWorkers(t *testing.T) {
	ts, _, registry := newTestServer(t)
	registry.Register(worker.Worker{ID: "W1", Status: worker.StatusIdle})
	registry.Register(worker.Worker{ID: "W2", Status: worker.StatusIdle})

	resp := doJSON(t, http.MethodDelete, ts.URL+"/api/workers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := decode[clearWorkersResponse](t, resp)
	assert.Equal(t, 2, cleared.Cleared)
	assert.Equal(t, 0, registry.Count())
}

func TestAssignEndpoint(t *testing.T) {
	ts, engine, registry := newTestServer(t)
	engine.Enqueue("make build", "", task.PriorityNormal)
	registry.Register(worker.Worker{ID: "W1", Status: worker.StatusIdle})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/assign", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assigned := decode[assignResponse](t, resp)
	assert.Equal(t, 1, assigned.Assigned)
}

func TestSnapshotEndpoint(t *testing.T) {
	ts, engine, registry := newTestServer(t)
	registry.Register(worker.Worker{ID: "W1", Status: worker.StatusIdle})
	engine.Enqueue("make build", "", task.PriorityLow)

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/snapshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[scheduler.Snapshot](t, resp)
	assert.Len(t, snap.Tasks, 1)
	assert.Len(t, snap.Workers, 1)
}

func TestAPIKeyRequired(t *testing.T) {
	ts, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/snapshot", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

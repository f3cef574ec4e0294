package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codeyard/dispatch/internal/task"
	"github.com/codeyard/dispatch/internal/worker"
	"github.com/codeyard/dispatch/pkg/cerr"
	"github.com/codeyard/dispatch/pkg/cmdformat"
)

type enqueueTaskRequest struct {
	Command  string `json:"command"`
	RepoPath string `json:"repo_path"`
	Priority string `json:"priority"`
}

func (s *Server) handleEnqueueTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req enqueueTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	if req.Command == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "command is required", nil)
		return
	}
	priority := task.PriorityNormal
	if req.Priority != "" {
		p, ok := task.ParsePriority(req.Priority)
		if !ok {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown priority: "+req.Priority, nil)
			return
		}
		priority = p
	}

	id := s.engine.Enqueue(cmdformat.Oneline(req.Command), req.RepoPath, priority)
	t, _ := s.engine.Task(id)
	cerr.SetJSONResponse(ctx, t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	t, ok := s.engine.Task(id)
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "task not found: "+id, nil)
		return
	}
	cerr.SetJSONResponse(ctx, t)
}

type updateTaskStatusRequest struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "taskID")
	var req updateTaskStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	status, ok := task.ParseStatus(req.Status)
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown status: "+req.Status, nil)
		return
	}
	if _, ok := s.engine.Task(id); !ok {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "task not found: "+id, nil)
		return
	}
	if !s.engine.UpdateTaskStatus(id, status, req.Result) {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "invalid status transition to "+string(status), nil)
		return
	}
	t, _ := s.engine.Task(id)
	cerr.SetJSONResponse(ctx, t)
}

type registerWorkerRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	RepoPath string `json:"repo_path"`
	Status   string `json:"status"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	status := worker.StatusIdle
	if req.Status != "" {
		st, ok := worker.ParseStatus(req.Status)
		if !ok {
			cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown status: "+req.Status, nil)
			return
		}
		status = st
	}
	registered := s.registry.Register(worker.Worker{
		ID:       req.ID,
		Name:     req.Name,
		Kind:     req.Kind,
		RepoPath: req.RepoPath,
		Status:   status,
	})
	if !registered {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "worker id is required", nil)
		return
	}

	// A fresh idle worker may unblock pending tasks.
	s.engine.TriggerAssignment()
	registeredWorker, _ := s.registry.Get(req.ID)
	cerr.SetJSONResponse(ctx, registeredWorker)
}

type updateWorkerStatusRequest struct {
	Status        string `json:"status"`
	CurrentTaskID string `json:"current_task_id"`
}

func (s *Server) handleUpdateWorkerStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "workerID")
	var req updateWorkerStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	status, ok := worker.ParseStatus(req.Status)
	if !ok {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown status: "+req.Status, nil)
		return
	}
	if !s.registry.UpdateStatus(id, status, req.CurrentTaskID) {
		cerr.SetNewJSONError(ctx, cerr.NotFound, "worker not found: "+id, nil)
		return
	}
	if status == worker.StatusIdle {
		s.engine.TriggerAssignment()
	}
	updated, _ := s.registry.Get(id)
	cerr.SetJSONResponse(ctx, updated)
}

type clearWorkersResponse struct {
	Cleared int `json:"cleared"`
}

func (s *Server) handleClearWorkers(w http.ResponseWriter, r *http.Request) {
	cleared := s.registry.Count()
	s.registry.ClearAll()
	cerr.SetJSONResponse(r.Context(), clearWorkersResponse{Cleared: cleared})
}

type assignResponse struct {
	Assigned int `json:"assigned"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if s.poller != nil {
		s.poller.Kick()
	}
	n := s.engine.TriggerAssignment()
	cerr.SetJSONResponse(r.Context(), assignResponse{Assigned: n})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	cerr.SetJSONResponse(r.Context(), s.engine.Snapshot())
}

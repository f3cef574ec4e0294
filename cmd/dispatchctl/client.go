package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/codeyard/dispatch/internal/scheduler"
	"github.com/codeyard/dispatch/internal/task"
)

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL, apiKey string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) enqueueTask(command, repoPath, priority string) (task.Task, error) {
	var t task.Task
	err := c.do(http.MethodPost, "/api/tasks", map[string]string{
		"command":   command,
		"repo_path": repoPath,
		"priority":  priority,
	}, &t)
	return t, err
}

func (c *client) task(id string) (task.Task, error) {
	var t task.Task
	err := c.do(http.MethodGet, "/api/tasks/"+id, nil, &t)
	return t, err
}

func (c *client) updateTaskStatus(id, status, result string) (task.Task, error) {
	var t task.Task
	err := c.do(http.MethodPut, "/api/tasks/"+id+"/status", map[string]string{
		"status": status,
		"result": result,
	}, &t)
	return t, err
}

func (c *client) snapshot() (scheduler.Snapshot, error) {
	var snap scheduler.Snapshot
	err := c.do(http.MethodGet, "/api/snapshot", nil, &snap)
	return snap, err
}

func (c *client) triggerAssignment() (int, error) {
	var resp struct {
		Assigned int `json:"assigned"`
	}
	err := c.do(http.MethodPost, "/api/assign", nil, &resp)
	return resp.Assigned, err
}

func (c *client) clearWorkers() (int, error) {
	var resp struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(http.MethodDelete, "/api/workers", nil, &resp)
	return resp.Cleared, err
}

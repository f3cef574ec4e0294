package worker

import (
	"strings"
	"time"
)

// Status represents worker availability as tracked by the registry.
type Status string

const (
	StatusIdle    Status = "IDLE"
	StatusBusy    Status = "BUSY"
	StatusError   Status = "ERROR"
	StatusOffline Status = "OFFLINE"
)

// ParseStatus converts a string into a Status, case-insensitively.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToUpper(s)) {
	case StatusIdle:
		return StatusIdle, true
	case StatusBusy:
		return StatusBusy, true
	case StatusError:
		return StatusError, true
	case StatusOffline:
		return StatusOffline, true
	}
	return "", false
}

// Worker is an execution unit bound to one repository, able to hold at most
// one active task at a time.
type Worker struct {
	ID            string    `yaml:"id" json:"id"`
	Name          string    `yaml:"name" json:"name"`
	Kind          string    `yaml:"kind" json:"kind"`
	RepoPath      string    `yaml:"repo_path" json:"repo_path"`
	Status        Status    `yaml:"status" json:"status"`
	LastActivity  time.Time `yaml:"last_activity" json:"last_activity"`
	CurrentTaskID string    `yaml:"current_task_id,omitempty" json:"current_task_id,omitempty"`
}

// Available reports whether the worker counts as reachable for matching.
func (w Worker) Available() bool {
	return w.Status == StatusIdle || w.Status == StatusBusy
}

// NormalizeRepoPath canonicalizes a repository path for affinity comparison:
// lower-cased, backslashes folded to slashes, trailing separators trimmed.
func NormalizeRepoPath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimRight(p, "/")
}

// SameRepoPath reports whether two repository paths are equal after
// normalization.
func SameRepoPath(a, b string) bool {
	return NormalizeRepoPath(a) == NormalizeRepoPath(b)
}

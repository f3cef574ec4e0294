package task

import (
	"strings"
	"time"
)

// Priority orders tasks within the queue. Lower weight sorts first.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityNormal   Priority = "NORMAL"
	PriorityLow      Priority = "LOW"
)

var priorityWeights = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityNormal:   2,
	PriorityLow:      3,
}

// Weight returns the sort weight of the priority. Unknown priorities sort
// after LOW.
func (p Priority) Weight() int {
	if w, ok := priorityWeights[p]; ok {
		return w
	}
	return len(priorityWeights)
}

// ParsePriority converts a string into a Priority, case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(s))
	if _, ok := priorityWeights[p]; ok {
		return p, true
	}
	return "", false
}

// Status is the task lifecycle state. Transitions only move forward:
// PENDING → ASSIGNED → IN_PROGRESS → {COMPLETED, FAILED}.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var statusRanks = map[Status]int{
	StatusPending:    0,
	StatusAssigned:   1,
	StatusInProgress: 2,
	StatusCompleted:  3,
	StatusFailed:     3,
}

// ParseStatus converts a string into a Status, case-insensitively.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(s))
	if _, ok := statusRanks[st]; ok {
		return st, true
	}
	return "", false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition. Terminal states and backward or same-state moves are rejected.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusRanks[s]
	if !ok {
		return false
	}
	to, ok := statusRanks[next]
	if !ok {
		return false
	}
	if s.Terminal() {
		return false
	}
	return to > from
}

// Task is a unit of submitted work with a priority and a target repository.
type Task struct {
	ID          string     `yaml:"id" json:"id"`
	Command     string     `yaml:"command" json:"command"`
	RepoPath    string     `yaml:"repo_path" json:"repo_path"`
	Priority    Priority   `yaml:"priority" json:"priority"`
	Status      Status     `yaml:"status" json:"status"`
	WorkerID    string     `yaml:"worker_id,omitempty" json:"worker_id,omitempty"`
	Result      string     `yaml:"result,omitempty" json:"result,omitempty"`
	CreatedAt   time.Time  `yaml:"created_at" json:"created_at"`
	StartedAt   *time.Time `yaml:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `yaml:"completed_at,omitempty" json:"completed_at,omitempty"`
}

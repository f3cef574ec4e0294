package worker

import (
	"sort"
	"sync"
	"time"
)

// Registry is the concurrency-safe store of workers, keyed by ID.
//
// Every method is linearizable with respect to every other: the scheduler
// relies on read-after-write consistency here so that a worker flipped to
// BUSY by one assignment is never picked again by a concurrent sweep.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	clock   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]*Worker),
		clock:   time.Now,
	}
}

// Get returns a copy of the worker with the given ID.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return Worker{}, false
	}
	return *w, true
}

// GetAll returns a snapshot of all workers, sorted by ID.
func (r *Registry) GetAll() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		all = append(all, *w)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Register upserts a worker. It fails only when the ID is empty; an existing
// entry with the same ID is replaced.
func (r *Registry) Register(w Worker) bool {
	if w.ID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.LastActivity.IsZero() {
		w.LastActivity = r.clock()
	}
	r.workers[w.ID] = &w
	return true
}

// UpdateStatus sets the worker's status and refreshes its last-activity
// timestamp. The current task reference is overwritten only when a non-empty
// value is supplied. Returns false for unknown IDs, with no mutation.
func (r *Registry) UpdateStatus(id string, status Status, currentTaskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.Status = status
	w.LastActivity = r.clock()
	if currentTaskID != "" {
		w.CurrentTaskID = currentTaskID
	}
	return true
}

// FindAvailable returns workers with status IDLE or BUSY, optionally filtered
// to those bound to the given repository path (normalized comparison). An
// empty repoPath applies no path filter.
func (r *Registry) FindAvailable(repoPath string) []Worker {
	want := NormalizeRepoPath(repoPath)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found []Worker
	for _, w := range r.workers {
		if !w.Available() {
			continue
		}
		if want != "" && NormalizeRepoPath(w.RepoPath) != want {
			continue
		}
		found = append(found, *w)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found
}

// ReplaceAll swaps the registry contents for the given worker set in one
// step. Building the new map off to the side and publishing it under the
// lock means concurrent readers never observe the cleared-but-unfilled
// window a clear-then-insert sequence would leave.
func (r *Registry) ReplaceAll(workers []Worker) {
	next := make(map[string]*Worker, len(workers))
	for i := range workers {
		w := workers[i]
		if w.ID == "" {
			continue
		}
		next[w.ID] = &w
	}
	r.mu.Lock()
	r.workers = next
	r.mu.Unlock()
}

// ClearAll removes every worker.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.workers = make(map[string]*Worker)
	r.mu.Unlock()
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

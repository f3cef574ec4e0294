package discovery

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/codeyard/dispatch/internal/eventbus"
	"github.com/codeyard/dispatch/internal/worker"
)

// DefaultActivityWindow is how recent executor activity must be for a
// discovered worker to be classified BUSY.
const DefaultActivityWindow = 2 * time.Minute

// Reconciler merges externally discovered worker descriptors into the
// registry as a full replacement under a default-status policy.
type Reconciler struct {
	registry *worker.Registry
	bus      *eventbus.Bus
	window   time.Duration
	clock    func() time.Time
}

func NewReconciler(registry *worker.Registry, bus *eventbus.Bus, window time.Duration) *Reconciler {
	if window <= 0 {
		window = DefaultActivityWindow
	}
	return &Reconciler{
		registry: registry,
		bus:      bus,
		window:   window,
		clock:    time.Now,
	}
}

// ReconcileAll replaces the registry contents with the given descriptor
// batch. Returns the number of workers registered.
//
// Status policy: a discovered worker is BUSY when its executor was active
// within the activity window, IDLE otherwise. Discovery never produces
// ERROR or OFFLINE; a session file proves the session exists, nothing more.
//
// Workers that vanish from the batch are dropped even when tasks still
// reference them. Workers that persist keep their current task reference
// so an in-flight assignment survives rediscovery.
func (r *Reconciler) ReconcileAll(descriptors []Descriptor) int {
	now := r.clock()
	workers := make([]worker.Worker, 0, len(descriptors))
	for _, d := range descriptors {
		if d.ID == "" {
			slog.Warn("skipping discovered worker without id", "session_ref", d.SessionRef)
			continue
		}
		w := worker.Worker{
			ID:           d.ID,
			Name:         d.Name,
			Kind:         d.Kind,
			RepoPath:     d.RepoPath,
			Status:       r.classify(now, d),
			LastActivity: d.LastActivityAt,
		}
		if w.Name == "" {
			w.Name = d.ID
		}
		if w.LastActivity.IsZero() {
			w.LastActivity = now
		}
		if prev, ok := r.registry.Get(d.ID); ok {
			w.CurrentTaskID = prev.CurrentTaskID
		}
		workers = append(workers, w)
	}

	r.registry.ReplaceAll(workers)
	r.bus.PublishNew(eventbus.TypeWorkerReconciled, "", map[string]string{
		"discovered": strconv.Itoa(len(descriptors)),
		"registered": strconv.Itoa(len(workers)),
	})
	slog.Debug("workers reconciled", "discovered", len(descriptors), "registered", len(workers))
	return len(workers)
}

func (r *Reconciler) classify(now time.Time, d Descriptor) worker.Status {
	if d.RecentExecutorActivity && now.Sub(d.LastActivityAt) <= r.window {
		return worker.StatusBusy
	}
	return worker.StatusIdle
}

package discovery

import (
	"context"
	"time"
)

// Descriptor is what an external discovery source knows about a worker.
// It is mapped into a registry entry by the Reconciler's status policy.
type Descriptor struct {
	ID                     string    `yaml:"id"`
	Name                   string    `yaml:"name"`
	Kind                   string    `yaml:"kind"`
	RepoPath               string    `yaml:"repo_path"`
	SessionRef             string    `yaml:"session_ref"`
	LastActivityAt         time.Time `yaml:"last_activity_at"`
	RecentExecutorActivity bool      `yaml:"recent_executor_activity"`
}

// Provider produces the current set of worker descriptors from an external
// source. DiscoverAll may be slow (I/O bound) and must therefore never be
// called while holding registry or engine locks.
type Provider interface {
	DiscoverAll(ctx context.Context) ([]Descriptor, error)
}

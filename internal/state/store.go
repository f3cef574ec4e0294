package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeyard/dispatch/internal/scheduler"
	"github.com/codeyard/dispatch/pkg/storage"
)

const snapshotPath = "state/snapshot.yaml"

type snapshotFile struct {
	SavedAt  time.Time          `yaml:"saved_at"`
	Snapshot scheduler.Snapshot `yaml:"snapshot"`
}

// Store persists engine snapshots so the task queue survives restarts.
// Workers are not restored from snapshots; discovery rebuilds the registry
// from live sessions on startup.
type Store struct {
	storage storage.Storage
}

func NewStore(s storage.Storage) *Store {
	return &Store{storage: s}
}

// Save implements scheduler.Sink.
func (s *Store) Save(snap scheduler.Snapshot) error {
	data, err := yaml.Marshal(snapshotFile{
		SavedAt:  time.Now(),
		Snapshot: snap,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.storage.Write(context.Background(), snapshotPath, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Load returns the last saved snapshot, or ok=false when none exists yet.
func (s *Store) Load(ctx context.Context) (scheduler.Snapshot, bool, error) {
	data, err := s.storage.Read(ctx, snapshotPath)
	if errors.Is(err, storage.ErrNotFound) {
		return scheduler.Snapshot{}, false, nil
	}
	if err != nil {
		return scheduler.Snapshot{}, false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return scheduler.Snapshot{}, false, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return file.Snapshot, true, nil
}

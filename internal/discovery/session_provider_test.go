package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeyard/dispatch/pkg/storage"
)

func writeSession(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sessions"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions", name), []byte(content), 0o644))
}

func TestSessionProviderDiscoverAll(t *testing.T) {
	dir := t.TempDir()
	writeSession(t, dir, "w1.yaml", `
id: W1
name: builder
kind: agent
repo_path: /srv/repoA
recent_executor_activity: true
`)
	writeSession(t, dir, "w2.yaml", `
id: W2
repo_path: /srv/repoB
session_ref: tmux:w2
`)
	writeSession(t, dir, "broken.yaml", "{not yaml")
	writeSession(t, dir, "notes.txt", "ignored")

	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	p := NewSessionProvider(store, "sessions")
	descriptors, err := p.DiscoverAll(context.Background())
	require.NoError(t, err)
	require.Len(t, descriptors, 2, "broken and non-yaml files are skipped")

	byID := map[string]Descriptor{}
	for _, d := range descriptors {
		byID[d.ID] = d
	}
	assert.Equal(t, "builder", byID["W1"].Name)
	assert.True(t, byID["W1"].RecentExecutorActivity)
	assert.Equal(t, "sessions/w1.yaml", byID["W1"].SessionRef, "session ref defaults to the file path")
	assert.Equal(t, "tmux:w2", byID["W2"].SessionRef)
}

func TestSessionProviderEmptyDir(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	p := NewSessionProvider(store, "sessions")
	descriptors, err := p.DiscoverAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, descriptors)
}

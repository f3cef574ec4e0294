package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codeyard/dispatch/pkg/storage"
)

// SessionProvider discovers workers from session files: one YAML file per
// live worker session under a storage prefix, written by the workers
// themselves. A file that cannot be read or parsed is skipped; one broken
// session never hides the rest of the fleet.
type SessionProvider struct {
	storage storage.Storage
	prefix  string
}

func NewSessionProvider(s storage.Storage, prefix string) *SessionProvider {
	return &SessionProvider{
		storage: s,
		prefix:  strings.Trim(prefix, "/"),
	}
}

func (p *SessionProvider) DiscoverAll(ctx context.Context) ([]Descriptor, error) {
	paths, err := p.storage.List(ctx, p.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var descriptors []Descriptor
	for _, path := range paths {
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			continue
		}
		data, err := p.storage.Read(ctx, path)
		if err != nil {
			slog.Warn("skipping unreadable session file", "path", path, "error", err)
			continue
		}
		var d Descriptor
		if err := yaml.Unmarshal(data, &d); err != nil {
			slog.Warn("skipping malformed session file", "path", path, "error", err)
			continue
		}
		if d.SessionRef == "" {
			d.SessionRef = path
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

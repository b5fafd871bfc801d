package workspace

import (
	"context"
	"log/slog"
	"os"

	"go.yaml.in/yaml/v3"
)

// manifestEntry is one worktree's cached metadata.
type manifestEntry struct {
	Path       string `yaml:"path"`
	BranchName string `yaml:"branch_name"`
}

// manifest is a crash-recovery cache of created worktrees. It is never
// the source of truth — List() always asks git directly — and startup
// recovery reads it only when List() fails.
type manifest struct {
	Worktrees []manifestEntry `yaml:"worktrees"`
}

func (m *Manager) loadManifest() (*manifest, error) {
	data, err := os.ReadFile(m.manifestPath)
	if os.IsNotExist(err) {
		return &manifest{}, nil
	}
	if err != nil {
		return nil, err
	}
	var mf manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, err
	}
	return &mf, nil
}

func (m *Manager) saveManifest(mf *manifest) error {
	data, err := yaml.Marshal(mf)
	if err != nil {
		return err
	}
	return os.WriteFile(m.manifestPath, data, 0o644)
}

// recordManifest appends ws to the on-disk manifest, best-effort.
func (m *Manager) recordManifest(ctx context.Context, ws *Workspace) {
	mf, err := m.loadManifest()
	if err != nil {
		slog.Warn("Reading worktree manifest failed, continuing without cache", "error", err)
		return
	}
	mf.Worktrees = append(mf.Worktrees, manifestEntry{Path: ws.Path, BranchName: ws.BranchName})
	if err := m.saveManifest(mf); err != nil {
		slog.Warn("Writing worktree manifest failed, continuing without cache", "error", err)
	}
}

// forgetManifest removes path from the on-disk manifest, best-effort.
func (m *Manager) forgetManifest(path string) {
	mf, err := m.loadManifest()
	if err != nil {
		return
	}
	kept := mf.Worktrees[:0]
	for _, e := range mf.Worktrees {
		if e.Path != path {
			kept = append(kept, e)
		}
	}
	mf.Worktrees = kept
	_ = m.saveManifest(mf)
}

// CachedWorktrees returns the manifest's view of known worktrees. List()
// is authoritative; startup recovery falls back to this view only when
// List() fails.
func (m *Manager) CachedWorktrees() ([]string, error) {
	mf, err := m.loadManifest()
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(mf.Worktrees))
	for _, e := range mf.Worktrees {
		paths = append(paths, e.Path)
	}
	return paths, nil
}

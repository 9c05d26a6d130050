// Package registry persists Branch records as a sidecar file inside each
// branch's own workspace directory. There is no separate index: List scans
// the workspaces root, so the filesystem itself is the source of truth and
// a restarted process recovers its full state without replaying history.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/hovel-dev/hovel/internal/model"
)

// sidecarName is the metadata file written inside every branch workspace.
const sidecarName = ".branch"

// ErrNotFound is returned by Get when no branch with the given name exists.
var ErrNotFound = errors.New("registry: branch not found")

// Registry reads and writes Branch records under a workspaces root.
type Registry struct {
	root string
}

// New returns a Registry rooted at dir. The directory is created if absent.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: creating workspaces root: %w", err)
	}
	return &Registry{root: dir}, nil
}

// Root returns the workspaces root directory.
func (r *Registry) Root() string {
	return r.root
}

// WorkspacePath returns the directory a branch named name would live in,
// whether or not it currently exists.
func (r *Registry) WorkspacePath(name string) string {
	return filepath.Join(r.root, name)
}

func sidecarPath(workspacePath string) string {
	return filepath.Join(workspacePath, sidecarName)
}

// Get loads a single branch record by name.
func (r *Registry) Get(name string) (*model.Branch, error) {
	path := sidecarPath(r.WorkspacePath(name))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: reading %s: %w", path, err)
	}

	var b model.Branch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("registry: decoding %s: %w", path, err)
	}
	return &b, nil
}

// Save writes a branch record atomically: the JSON is written to a
// temporary sibling file and then renamed over the sidecar, so a crash
// mid-write never leaves a corrupted .branch file.
func (r *Registry) Save(b *model.Branch) error {
	ws := r.WorkspacePath(b.Name)
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return fmt.Errorf("registry: creating workspace %s: %w", ws, err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: encoding branch %s: %w", b.Name, err)
	}

	target := sidecarPath(ws)
	tmp, err := os.CreateTemp(ws, ".branch.*.tmp")
	if err != nil {
		return fmt.Errorf("registry: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("registry: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("registry: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("registry: renaming into place: %w", err)
	}
	return nil
}

// Delete removes a branch's entire workspace directory. Errors from an
// already-absent workspace are treated as success.
func (r *Registry) Delete(name string) error {
	ws := r.WorkspacePath(name)
	if err := os.RemoveAll(ws); err != nil {
		return fmt.Errorf("registry: removing workspace %s: %w", ws, err)
	}
	return nil
}

// List scans every subdirectory of the workspaces root and returns the
// branches with a readable sidecar file. Entries that fail to parse are
// skipped and logged, not returned as an error, since a single corrupt
// record should not block visibility into every other branch.
func (r *Registry) List() ([]*model.Branch, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: scanning %s: %w", r.root, err)
	}

	branches := make([]*model.Branch, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b, err := r.Get(e.Name())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			log.WithFields(log.Fields{"branch": e.Name()}).Warnf("registry: skipping unreadable branch: %v", err)
			continue
		}
		branches = append(branches, b)
	}
	return branches, nil
}

// Package vcs creates and removes branches in the controller's own git
// working tree. All operations act on shared working-tree state, so
// callers must serialize access through a single Adapter instance.
package vcs

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

var (
	// ErrBranchExists is returned by CreateBranch when the branch is
	// already present.
	ErrBranchExists = errors.New("vcs: branch already exists")
	// ErrNotARepo is returned when repoDir isn't a git working tree.
	ErrNotARepo = errors.New("vcs: not a git repository")
	// ErrVCSUnavailable wraps any other git invocation failure.
	ErrVCSUnavailable = errors.New("vcs: git invocation failed")
)

// Adapter performs git operations against a single working tree. All
// methods take a controller-wide lock since checking out a branch mutates
// shared working-tree state.
type Adapter struct {
	mu      sync.Mutex
	repoDir string
}

// New returns an Adapter operating on the git repository at repoDir.
func New(repoDir string) *Adapter {
	return &Adapter{repoDir: repoDir}
}

// CreateBranch creates a new branch from the current HEAD and checks it
// out.
func (a *Adapter) CreateBranch(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isRepo() {
		return ErrNotARepo
	}
	if a.branchExists(name) {
		return ErrBranchExists
	}

	out, err := a.git("checkout", "-b", name)
	if err != nil {
		return fmt.Errorf("%w: git checkout -b %s: %s", ErrVCSUnavailable, name, strings.TrimSpace(out))
	}
	return nil
}

// DeleteBranch removes a branch. An absent branch is not treated as an
// error. If the branch is currently checked out, "main" is checked out
// first; if `git branch -D` still fails, the failure is returned wrapped
// in ErrVCSUnavailable.
func (a *Adapter) DeleteBranch(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.branchExists(name) {
		return nil
	}

	// Check out a safe branch first if the one being deleted is current.
	if a.currentBranch() == name {
		a.git("checkout", "main")
	}

	if _, err := a.git("branch", "-D", name); err != nil {
		return fmt.Errorf("%w: git branch -D %s", ErrVCSUnavailable, name)
	}
	return nil
}

func (a *Adapter) isRepo() bool {
	_, err := a.git("rev-parse", "--is-inside-work-tree")
	return err == nil
}

func (a *Adapter) branchExists(name string) bool {
	_, err := a.git("show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

func (a *Adapter) currentBranch() string {
	out, err := a.git("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (a *Adapter) git(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = a.repoDir
	out, err := cmd.CombinedOutput()
	return string(out), err
}

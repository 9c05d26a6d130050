// Package terminal starts interactive ttyd web-terminal sessions inside a
// branch's running container, exposing a command-line AI tool over HTTP.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hovel-dev/hovel/internal/container"
	"github.com/hovel-dev/hovel/internal/model"
)

var (
	ErrBranchNotFound      = errors.New("terminal: branch not found")
	ErrContainerNotRunning = errors.New("terminal: container not running")
	ErrSessionStartFailed  = errors.New("terminal: session failed to start")
)

// Starter is the subset of the container controller the terminal manager
// needs: starting a command inside a branch's running service.
type Starter interface {
	Exec(ctx context.Context, workspace, service string, command ...string) (*container.ExecHandle, error)
}

// Manager starts and records ttyd sessions for branches.
type Manager struct {
	containers Starter
	command    string
	host       string
}

// New returns a Manager that execs ttyd via containers, running command
// (e.g. "gemini") inside the session, and reports URLs against host.
func New(containers Starter, command, host string) *Manager {
	return &Manager{containers: containers, command: command, host: host}
}

// Start launches a ttyd session inside the branch's primary service and
// returns the resulting session record. The branch must already be
// running; the caller is responsible for persisting the returned session
// onto the branch record.
func (m *Manager) Start(ctx context.Context, b *model.Branch, primaryService string) (*model.TerminalSession, error) {
	if b.Status != model.StatusRunning {
		return nil, ErrContainerNotRunning
	}

	ttydPort := b.TTYDPort()
	args := []string{"ttyd", "-o", "-W", "-p", itoa(ttydPort), m.command}

	if _, err := m.containers.Exec(ctx, b.WorkspacePath, primaryService, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionStartFailed, err)
	}

	session := &model.TerminalSession{
		Port:      ttydPort,
		URL:       fmt.Sprintf("http://%s:%d", m.host, ttydPort),
		StartedAt: time.Now().UTC(),
		Command:   fmt.Sprintf("ttyd -o -W -p %d %s", ttydPort, m.command),
	}
	return session, nil
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

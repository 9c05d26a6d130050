// Package container drives the host container engine (docker compose) for
// a branch's workspace. Every operation shells out to the compose CLI and
// is bounded by a timeout so a hung subprocess can't block a caller
// forever.
package container

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	ErrBuildFailed     = errors.New("container: build failed")
	ErrStartFailed     = errors.New("container: start failed")
	ErrStopFailed      = errors.New("container: stop failed")
	ErrQueryFailed     = errors.New("container: status query failed")
	ErrLogFailed       = errors.New("container: log fetch failed")
	ErrNotRunning      = errors.New("container: service not running")
	ErrUnknownService  = errors.New("container: unknown service")
)

// ServiceState is the liveness of a single compose service.
type ServiceState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Controller drives docker-compose against a branch's workspace directory.
type Controller struct {
	buildTimeout time.Duration
	opTimeout    time.Duration
}

// New returns a Controller with the given build and general-operation
// timeouts.
func New(buildTimeout, opTimeout time.Duration) *Controller {
	return &Controller{buildTimeout: buildTimeout, opTimeout: opTimeout}
}

// Build builds every image declared by the workspace's rendered compose
// file.
func (c *Controller) Build(ctx context.Context, workspace string) error {
	ctx, cancel := context.WithTimeout(ctx, c.buildTimeout)
	defer cancel()

	out, err := c.compose(ctx, workspace, "build")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBuildFailed, lastLines(out, 50))
	}
	return nil
}

// Up starts the given services in detached mode, or every declared
// service if services is empty.
func (c *Controller) Up(ctx context.Context, workspace string, services ...string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	args := append([]string{"up", "-d"}, services...)
	out, err := c.compose(ctx, workspace, args...)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStartFailed, lastLines(out, 50))
	}
	return nil
}

// Down stops and removes every service in the workspace's container
// group.
func (c *Controller) Down(ctx context.Context, workspace string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	out, err := c.compose(ctx, workspace, "down")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStopFailed, lastLines(out, 50))
	}
	return nil
}

// Restart stops and restarts every service.
func (c *Controller) Restart(ctx context.Context, workspace string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	out, err := c.compose(ctx, workspace, "restart")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrStartFailed, lastLines(out, 50))
	}
	return nil
}

// composePSEntry mirrors the fields docker compose ps --format json emits
// that the controller cares about.
type composePSEntry struct {
	Service string `json:"Service"`
	State   string `json:"State"`
}

// Status queries liveness for every service in the workspace.
func (c *Controller) Status(ctx context.Context, workspace string) ([]ServiceState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	out, err := c.compose(ctx, workspace, "ps", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrQueryFailed, lastLines(out, 20))
	}

	states, err := parsePS(out)
	if err != nil {
		log.WithError(err).Warn("container: failed to parse compose ps output")
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	return states, nil
}

// parsePS handles both the single-JSON-array form and the
// newline-delimited-JSON-object form that different compose versions emit
// for `ps --format json`.
func parsePS(out string) ([]ServiceState, error) {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var entries []composePSEntry
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, err
		}
		return toServiceStates(entries), nil
	}

	var entries []composePSEntry
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e composePSEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return toServiceStates(entries), nil
}

func toServiceStates(entries []composePSEntry) []ServiceState {
	states := make([]ServiceState, 0, len(entries))
	for _, e := range entries {
		states = append(states, ServiceState{Name: e.Service, State: e.State})
	}
	return states
}

// Logs returns the last `lines` lines of combined output across the
// workspace's services.
func (c *Controller) Logs(ctx context.Context, workspace string, lines int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if lines <= 0 {
		lines = 100
	}
	out, err := c.compose(ctx, workspace, "logs", "--tail", fmt.Sprintf("%d", lines))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrLogFailed, lastLines(out, 20))
	}
	return out, nil
}

// ExecHandle represents a process started inside a running service.
type ExecHandle struct {
	cmd *exec.Cmd
}

// Wait blocks until the exec'd process exits.
func (h *ExecHandle) Wait() error {
	return h.cmd.Wait()
}

// Exec starts a command inside a running service container and returns a
// handle the caller can wait on. It does not itself enforce a timeout,
// since interactive sessions (e.g. a ttyd server) are expected to run for
// the lifetime of the client connection.
func (c *Controller) Exec(ctx context.Context, workspace, service string, command ...string) (*ExecHandle, error) {
	args := append([]string{"exec", "-T", service}, command...)
	cmd := exec.CommandContext(ctx, "docker-compose", args...)
	cmd.Dir = workspace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRunning, service, err)
	}
	return &ExecHandle{cmd: cmd}, nil
}

func (c *Controller) compose(ctx context.Context, workspace string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker-compose", args...)
	cmd.Dir = workspace
	out, err := cmd.CombinedOutput()

	log.WithFields(log.Fields{"workspace": workspace, "args": args}).Debug("container: ran docker-compose")
	return string(out), err
}

// lastLines returns at most n trailing lines of s, used to bound the
// amount of subprocess output attached to an error.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// Package model holds the data types shared across hovel's components.
package model

import "time"

// Status is the lifecycle state of a Branch.
type Status string

const (
	StatusCreated  Status = "created"
	StatusBuilding Status = "building"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
	StatusDeleting Status = "deleting"
)

// TerminalSession describes a live ttyd web-terminal attached to a branch.
type TerminalSession struct {
	Port      int       `json:"port"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`
	Command   string    `json:"command"`
}

// Branch is the unit of isolation: a workspace, a port, a container group,
// and the version-control branch backing them.
type Branch struct {
	Name                string           `json:"branch_name"`
	Port                int              `json:"port"`
	WorkspacePath       string           `json:"workspace_path"`
	Services            []string         `json:"services"`
	Status              Status           `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	CredentialValidated bool             `json:"gemini_api_validated"`
	TerminalSession     *TerminalSession `json:"terminal_session,omitempty"`

	// Fields supplementing the distilled record, carried over from the
	// original Python implementation's branch metadata.
	GitBranch         string `json:"git_branch"`
	ContainerStarted  bool   `json:"container_started"`
	GeminiConfigPath  string `json:"gemini_config_path,omitempty"`
}

// TTYDPort returns the derived terminal port, or 0 if none is assigned.
func (b *Branch) TTYDPort() int {
	if b.Port == 0 {
		return 0
	}
	return b.Port + 1000
}

// Package config loads hovel's runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
)

// Defaults for every tunable, per the environment variable table.
const (
	DefaultPort             = "8000"
	DefaultTemplatePath     = "/opt/hovel-templates/app-template"
	DefaultWorkspacesRoot   = "./branches"
	DefaultBaseBranchPort   = 8001
	DefaultMaxBranchPort    = 8999
	DefaultBuildConcurrency = 4
	DefaultBuildTimeoutSec  = 600
	DefaultTTYDCommand      = "gemini"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// StartupServerURLFormat is the format for the "server listening" log line (one %s for port).
const StartupServerURLFormat = "hoveld listening on http://localhost:%s"

// Config holds every environment-driven setting the orchestrator needs.
type Config struct {
	Port             string
	TemplatePath     string
	WorkspacesRoot   string
	BaseBranchPort   int
	MaxBranchPort    int
	BuildConcurrency int
	BuildTimeoutSec  int
	TTYDCommand      string
	LogLevel         string
	LogFormat        string
}

// Load reads configuration from the environment, falling back to defaults
// for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("HOVEL_PORT", DefaultPort),
		TemplatePath:     getEnv("APP_TEMPLATE_PATH", DefaultTemplatePath),
		WorkspacesRoot:   getEnv("WORKSPACES_ROOT", DefaultWorkspacesRoot),
		TTYDCommand:      getEnv("TTYD_COMMAND", DefaultTTYDCommand),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
	}

	var err error
	if cfg.BaseBranchPort, err = getEnvInt("BASE_BRANCH_PORT", DefaultBaseBranchPort); err != nil {
		return nil, err
	}
	if cfg.MaxBranchPort, err = getEnvInt("MAX_BRANCH_PORT", DefaultMaxBranchPort); err != nil {
		return nil, err
	}
	if cfg.BuildConcurrency, err = getEnvInt("BUILD_CONCURRENCY", DefaultBuildConcurrency); err != nil {
		return nil, err
	}
	if cfg.BuildTimeoutSec, err = getEnvInt("BUILD_TIMEOUT_SEC", DefaultBuildTimeoutSec); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HOVEL_PORT", "APP_TEMPLATE_PATH", "WORKSPACES_ROOT", "BASE_BRANCH_PORT", "MAX_BRANCH_PORT", "BUILD_CONCURRENCY", "BUILD_TIMEOUT_SEC", "TTYD_COMMAND"} {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.BaseBranchPort != DefaultBaseBranchPort {
		t.Errorf("BaseBranchPort = %d, want %d", cfg.BaseBranchPort, DefaultBaseBranchPort)
	}
	if cfg.MaxBranchPort != DefaultMaxBranchPort {
		t.Errorf("MaxBranchPort = %d, want %d", cfg.MaxBranchPort, DefaultMaxBranchPort)
	}
	if cfg.TTYDCommand != DefaultTTYDCommand {
		t.Errorf("TTYDCommand = %q, want %q", cfg.TTYDCommand, DefaultTTYDCommand)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("HOVEL_PORT", "9000")
	os.Setenv("BASE_BRANCH_PORT", "9001")
	defer os.Unsetenv("HOVEL_PORT")
	defer os.Unsetenv("BASE_BRANCH_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.BaseBranchPort != 9001 {
		t.Errorf("BaseBranchPort = %d, want 9001", cfg.BaseBranchPort)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	os.Setenv("BUILD_CONCURRENCY", "not-a-number")
	defer os.Unsetenv("BUILD_CONCURRENCY")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid BUILD_CONCURRENCY")
	}
}

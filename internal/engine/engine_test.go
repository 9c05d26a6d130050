package engine

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hovel-dev/hovel/internal/container"
	"github.com/hovel-dev/hovel/internal/credential"
	"github.com/hovel-dev/hovel/internal/portalloc"
	"github.com/hovel-dev/hovel/internal/registry"
	"github.com/hovel-dev/hovel/internal/render"
	"github.com/hovel-dev/hovel/internal/vcs"
)

func fakeComposeOnPath(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "docker-compose")
	script := "#!/bin/sh\ncase \"$1\" in\n  ps) echo '[{\"Service\":\"app\",\"State\":\"running\"}]';;\n  *) ;;\nesac\nexit 0\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	oldPath := os.Getenv("PATH")
	os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath)
	t.Cleanup(func() { os.Setenv("PATH", oldPath) })
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	run("commit", "--allow-empty", "-m", "init")
	return dir
}

func writeTemplate(t *testing.T, root string) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(os.WriteFile(filepath.Join(root, ".env"), []byte("PORT={{PORT}}\n"), 0o644))
	must(os.WriteFile(filepath.Join(root, "docker-compose.branch.template.yaml"), []byte(strings.TrimSpace(`
services:
  app-{{BRANCH_NAME}}:
    image: app:latest
`)+"\n"), 0o644))
}

type testEngine struct {
	engine *Engine
	repo   string
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	fakeComposeOnPath(t)

	templateRoot := t.TempDir()
	writeTemplate(t, templateRoot)

	repo := initRepo(t)
	reg, err := registry.New(filepath.Join(repo, "branches"))
	if err != nil {
		t.Fatal(err)
	}

	e := New(Config{
		Registry:         reg,
		Ports:            portalloc.New(8001, 8099),
		Renderer:         render.New(templateRoot),
		Credential:       credential.New(),
		VCS:              vcs.New(repo),
		Containers:       container.New(5*time.Second, 5*time.Second),
		TemplateServices: []string{"app"},
		BuildConcurrency: 2,
	})
	return &testEngine{engine: e, repo: repo}
}

func TestCreateAssignsPortAndStatus(t *testing.T) {
	te := newTestEngine(t)
	b, err := te.engine.Create(context.Background(), CreateRequest{
		Name:   "alpha",
		APIKey: credential.TestKey,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.Port != 8001 {
		t.Errorf("Port = %d, want 8001", b.Port)
	}
	if b.Status != "created" {
		t.Errorf("Status = %v, want created", b.Status)
	}
	if len(b.Services) != 1 || b.Services[0] != "app" {
		t.Errorf("Services = %v, want [app]", b.Services)
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	if _, err := te.engine.Create(ctx, CreateRequest{Name: "alpha", APIKey: credential.TestKey}); err != nil {
		t.Fatal(err)
	}
	if _, err := te.engine.Create(ctx, CreateRequest{Name: "alpha", APIKey: credential.TestKey}); err != ErrBranchExists {
		t.Errorf("err = %v, want ErrBranchExists", err)
	}
}

func TestCreateInvalidNameRejected(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.Create(context.Background(), CreateRequest{Name: "-bad", APIKey: credential.TestKey})
	if err != ErrInvalidName {
		t.Errorf("err = %v, want ErrInvalidName", err)
	}
}

func TestCreateUnknownServiceRejectedBeforeAllocatingPort(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.Create(context.Background(), CreateRequest{
		Name:     "alpha",
		Services: []string{"nope"},
		APIKey:   credential.TestKey,
	})
	if !errors.Is(err, render.ErrUnknownService) {
		t.Fatalf("err = %v, want ErrUnknownService", err)
	}
	if te.engine.ports.InUse(8001) {
		t.Error("port 8001 should not have been allocated when the service check fails fast")
	}
}

func TestCreateMissingCredentialRejected(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.engine.Create(context.Background(), CreateRequest{Name: "alpha", APIKey: ""})
	if err != ErrMissingCredential {
		t.Errorf("err = %v, want ErrMissingCredential", err)
	}
}

func TestSequentialCreatesGetDistinctPorts(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	b1, err := te.engine.Create(ctx, CreateRequest{Name: "alpha", APIKey: credential.TestKey})
	if err != nil {
		t.Fatal(err)
	}
	b2, err := te.engine.Create(ctx, CreateRequest{Name: "beta", APIKey: credential.TestKey})
	if err != nil {
		t.Fatal(err)
	}
	if b1.Port == b2.Port {
		t.Errorf("both branches got port %d", b1.Port)
	}
}

func TestDeleteReleasesPort(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	b1, err := te.engine.Create(ctx, CreateRequest{Name: "alpha", APIKey: credential.TestKey})
	if err != nil {
		t.Fatal(err)
	}
	if err := te.engine.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	b2, err := te.engine.Create(ctx, CreateRequest{Name: "beta", APIKey: credential.TestKey})
	if err != nil {
		t.Fatal(err)
	}
	if b2.Port != b1.Port {
		t.Errorf("expected released port %d to be reused, got %d", b1.Port, b2.Port)
	}
}

func TestDeleteNotFound(t *testing.T) {
	te := newTestEngine(t)
	if err := te.engine.Delete(context.Background(), "missing"); err != ErrBranchNotFound {
		t.Errorf("err = %v, want ErrBranchNotFound", err)
	}
}

func TestGetNotFound(t *testing.T) {
	te := newTestEngine(t)
	if _, err := te.engine.Get("missing"); err != ErrBranchNotFound {
		t.Errorf("err = %v, want ErrBranchNotFound", err)
	}
}

func TestRecoverySeedsPortsAndReconciles(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	if _, err := te.engine.Create(ctx, CreateRequest{Name: "alpha", APIKey: credential.TestKey, AutoStart: true}); err != nil {
		t.Fatal(err)
	}

	// Simulate a fresh process by constructing a new engine over the
	// same registry/port range and recovering.
	reg, _ := registry.New(filepath.Join(te.repo, "branches"))
	fresh := New(Config{
		Registry:   reg,
		Ports:      portalloc.New(8001, 8099),
		Renderer:   render.New(t.TempDir()),
		Credential: credential.New(),
		VCS:        vcs.New(te.repo),
		Containers: container.New(5*time.Second, 5*time.Second),
	})
	if err := fresh.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	// The fake compose reports "app" running, so the reconciled status
	// must be running.
	b, err := fresh.Get("alpha")
	if err != nil {
		t.Fatalf("Get after Recover: %v", err)
	}
	if b.Status != "running" {
		t.Errorf("Status after Recover = %v, want running", b.Status)
	}

	// The seeded port must not be reallocated.
	p, err := fresh.ports.Allocate()
	if err != nil {
		t.Fatal(err)
	}
	if p == 8001 {
		t.Errorf("recovered allocator reused port 8001 despite existing branch")
	}
}

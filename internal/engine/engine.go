// Package engine implements BranchEngine: the orchestrator that sequences
// credential validation, port allocation, VCS branch creation, template
// rendering, and container lifecycle operations behind a single,
// per-branch-serialized API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hovel-dev/hovel/internal/container"
	"github.com/hovel-dev/hovel/internal/credential"
	"github.com/hovel-dev/hovel/internal/model"
	"github.com/hovel-dev/hovel/internal/portalloc"
	"github.com/hovel-dev/hovel/internal/registry"
	"github.com/hovel-dev/hovel/internal/render"
	"github.com/hovel-dev/hovel/internal/vcs"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

var (
	ErrInvalidName         = errors.New("engine: invalid branch name")
	ErrBranchExists        = errors.New("engine: branch already exists")
	ErrBranchNotFound      = errors.New("engine: branch not found")
	ErrCredentialInvalid   = errors.New("engine: credential invalid")
	ErrCredentialTransient = errors.New("engine: credential provider unreachable")
	ErrMissingCredential   = errors.New("engine: api key is required")
)

// branchLocks lazily allocates a mutex per branch name and never removes
// entries — cheap to keep around, and guarantees every caller serializing
// on the same name blocks on the same lock.
type branchLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newBranchLocks() *branchLocks {
	return &branchLocks{locks: make(map[string]*sync.Mutex)}
}

func (b *branchLocks) get(name string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[name]
	if !ok {
		l = &sync.Mutex{}
		b.locks[name] = l
	}
	return l
}

// Engine orchestrates the full branch lifecycle.
type Engine struct {
	registry   *registry.Registry
	ports      *portalloc.Allocator
	renderer   *render.Renderer
	credential *credential.Validator
	vcsAdapter *vcs.Adapter
	containers *container.Controller

	templateServices []string
	locks            *branchLocks

	buildSem chan struct{}
}

// Config gathers the dependencies and tunables an Engine needs.
type Config struct {
	Registry         *registry.Registry
	Ports            *portalloc.Allocator
	Renderer         *render.Renderer
	Credential       *credential.Validator
	VCS              *vcs.Adapter
	Containers       *container.Controller
	TemplateServices []string
	BuildConcurrency int
}

// New constructs an Engine from its dependencies.
func New(cfg Config) *Engine {
	concurrency := cfg.BuildConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Engine{
		registry:         cfg.Registry,
		ports:            cfg.Ports,
		renderer:         cfg.Renderer,
		credential:       cfg.Credential,
		vcsAdapter:       cfg.VCS,
		containers:       cfg.Containers,
		templateServices: cfg.TemplateServices,
		locks:            newBranchLocks(),
		buildSem:         make(chan struct{}, concurrency),
	}
}

// Recover rebuilds the port allocator's used set from the registry and
// reconciles each branch's persisted status against the live container
// engine. It should be called once at startup before serving requests.
func (e *Engine) Recover(ctx context.Context) error {
	branches, err := e.registry.List()
	if err != nil {
		return fmt.Errorf("engine: recovering: %w", err)
	}

	ports := make([]int, 0, len(branches))
	for _, b := range branches {
		ports = append(ports, b.Port)
	}
	e.ports.Seed(ports)

	for _, b := range branches {
		e.reconcileStatus(ctx, b)
	}
	return nil
}

func (e *Engine) reconcileStatus(ctx context.Context, b *model.Branch) {
	if b.Status != model.StatusRunning && b.Status != model.StatusStopped && b.Status != model.StatusBuilding {
		return
	}

	states, err := e.containers.Status(ctx, b.WorkspacePath)
	if err != nil {
		log.WithFields(log.Fields{"branch": b.Name}).Warnf("engine: recover: status query failed: %v", err)
		return
	}

	anyRunning := false
	for _, s := range states {
		if s.State == "running" {
			anyRunning = true
			break
		}
	}

	newStatus := model.StatusStopped
	if anyRunning {
		newStatus = model.StatusRunning
	}
	if newStatus != b.Status {
		b.Status = newStatus
		if err := e.registry.Save(b); err != nil {
			log.WithFields(log.Fields{"branch": b.Name}).Warnf("engine: recover: persisting reconciled status failed: %v", err)
		}
	}
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	Name      string
	Services  []string
	APIKey    string
	AutoStart bool
}

// Create provisions a new branch: validates the credential, allocates a
// port, creates the VCS branch, renders the workspace, and persists the
// record. If AutoStart is set, a build-and-up job is scheduled
// asynchronously and Create returns with status "building"; otherwise it
// returns with status "created".
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Branch, error) {
	if !namePattern.MatchString(req.Name) {
		return nil, ErrInvalidName
	}
	if req.APIKey == "" {
		return nil, ErrMissingCredential
	}

	lock := e.locks.get(req.Name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := e.registry.Get(req.Name); err == nil {
		return nil, ErrBranchExists
	} else if !errors.Is(err, registry.ErrNotFound) {
		return nil, err
	}

	services := req.Services
	if len(services) == 0 {
		services = []string{"app"}
	}
	if err := e.validateServices(services); err != nil {
		return nil, err
	}

	outcome, err := e.credential.Validate(ctx, req.APIKey)
	if err != nil {
		return nil, fmt.Errorf("engine: validating credential: %w", err)
	}
	switch outcome {
	case credential.OutcomeInvalid:
		return nil, ErrCredentialInvalid
	case credential.OutcomeTransientError:
		return nil, ErrCredentialTransient
	}

	port, err := e.ports.Allocate()
	if err != nil {
		return nil, fmt.Errorf("engine: allocating port: %w", err)
	}

	if err := e.vcsAdapter.CreateBranch(req.Name); err != nil {
		e.ports.Release(port)
		return nil, fmt.Errorf("engine: creating vcs branch: %w", err)
	}

	workspace := e.registry.WorkspacePath(req.Name)
	substitutions := map[string]string{
		"BRANCH_NAME":    req.Name,
		"PORT":           itoa(port),
		"PORT_TTYD":      itoa(port + 1000),
		"GEMINI_API_KEY": req.APIKey,
	}
	if err := e.renderer.Render(workspace, substitutions, services); err != nil {
		e.ports.Release(port)
		e.vcsAdapter.DeleteBranch(req.Name)
		e.registry.Delete(req.Name)
		return nil, fmt.Errorf("engine: rendering workspace: %w", err)
	}

	b := &model.Branch{
		Name:                req.Name,
		Port:                port,
		WorkspacePath:       workspace,
		Services:            services,
		Status:              model.StatusCreated,
		CreatedAt:           time.Now().UTC(),
		CredentialValidated: true,
		GitBranch:           req.Name,
		ContainerStarted:    false,
		GeminiConfigPath:    workspace + "/.gemini/config.json",
	}

	if err := e.registry.Save(b); err != nil {
		e.ports.Release(port)
		e.vcsAdapter.DeleteBranch(req.Name)
		e.registry.Delete(req.Name)
		return nil, fmt.Errorf("engine: persisting branch: %w", err)
	}

	if req.AutoStart {
		b.Status = model.StatusBuilding
		if err := e.registry.Save(b); err != nil {
			log.WithFields(log.Fields{"branch": b.Name}).Warnf("engine: persisting building status failed: %v", err)
		}
		e.scheduleBuildAndUp(req.Name)
	}

	return b, nil
}

func (e *Engine) validateServices(requested []string) error {
	if len(e.templateServices) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(e.templateServices))
	for _, s := range e.templateServices {
		allowed[s] = true
	}
	for _, s := range requested {
		if !allowed[s] {
			return fmt.Errorf("%w: %s", render.ErrUnknownService, s)
		}
	}
	return nil
}

// scheduleBuildAndUp runs the build in a worker-pool-bounded goroutine,
// updating the branch's persisted status to running or failed on
// completion.
func (e *Engine) scheduleBuildAndUp(name string) {
	go func() {
		e.buildSem <- struct{}{}
		defer func() { <-e.buildSem }()

		lock := e.locks.get(name)
		lock.Lock()
		defer lock.Unlock()

		b, err := e.registry.Get(name)
		if err != nil {
			log.WithFields(log.Fields{"branch": name}).Warnf("engine: build job: branch vanished: %v", err)
			return
		}

		ctx := context.Background()
		if err := e.containers.Build(ctx, b.WorkspacePath); err != nil {
			log.WithFields(log.Fields{"branch": name}).Warnf("engine: build failed: %v", err)
			b.Status = model.StatusFailed
			e.registry.Save(b)
			return
		}
		if err := e.containers.Up(ctx, b.WorkspacePath); err != nil {
			log.WithFields(log.Fields{"branch": name}).Warnf("engine: start failed: %v", err)
			b.Status = model.StatusFailed
			e.registry.Save(b)
			return
		}

		b.Status = model.StatusRunning
		b.ContainerStarted = true
		if err := e.registry.Save(b); err != nil {
			log.WithFields(log.Fields{"branch": name}).Warnf("engine: persisting running status failed: %v", err)
		}
	}()
}

// Get returns a single branch's current record.
func (e *Engine) Get(name string) (*model.Branch, error) {
	b, err := e.registry.Get(name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrBranchNotFound
	}
	return b, err
}

// List returns every known branch.
func (e *Engine) List() ([]*model.Branch, error) {
	return e.registry.List()
}

// Delete tears a branch down: stops its containers, removes the VCS
// branch and workspace, and releases its port.
func (e *Engine) Delete(ctx context.Context, name string) error {
	lock := e.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	b, err := e.registry.Get(name)
	if errors.Is(err, registry.ErrNotFound) {
		return ErrBranchNotFound
	}
	if err != nil {
		return err
	}

	b.Status = model.StatusDeleting
	e.registry.Save(b)

	if err := e.containers.Down(ctx, b.WorkspacePath); err != nil {
		log.WithFields(log.Fields{"branch": name}).Warnf("engine: delete: stopping containers failed: %v", err)
	}
	if err := e.vcsAdapter.DeleteBranch(name); err != nil {
		log.WithFields(log.Fields{"branch": name}).Warnf("engine: delete: removing vcs branch failed: %v", err)
	}
	if err := e.registry.Delete(name); err != nil {
		return fmt.Errorf("engine: deleting workspace: %w", err)
	}
	e.ports.Release(b.Port)
	return nil
}

// Start brings up the given services (or every declared service, if
// services is empty) for a branch.
func (e *Engine) Start(ctx context.Context, name string, services []string) (*model.Branch, error) {
	lock := e.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	b, err := e.mustGet(name)
	if err != nil {
		return nil, err
	}

	if len(services) > 0 {
		allowed := make(map[string]bool, len(b.Services))
		for _, s := range b.Services {
			allowed[s] = true
		}
		for _, s := range services {
			if !allowed[s] {
				return nil, fmt.Errorf("%w: %s", render.ErrUnknownService, s)
			}
		}
	}

	if err := e.containers.Up(ctx, b.WorkspacePath, services...); err != nil {
		return nil, fmt.Errorf("engine: starting branch %s: %w", name, err)
	}

	b.Status = model.StatusRunning
	b.ContainerStarted = true
	if err := e.registry.Save(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Stop stops every service in a branch's container group.
func (e *Engine) Stop(ctx context.Context, name string) (*model.Branch, error) {
	lock := e.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	b, err := e.mustGet(name)
	if err != nil {
		return nil, err
	}

	if err := e.containers.Down(ctx, b.WorkspacePath); err != nil {
		return nil, fmt.Errorf("engine: stopping branch %s: %w", name, err)
	}

	b.Status = model.StatusStopped
	b.ContainerStarted = false
	if err := e.registry.Save(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Restart stops and restarts every service.
func (e *Engine) Restart(ctx context.Context, name string) (*model.Branch, error) {
	lock := e.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	b, err := e.mustGet(name)
	if err != nil {
		return nil, err
	}

	if err := e.containers.Restart(ctx, b.WorkspacePath); err != nil {
		return nil, fmt.Errorf("engine: restarting branch %s: %w", name, err)
	}

	b.Status = model.StatusRunning
	b.ContainerStarted = true
	if err := e.registry.Save(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Status returns live per-service container status for a branch.
func (e *Engine) Status(ctx context.Context, name string) ([]container.ServiceState, error) {
	b, err := e.mustGet(name)
	if err != nil {
		return nil, err
	}
	return e.containers.Status(ctx, b.WorkspacePath)
}

// Logs returns the branch's combined container logs.
func (e *Engine) Logs(ctx context.Context, name string, lines int) (string, error) {
	b, err := e.mustGet(name)
	if err != nil {
		return "", err
	}
	return e.containers.Logs(ctx, b.WorkspacePath, lines)
}

// AttachTerminalSession records a newly started terminal session onto a
// branch's persisted record.
func (e *Engine) AttachTerminalSession(name string, session *model.TerminalSession) (*model.Branch, error) {
	lock := e.locks.get(name)
	lock.Lock()
	defer lock.Unlock()

	b, err := e.mustGet(name)
	if err != nil {
		return nil, err
	}
	b.TerminalSession = session
	if err := e.registry.Save(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) mustGet(name string) (*model.Branch, error) {
	b, err := e.registry.Get(name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, ErrBranchNotFound
	}
	return b, err
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

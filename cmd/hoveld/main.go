// Command hoveld runs the hovel Control API: an HTTP service that
// provisions, runs, monitors, and tears down isolated per-branch
// development workspaces.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hovel-dev/hovel/internal/config"
	"github.com/hovel-dev/hovel/internal/container"
	"github.com/hovel-dev/hovel/internal/credential"
	"github.com/hovel-dev/hovel/internal/engine"
	"github.com/hovel-dev/hovel/internal/handler"
	"github.com/hovel-dev/hovel/internal/logging"
	"github.com/hovel-dev/hovel/internal/portalloc"
	"github.com/hovel-dev/hovel/internal/registry"
	"github.com/hovel-dev/hovel/internal/render"
	"github.com/hovel-dev/hovel/internal/terminal"
	"github.com/hovel-dev/hovel/internal/vcs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	reg, err := registry.New(cfg.WorkspacesRoot)
	if err != nil {
		log.Fatalf("failed to open registry: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to determine working directory: %v", err)
	}

	containers := container.New(
		time.Duration(cfg.BuildTimeoutSec)*time.Second,
		120*time.Second,
	)

	renderer := render.New(cfg.TemplatePath)
	templateServices, err := renderer.DeclaredServices()
	if err != nil {
		log.Fatalf("failed to read declared services from template: %v", err)
	}
	log.Infof("template declares services: %v", templateServices)

	eng := engine.New(engine.Config{
		Registry:         reg,
		Ports:            portalloc.New(cfg.BaseBranchPort, cfg.MaxBranchPort),
		Renderer:         renderer,
		Credential:       credential.New(),
		VCS:              vcs.New(wd),
		Containers:       containers,
		TemplateServices: templateServices,
		BuildConcurrency: cfg.BuildConcurrency,
	})

	recoverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Recover(recoverCtx); err != nil {
		log.Warnf("startup recovery encountered errors: %v", err)
	}

	term := terminal.New(containers, cfg.TTYDCommand, "localhost")
	branchHandler := handler.NewBranchHandler(eng, term)

	router := NewRouter(branchHandler)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Infof(config.StartupServerURLFormat, cfg.Port)
	log.Infof("template path: %s", cfg.TemplatePath)
	log.Infof("workspaces root: %s", cfg.WorkspacesRoot)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Info("server stopped")
}

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hovel-dev/hovel/internal/handler"
)

// NewRouter builds the Control API's route table.
func NewRouter(branchHandler *handler.BranchHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Get("/", handler.Root)
	r.Get("/health", handler.Health)
	r.Get("/api/status", handler.Status)

	r.Post("/api/branch", branchHandler.Create)
	r.Get("/api/branches", branchHandler.List)

	r.Route("/api/branch/{name}", func(r chi.Router) {
		r.Get("/", branchHandler.Get)
		r.Delete("/", branchHandler.Delete)
		r.Post("/start", branchHandler.Start)
		r.Post("/stop", branchHandler.Stop)
		r.Post("/restart", branchHandler.Restart)
		r.Get("/status", branchHandler.Status)
		r.Get("/logs", branchHandler.Logs)
		r.Post("/gemini-session", branchHandler.GeminiSession)
	})

	return r
}

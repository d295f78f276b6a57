package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/revguard/reconciler/internal/engine"
	"github.com/revguard/reconciler/internal/ingestion"
	"github.com/revguard/reconciler/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	recordRepo *repository.RecordRepo,
	findingRepo *repository.FindingRepo,
	runRepo *repository.RunRepo,
	ingestionSvc *ingestion.Service,
	runner *engine.Runner,
) http.Handler {
	h := &Handlers{
		recordRepo:   recordRepo,
		findingRepo:  findingRepo,
		runRepo:      runRepo,
		ingestionSvc: ingestionSvc,
		runner:       runner,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion.
		r.Post("/datasets/ingest", h.IngestDataset)
		r.Get("/datasets", h.ListDatasets)

		// Reconciliation runs.
		r.Post("/runs", h.CreateRun)
		r.Get("/runs/{id}", h.GetRun)

		// Findings.
		r.Get("/findings", h.ListFindings)
		r.Get("/findings/summary", h.GetFindingSummary)

		// Leakage cases.
		r.Get("/cases", h.ListCases)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}

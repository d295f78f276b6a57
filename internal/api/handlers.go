package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/revguard/reconciler/internal/domain"
	"github.com/revguard/reconciler/internal/engine"
	"github.com/revguard/reconciler/internal/ingestion"
	"github.com/revguard/reconciler/internal/normalize"
	"github.com/revguard/reconciler/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	recordRepo   *repository.RecordRepo
	findingRepo  *repository.FindingRepo
	runRepo      *repository.RunRepo
	ingestionSvc *ingestion.Service
	runner       *engine.Runner
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// --- IngestDataset ---

func (h *Handlers) IngestDataset(w http.ResponseWriter, r *http.Request) {
	// Accept multipart form.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	source := r.FormValue("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, "source is required (billing|contract|usage|service)")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read file: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.IngestDataset(data, domain.SourceType(source), header.Filename)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ListDatasets ---

func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.recordRepo.ListDatasets()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets": datasets,
		"total":    len(datasets),
	})
}

// --- CreateRun ---

func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunFromStore(r.Context())
	if err != nil {
		var insufficient *normalize.InsufficientDataError
		if errors.As(err, &insufficient) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// --- GetRun ---

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	summary, err := h.runRepo.GetRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// --- ListFindings ---

func (h *Handlers) ListFindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.FindingFilter{
		RunID:      q.Get("run_id"),
		Kind:       q.Get("kind"),
		Priority:   q.Get("priority"),
		CustomerID: q.Get("customer_id"),
		ServiceID:  q.Get("service_id"),
		MinImpact:  parseFloatDefault(q.Get("min_impact"), 0),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	findings, total, err := h.findingRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Total absolute impact for the result page.
	var totalImpact float64
	for _, f := range findings {
		totalImpact += math.Abs(f.FinancialImpact)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"findings":     findings,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
		"total_impact": round2(totalImpact),
	})
}

// --- GetFindingSummary ---

func (h *Handlers) GetFindingSummary(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		latest, err := h.runRepo.LatestRunID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		runID = latest
	}

	summary, err := h.findingRepo.GetSummary(runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  runID,
		"summary": summary,
	})
}

// --- ListCases ---

func (h *Handlers) ListCases(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		latest, err := h.runRepo.LatestRunID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if latest == "" {
			writeError(w, http.StatusNotFound, "no runs yet")
			return
		}
		runID = latest
	}

	cases, err := h.runRepo.GetCases(runID, h.findingRepo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID,
		"cases":  cases,
		"total":  len(cases),
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	recordCount, err := h.recordRepo.CountRecords()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	latest, err := h.runRepo.LatestRunID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dashboard := map[string]any{
		"records_ingested": recordCount,
		"latest_run_id":    latest,
	}

	if latest != "" {
		run, err := h.runRepo.GetRun(latest)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if run != nil {
			dashboard["entity_count"] = run.EntityCount
			dashboard["case_count"] = run.CaseCount
			dashboard["total_recoverable"] = round2(run.TotalRecoverable)
			dashboard["total_overbilled"] = round2(run.TotalOverbilled)
			dashboard["truncated"] = run.Truncated
			dashboard["finding_counts"] = run.FindingCounts
		}

		findingSummary, err := h.findingRepo.GetSummary(latest)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		dashboard["findings"] = findingSummary
	}

	writeJSON(w, http.StatusOK, dashboard)
}

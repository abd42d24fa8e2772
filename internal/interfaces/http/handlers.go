package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"finhealth/internal/cache"
	"finhealth/internal/config"
	"finhealth/internal/persistence"
	"finhealth/internal/router"
	"finhealth/internal/telemetry"
)

// Handlers groups the HTTP endpoint implementations and their
// collaborators.
type Handlers struct {
	store   *config.Store
	router  *router.Router
	cache   *cache.ResultCache
	repo    persistence.AnalysisRepo
	metrics *telemetry.Metrics
}

// NewHandlers creates the endpoint set. Cache, repo and metrics may be nil.
func NewHandlers(
	store *config.Store,
	analysisRouter *router.Router,
	resultCache *cache.ResultCache,
	repo persistence.AnalysisRepo,
	metrics *telemetry.Metrics,
) *Handlers {
	return &Handlers{
		store:   store,
		router:  analysisRouter,
		cache:   resultCache,
		repo:    repo,
		metrics: metrics,
	}
}

// AnalyzeRequest is the POST /analyze payload: a workflow request plus
// transport-level options.
type AnalyzeRequest struct {
	router.Request
	UseCache bool `json:"use_cache,omitempty"`
}

// Health reports service liveness and the active config version.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"config_version": snap.Version,
		"modules":        snap.ModuleOrder,
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

// Analyze runs the full workflow for one company and returns the structured
// result. Module failures surface inside the result body, not as HTTP
// errors.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Company == "" {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}
	if len(req.Current) == 0 {
		writeError(w, http.StatusBadRequest, "current_data is required")
		return
	}

	ctx := r.Context()
	if req.UseCache && h.cache != nil {
		if cached, hit, err := h.cache.Get(ctx, req.Company, req.Period); err == nil && hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	result := h.router.Run(ctx, h.store.Snapshot(), req.Request)

	if h.cache != nil && result.Status == router.StatusCompleted {
		if err := h.cache.Put(ctx, req.Company, req.Period, result); err != nil {
			log.Warn().Err(err).Str("company", req.Company).Msg("result cache write failed")
		}
	}
	if h.repo != nil && result.Status == router.StatusCompleted {
		h.persistRun(r, result)
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) persistRun(r *http.Request, result *router.Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("result encoding for storage failed")
		return
	}
	run := persistence.AnalysisRun{
		RunID:        result.RunID,
		Company:      result.Company,
		Period:       result.Period,
		Status:       result.Status,
		OverallScore: result.OverallScore,
		Result:       raw,
		CreatedAt:    time.Now().UTC(),
	}
	if result.Aggregation != nil {
		run.RedFlagIndex = result.Aggregation.RedFlagIndex
		run.ScoreCap = result.Aggregation.ScoreCap
	}
	if err := h.repo.SaveRun(r.Context(), run); err != nil {
		log.Warn().Err(err).Str("run_id", result.RunID).Msg("analysis run storage failed")
	}
}

// ReloadConfig swaps in a freshly parsed configuration snapshot. On parse
// failure the previous snapshot stays active and the error is returned.
func (h *Handlers) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Reload()
	if err != nil {
		if h.metrics != nil {
			h.metrics.ConfigReloads.WithLabelValues("error").Inc()
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if h.metrics != nil {
		h.metrics.ConfigReloads.WithLabelValues("ok").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"config_version": snap.Version,
		"modules":        snap.ModuleOrder,
	})
}

// Runs lists recent stored analysis runs for a company.
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "analysis storage not configured")
		return
	}
	company := mux.Vars(r)["company"]
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.repo.RunsByCompany(r.Context(), company, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"company": company, "runs": runs})
}

// LatestRun returns the newest stored run for a company.
func (h *Handlers) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "analysis storage not configured")
		return
	}
	company := mux.Vars(r)["company"]
	run, err := h.repo.LatestRun(r.Context(), company)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no runs for company "+company)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not found: "+r.URL.Path)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

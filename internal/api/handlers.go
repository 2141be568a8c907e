package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/analyzer"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/batch"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/entity"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

// EntityAnalyzer runs one entity's audit. Implemented by analyzer.Analyzer.
type EntityAnalyzer interface {
	Analyze(ctx context.Context, e entity.Entity) (analyzer.Result, error)
}

// BatchRunner executes a batch audit. Implemented by batch.Runner.
type BatchRunner interface {
	Run(ctx context.Context, opts batch.Options, onProgress func(batch.Progress)) (batch.Result, error)
}

// BatchDefaults is the configured batch tuning applied to API-triggered runs.
// Zero values fall back to the runner's own defaults.
type BatchDefaults struct {
	ChunkSize    int
	Policy       batch.SelectionPolicy
	RecentWindow time.Duration
}

// Deps holds the collaborators the HTTP surface exposes.
type Deps struct {
	Store    *storage.Store
	Entities *entity.Store
	Registry *vectors.Registry
	Settings *vectors.Settings
	Analyzer EntityAnalyzer
	Runner   BatchRunner
	Batch    BatchDefaults
	Token    string // empty disables auth
}

// NewHandler builds the audit HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/vectors", handleListVectors(deps))
		r.Post("/vectors", handleSaveVector(deps))
		r.Get("/vectors/{id}", handleGetVector(deps))
		r.Delete("/vectors/{id}", handleDeleteVector(deps))

		r.Get("/settings/{type}/{bundle}", handleGetSettings(deps))
		r.Put("/settings/{type}/{bundle}", handlePutSettings(deps))

		r.Post("/analyze/{type}/{id}", handleAnalyze(deps))
		r.Get("/report/{type}/{id}", handleReport(deps))

		r.Post("/batch", handleBatch(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleListVectors(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vs, err := deps.Registry.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing vectors: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vectors": vectors.SortByWeight(vs)})
	}
}

type saveVectorRequest struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Weight      *int   `json:"weight"` // omitted = auto-assign, placing the vector last
}

func handleSaveVector(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveVectorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}

		if req.Weight == nil {
			// An omitted weight auto-assigns only for new ids; an existing
			// vector keeps its weight and position.
			existing, err := deps.Registry.Get(req.ID)
			if err == nil {
				v := vectors.Vector{ID: req.ID, Label: req.Label, Description: req.Description, Weight: existing.Weight}
				if err := deps.Registry.Save(v); err != nil {
					httpError(w, http.StatusInternalServerError, "api_error", "saving vector: %v", err)
					return
				}
				writeJSON(w, http.StatusOK, v)
				return
			}
			if !errors.Is(err, vectors.ErrNotFound) {
				httpError(w, http.StatusInternalServerError, "api_error", "loading vector: %v", err)
				return
			}

			v, err := deps.Registry.Add(req.ID, req.Label, req.Description)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "adding vector: %v", err)
				return
			}
			writeJSON(w, http.StatusCreated, v)
			return
		}

		v := vectors.Vector{ID: req.ID, Label: req.Label, Description: req.Description, Weight: *req.Weight}
		if err := deps.Registry.Save(v); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving vector: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleGetVector(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := deps.Registry.Get(chi.URLParam(r, "id"))
		if errors.Is(err, vectors.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "vector not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading vector: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func handleDeleteVector(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Registry.Delete(chi.URLParam(r, "id")); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting vector: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bs, err := deps.Settings.Get(chi.URLParam(r, "type"), chi.URLParam(r, "bundle"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, bs)
	}
}

func handlePutSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var bs vectors.BundleSettings
		if err := json.NewDecoder(r.Body).Decode(&bs); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Settings.Set(chi.URLParam(r, "type"), chi.URLParam(r, "bundle"), bs); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, bs)
	}
}

// analyzeResponse is the data result of one analysis plus its presentation.
type analyzeResponse struct {
	Status  string               `json:"status"`
	Scores  map[string]int       `json:"scores,omitempty"`
	Summary *analyzer.Indicator  `json:"summary,omitempty"`
	Report  []analyzer.Indicator `json:"report,omitempty"`
}

func runAnalysis(deps Deps, w http.ResponseWriter, r *http.Request) (analyzeResponse, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid entity id")
		return analyzeResponse{}, false
	}

	e, err := deps.Entities.Load(r.Context(), chi.URLParam(r, "type"), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found_error", "entity not found")
		return analyzeResponse{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "loading entity: %v", err)
		return analyzeResponse{}, false
	}

	res, err := deps.Analyzer.Analyze(r.Context(), e)
	if err != nil {
		httpError(w, http.StatusBadGateway, "api_error", "analysis failed: %v", err)
		return analyzeResponse{}, false
	}

	resp := analyzeResponse{Status: res.Status.String(), Scores: res.Scores}
	if summary, ok := analyzer.Summary(res); ok {
		resp.Summary = &summary
		resp.Report = analyzer.Report(res)
	}
	return resp, true
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, ok := runAnalysis(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleReport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, ok := runAnalysis(deps, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  resp.Status,
			"summary": resp.Summary,
			"report":  resp.Report,
		})
	}
}

type batchRequest struct {
	Targets []batch.Target `json:"targets"`
	Force   bool           `json:"force"`
	Limit   int            `json:"limit"`
}

func handleBatch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Targets) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one target is required")
			return
		}

		result, err := deps.Runner.Run(r.Context(), batch.Options{
			Targets:      req.Targets,
			Force:        req.Force,
			Limit:        req.Limit,
			ChunkSize:    deps.Batch.ChunkSize,
			Policy:       deps.Batch.Policy,
			RecentWindow: deps.Batch.RecentWindow,
		}, nil)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "batch run failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Statistics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "aggregating statistics: %v", err)
			return
		}
		averages, err := deps.Store.AverageScores()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "averaging scores: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_records":     stats.TotalRecords,
			"distinct_entities": stats.DistinctEntities,
			"distinct_vectors":  stats.DistinctVectors,
			"oldest_analyzed":   stats.OldestAnalyzedAt,
			"newest_analyzed":   stats.NewestAnalyzedAt,
			"average_scores":    averages,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

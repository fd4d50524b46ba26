package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/loader"
	"github.com/ashita-ai/hibana/internal/model"
	"github.com/ashita-ai/hibana/internal/service"
	"github.com/ashita-ai/hibana/internal/session"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	analyzer            *service.Analyzer
	logger              *slog.Logger
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
	startedAt           time.Time
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Analyzer            *service.Analyzer
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		analyzer:            d.Analyzer,
		logger:              d.Logger,
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
		startedAt:           time.Now(),
	}
}

// analysisSummary is the list-view projection of an analysis.
type analysisSummary struct {
	AnalysisID string    `json:"analysis_id"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`

	AppID           string `json:"app_id"`
	AppName         string `json:"app_name"`
	Status          string `json:"status"`
	DurationMs      int64  `json:"duration_ms"`
	Stages          int    `json:"stages"`
	Tasks           int    `json:"tasks"`
	Anomalies       int    `json:"anomalies"`
	Recommendations int    `json:"recommendations"`
}

func newAnalysisSummary(e *session.Entry) analysisSummary {
	return analysisSummary{
		AnalysisID:      e.ID,
		Source:          e.Source,
		CreatedAt:       e.CreatedAt,
		AppID:           e.Result.App.ID,
		AppName:         e.Result.App.Name,
		Status:          string(e.Result.App.Status),
		DurationMs:      e.Result.Metrics.DurationMs,
		Stages:          len(e.Result.Stages),
		Tasks:           e.Result.Metrics.TotalTasks,
		Anomalies:       len(e.Result.Anomalies),
		Recommendations: len(e.Result.AllRecommendations()),
	}
}

// analysisDetail is the full single-analysis response.
type analysisDetail struct {
	AnalysisID string           `json:"analysis_id"`
	Source     string           `json:"source"`
	CreatedAt  time.Time        `json:"created_at"`
	Result     *analysis.Result `json:"result"`
}

// HandleCreateAnalysis handles POST /v1/analyses.
//
// Two request shapes are accepted: a JSON body {"source": "<ref>"}
// naming a file, directory, or URL reachable from the server, or a raw
// event log in the body (any non-JSON content type), optionally
// compressed.
func (h *Handlers) HandleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)

	var (
		entry *session.Entry
		err   error
	)
	if ct := r.Header.Get("Content-Type"); ct == "" || strings.HasPrefix(ct, "application/json") {
		var req struct {
			Source string `json:"source"`
		}
		if derr := decodeJSON(r, &req); derr != nil {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body: "+derr.Error())
			return
		}
		if req.Source == "" {
			writeError(w, r, http.StatusBadRequest, errCodeBadRequest, "source is required")
			return
		}
		entry, err = h.analyzer.Analyze(r.Context(), req.Source)
	} else {
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "upload"
		}
		entry, err = h.analyzer.AnalyzeReader(r.Context(), source, r.Body)
	}

	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeError(w, r, http.StatusRequestEntityTooLarge, errCodeTooLarge, "event log exceeds the request body limit")
		case errors.Is(err, model.ErrUnusableInput):
			writeError(w, r, http.StatusUnprocessableEntity, errCodeBadRequest, "no recognizable Spark events in input")
		case errors.Is(err, loader.ErrNoEventLogs):
			writeError(w, r, http.StatusNotFound, errCodeNotFound, "no event logs found at source")
		default:
			writeError(w, r, http.StatusBadGateway, errCodeInternal, "analysis failed: "+err.Error())
		}
		return
	}

	writeJSON(w, r, http.StatusCreated, newAnalysisSummary(entry))
}

// HandleListAnalyses handles GET /v1/analyses.
func (h *Handlers) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	recent := h.analyzer.Recent(limit)
	listed := make([]analysisSummary, 0, len(recent))
	for _, e := range recent {
		listed = append(listed, newAnalysisSummary(e))
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"analyses": listed,
		"count":    len(listed),
	})
}

// HandleGetAnalysis handles GET /v1/analyses/{id}.
func (h *Handlers) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, analysisDetail{
		AnalysisID: entry.ID,
		Source:     entry.Source,
		CreatedAt:  entry.CreatedAt,
		Result:     entry.Result,
	})
}

// HandleRecommendations handles GET /v1/analyses/{id}/recommendations.
// Supports ?category= and ?priority= filters.
func (h *Handlers) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filter := analysis.Filter{
		Category: analysis.Category(r.URL.Query().Get("category")),
		Priority: analysis.Priority(r.URL.Query().Get("priority")),
	}

	recs, err := h.analyzer.Recommendations(r.Context(), id, filter)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errCodeNotFound, "analysis not found: "+id)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"analysis_id":     id,
		"count":           len(recs),
		"recommendations": recs,
	})
}

// HandleReport handles GET /v1/analyses/{id}/report.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := h.analyzer.Report(r.Context(), id, w)
	if errors.Is(err, service.ErrNotFound) {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, r, http.StatusNotFound, errCodeNotFound, "analysis not found: "+id)
		return
	}
	if err != nil {
		h.logger.Error("report render failed", "analysis_id", id, "error", err)
	}
}

// HandleDeleteAnalysis handles DELETE /v1/analyses/{id}.
func (h *Handlers) HandleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := h.analyzer.Delete(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errCodeNotFound, "analysis not found: "+id)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory handles GET /v1/history.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	records, err := h.analyzer.History(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.analyzer.Status(r.Context())
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
		"service": status,
	})
}

// lookup fetches the analysis named in the path, writing a 404 when it
// is gone from both the session registry and history.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Entry, bool) {
	id := r.PathValue("id")
	entry, err := h.analyzer.Get(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errCodeNotFound, "analysis not found: "+id)
		return nil, false
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, errCodeInternal, err.Error())
		return nil, false
	}
	return entry, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Package service implements the analysis workflow shared by the MCP tools
// and the HTTP API: resolve an event log reference, parse it, run the
// analysis, retain the result, and persist it to history when a backend is
// configured.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/history"
	"github.com/ashita-ai/hibana/internal/loader"
	"github.com/ashita-ai/hibana/internal/model"
	"github.com/ashita-ai/hibana/internal/report"
	"github.com/ashita-ai/hibana/internal/session"
	"github.com/ashita-ai/hibana/internal/telemetry"
)

// ErrNotFound marks a lookup for an analysis id that is neither retained
// nor persisted.
var ErrNotFound = errors.New("service: analysis not found")

// Analyzer runs analyses and serves their results.
type Analyzer struct {
	log      *slog.Logger
	cfg      analysis.Config
	sessions *session.Registry
	store    history.Store // nil when history is disabled
	metrics  *telemetry.Metrics

	parallelism int
	maxLogBytes int64
	startedAt   time.Time
}

// Options configures an Analyzer.
type Options struct {
	Logger      *slog.Logger
	Analysis    analysis.Config
	Sessions    *session.Registry
	Store       history.Store
	Metrics     *telemetry.Metrics
	Parallelism int
	MaxLogBytes int64
}

// NewAnalyzer builds an Analyzer. Sessions is required; everything else
// has a working zero value.
func NewAnalyzer(opts Options) *Analyzer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := opts.Analysis
	if cfg.Skew.SkewRatio == 0 {
		cfg = analysis.DefaultConfig()
	}
	return &Analyzer{
		log:         log,
		cfg:         cfg,
		sessions:    opts.Sessions,
		store:       opts.Store,
		metrics:     opts.Metrics,
		parallelism: opts.Parallelism,
		maxLogBytes: opts.MaxLogBytes,
		startedAt:   time.Now().UTC(),
	}
}

// Analyze resolves ref, parses the event log, and returns the retained
// analysis entry.
func (a *Analyzer) Analyze(ctx context.Context, ref string) (*session.Entry, error) {
	rc, err := loader.Open(ctx, ref, loader.WithMaxBytes(a.maxLogBytes))
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer rc.Close()
	return a.AnalyzeReader(ctx, ref, rc)
}

// AnalyzeReader parses an already-open event log stream.
func (a *Analyzer) AnalyzeReader(ctx context.Context, source string, r io.Reader) (*session.Entry, error) {
	start := time.Now()

	var opts []model.ParseOption
	if a.parallelism > 1 {
		opts = append(opts, model.WithParallelism(a.parallelism))
	}
	m, err := model.Parse(ctx, r, opts...)
	if err != nil {
		a.metrics.RecordParseFailure(ctx)
		return nil, fmt.Errorf("parse event log: %w", err)
	}

	res := analysis.Analyze(m, a.cfg)
	entry := a.sessions.Put(source, res)

	elapsed := time.Since(start)
	events := int64(len(m.TaskOrder) + len(m.StageOrder) + len(m.JobOrder))
	a.metrics.RecordAnalysis(ctx, string(res.App.Status), elapsed, events)
	a.log.Info("analysis complete",
		"id", entry.ID,
		"app_id", res.App.ID,
		"status", res.App.Status,
		"stages", len(res.Stages),
		"tasks", res.Metrics.TotalTasks,
		"recommendations", len(res.AllRecommendations()),
		"elapsed", elapsed,
	)

	if a.store != nil {
		rec := history.Record{
			ID:        entry.ID,
			Source:    entry.Source,
			AppID:     res.App.ID,
			AppName:   res.App.Name,
			Status:    string(res.App.Status),
			CreatedAt: entry.CreatedAt,
			Result:    res,
		}
		if err := a.store.Save(ctx, rec); err != nil {
			// history is best-effort; the in-memory result stands
			a.log.Warn("persist analysis failed", "id", entry.ID, "error", err)
		}
	}
	return entry, nil
}

// Get returns the analysis for id, falling back to history when it has
// been evicted from the working set.
func (a *Analyzer) Get(ctx context.Context, id string) (*session.Entry, error) {
	if e, ok := a.sessions.Get(id); ok {
		return e, nil
	}
	if a.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, err := a.store.Get(ctx, id)
	if errors.Is(err, history.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load analysis from history: %w", err)
	}
	return &session.Entry{
		ID:        rec.ID,
		Source:    rec.Source,
		CreatedAt: rec.CreatedAt,
		Result:    rec.Result,
	}, nil
}

// Recommendations returns the filtered recommendations for id.
func (a *Analyzer) Recommendations(ctx context.Context, id string, f analysis.Filter) ([]analysis.Recommendation, error) {
	e, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Result.Recommendations(f), nil
}

// Report renders the HTML report for id.
func (a *Analyzer) Report(ctx context.Context, id string, w io.Writer) error {
	e, err := a.Get(ctx, id)
	if err != nil {
		return err
	}
	return report.Render(w, e)
}

// Recent lists the newest retained analyses.
func (a *Analyzer) Recent(n int) []*session.Entry {
	return a.sessions.Recent(n)
}

// History lists persisted analyses, newest first. Empty without a backend.
func (a *Analyzer) History(ctx context.Context, limit int) ([]history.Record, error) {
	if a.store == nil {
		return nil, nil
	}
	return a.store.Recent(ctx, limit)
}

// Delete removes an analysis from the working set and history.
func (a *Analyzer) Delete(ctx context.Context, id string) error {
	found := a.sessions.Delete(id)
	if a.store != nil {
		err := a.store.Delete(ctx, id)
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, history.ErrNotFound):
			return fmt.Errorf("delete from history: %w", err)
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Clear drops every retained analysis and returns how many were dropped.
// History is left untouched.
func (a *Analyzer) Clear() int {
	return a.sessions.Clear()
}

// Status describes the analyzer's working state.
type Status struct {
	Sessions       int       `json:"sessions"`
	HistoryEnabled bool      `json:"history_enabled"`
	HistoryHealthy bool      `json:"history_healthy"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
}

// Status reports the current working state.
func (a *Analyzer) Status(ctx context.Context) Status {
	s := Status{
		Sessions:      a.sessions.Len(),
		StartedAt:     a.startedAt,
		UptimeSeconds: int64(time.Since(a.startedAt).Seconds()),
	}
	if a.store != nil {
		s.HistoryEnabled = true
		s.HistoryHealthy = a.store.Ping(ctx) == nil
	}
	return s
}

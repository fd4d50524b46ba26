package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/service"
	"github.com/ashita-ai/hibana/internal/session"
)

func (s *Server) registerTools() {
	// hibana_parse — parse an event log and get the execution overview.
	s.mcpServer.AddTool(
		mcplib.NewTool("hibana_parse",
			mcplib.WithDescription(`Parse a Spark event log and get an execution overview.

WHEN TO USE: FIRST, when handed an event log to investigate. This loads
the log, reconstructs the execution model, and returns the application's
shape: jobs, stages, task counts, executors, and final status.

The returned analysis_id is the handle for every other tool — pass it to
hibana_analyze, hibana_suggestions, and hibana_report.

SOURCE FORMATS:
- Local file path: /var/logs/spark/application_1700000000000_0042
- Event log directory: /var/logs/spark/eventlog_v2_app-.../ (newest log is picked)
- HTTP(S) URL, including presigned object-store URLs
Plain, gzip, and zstd compressed logs all work; compression is auto-detected.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("source",
				mcplib.Description("Event log reference: a local file, a directory of event logs, or an HTTP(S) URL"),
				mcplib.Required(),
			),
		),
		s.handleParse,
	)

	// hibana_analyze — full performance analysis of a parsed log.
	s.mcpServer.AddTool(
		mcplib.NewTool("hibana_analyze",
			mcplib.WithDescription(`Get the full performance analysis: per-stage and per-executor metrics,
detected anomalies (data skew, executor imbalance, spill, GC pressure),
and tuning recommendations.

WHEN TO USE: After hibana_parse, with its analysis_id — or pass a source
directly to parse and analyze in one step.

WHAT YOU GET BACK:
- metrics: application-level rollup (duration, task success rate, shuffle volume, GC share)
- stages: task duration distribution per stage (median/p90/max, skew ratio)
- executors: utilization and busy time per executor
- anomalies: findings with severity and the numbers behind them
- recommendations: concrete config changes, ordered by priority

EXAMPLE: A stage with skew_ratio 60 means its slowest task took 60x the
median — look at the matching stage_skew anomaly and partitioning
recommendation.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("analysis_id",
				mcplib.Description("Handle returned by hibana_parse. Either this or source is required."),
			),
			mcplib.WithString("source",
				mcplib.Description("Event log reference to parse and analyze in one step"),
			),
		),
		s.handleAnalyze,
	)

	// hibana_suggestions — filtered tuning recommendations.
	s.mcpServer.AddTool(
		mcplib.NewTool("hibana_suggestions",
			mcplib.WithDescription(`Get tuning recommendations for an analyzed application, optionally
filtered by category or priority.

WHEN TO USE: When you want just the actionable changes without the full
metrics payload, or when drilling into one concern.

CATEGORIES: partitioning, memory, shuffle, gc, resources, reliability
PRIORITIES: high, medium, low

Each recommendation carries the concrete Spark properties to change in
its params map where one applies.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("analysis_id",
				mcplib.Description("Handle returned by hibana_parse"),
				mcplib.Required(),
			),
			mcplib.WithString("category",
				mcplib.Description("Only return recommendations in this category"),
				mcplib.Enum("partitioning", "memory", "shuffle", "gc", "resources", "reliability"),
			),
			mcplib.WithString("priority",
				mcplib.Description("Only return recommendations at this priority"),
				mcplib.Enum("high", "medium", "low"),
			),
		),
		s.handleSuggestions,
	)

	// hibana_report — standalone HTML report.
	s.mcpServer.AddTool(
		mcplib.NewTool("hibana_report",
			mcplib.WithDescription(`Render a self-contained HTML report for an analyzed application.

WHEN TO USE: When the findings should be shared with a human — the report
bundles the summary cards, stage and executor tables, anomalies, and
recommendations into one file with no external assets.

The result is the raw HTML; write it to a .html file to view.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("analysis_id",
				mcplib.Description("Handle returned by hibana_parse"),
				mcplib.Required(),
			),
		),
		s.handleReport,
	)

	// hibana_status — working set and backend health.
	s.mcpServer.AddTool(
		mcplib.NewTool("hibana_status",
			mcplib.WithDescription(`Show the analyzer's working state: retained analyses (newest first),
history backend health, and uptime.

WHEN TO USE: To find the analysis_id of something parsed earlier in the
conversation, or to check whether results are being persisted.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum retained analyses to list"),
				mcplib.Min(1),
				mcplib.Max(100),
				mcplib.DefaultNumber(10),
			),
		),
		s.handleStatus,
	)

	// hibana_clear — drop retained analyses.
	s.mcpServer.AddTool(
		mcplib.NewTool("hibana_clear",
			mcplib.WithDescription(`Drop retained analyses from the working set.

With analysis_id: remove that one analysis (from history too, when a
backend is configured). Without: clear the whole working set, leaving
history untouched.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("analysis_id",
				mcplib.Description("Specific analysis to remove; omit to clear everything"),
			),
		),
		s.handleClear,
	)
}

// overview is the hibana_parse payload: enough to orient, small enough to
// keep in context.
type overview struct {
	AnalysisID string `json:"analysis_id"`
	Source     string `json:"source"`

	Application struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		User         string `json:"user,omitempty"`
		SparkVersion string `json:"spark_version,omitempty"`
		Status       string `json:"status"`
		DurationMs   int64  `json:"duration_ms"`
	} `json:"application"`

	Stages          int `json:"stages"`
	Tasks           int `json:"tasks"`
	Executors       int `json:"executors"`
	Anomalies       int `json:"anomalies"`
	Recommendations int `json:"recommendations"`

	Diagnostics any `json:"diagnostics"`
}

func newOverview(e *session.Entry) overview {
	var o overview
	o.AnalysisID = e.ID
	o.Source = e.Source
	o.Application.ID = e.Result.App.ID
	o.Application.Name = e.Result.App.Name
	o.Application.User = e.Result.App.User
	o.Application.SparkVersion = e.Result.App.SparkVersion
	o.Application.Status = string(e.Result.App.Status)
	o.Application.DurationMs = e.Result.Metrics.DurationMs
	o.Stages = len(e.Result.Stages)
	o.Tasks = e.Result.Metrics.TotalTasks
	o.Executors = e.Result.Metrics.ExecutorCount
	o.Anomalies = len(e.Result.Anomalies)
	o.Recommendations = len(e.Result.AllRecommendations())
	o.Diagnostics = e.Result.Diags
	return o
}

func (s *Server) handleParse(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	source := request.GetString("source", "")
	if source == "" {
		return errorResult("source is required"), nil
	}

	entry, err := s.analyzer.Analyze(ctx, source)
	if err != nil {
		return errorResult(fmt.Sprintf("parse failed: %v", err)), nil
	}
	return jsonResult(newOverview(entry)), nil
}

func (s *Server) handleAnalyze(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("analysis_id", "")
	source := request.GetString("source", "")

	var (
		entry *session.Entry
		err   error
	)
	switch {
	case id != "":
		entry, err = s.analyzer.Get(ctx, id)
		if errors.Is(err, service.ErrNotFound) {
			return errorResult(fmt.Sprintf("unknown analysis_id %q; run hibana_parse first or check hibana_status", id)), nil
		}
	case source != "":
		entry, err = s.analyzer.Analyze(ctx, source)
	default:
		return errorResult("either analysis_id or source is required"), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("analyze failed: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"analysis_id": entry.ID,
		"result":      entry.Result,
	}), nil
}

func (s *Server) handleSuggestions(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("analysis_id", "")
	if id == "" {
		return errorResult("analysis_id is required"), nil
	}
	filter := analysis.Filter{
		Category: analysis.Category(request.GetString("category", "")),
		Priority: analysis.Priority(request.GetString("priority", "")),
	}

	recs, err := s.analyzer.Recommendations(ctx, id, filter)
	if errors.Is(err, service.ErrNotFound) {
		return errorResult(fmt.Sprintf("unknown analysis_id %q", id)), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("suggestions failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"analysis_id":     id,
		"count":           len(recs),
		"recommendations": recs,
	}), nil
}

func (s *Server) handleReport(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id := request.GetString("analysis_id", "")
	if id == "" {
		return errorResult("analysis_id is required"), nil
	}

	var buf bytes.Buffer
	err := s.analyzer.Report(ctx, id, &buf)
	if errors.Is(err, service.ErrNotFound) {
		return errorResult(fmt.Sprintf("unknown analysis_id %q", id)), nil
	}
	if err != nil {
		return errorResult(fmt.Sprintf("report failed: %v", err)), nil
	}
	return textResult(buf.String()), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 10)

	recent := s.analyzer.Recent(limit)
	listed := make([]overview, 0, len(recent))
	for _, e := range recent {
		listed = append(listed, newOverview(e))
	}
	return jsonResult(map[string]any{
		"status":   s.analyzer.Status(ctx),
		"analyses": listed,
	}), nil
}

func (s *Server) handleClear(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if id := request.GetString("analysis_id", ""); id != "" {
		err := s.analyzer.Delete(ctx, id)
		if errors.Is(err, service.ErrNotFound) {
			return errorResult(fmt.Sprintf("unknown analysis_id %q", id)), nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("clear failed: %v", err)), nil
		}
		return jsonResult(map[string]any{"removed": id}), nil
	}

	n := s.analyzer.Clear()
	return jsonResult(map[string]any{"cleared": n}), nil
}

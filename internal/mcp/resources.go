package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// hibana://analyses/recent — the retained working set, newest first.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"hibana://analyses/recent",
			"Recent Analyses",
			mcplib.WithResourceDescription("Recently analyzed applications with their ids and statuses"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAnalysesRecent,
	)

	// hibana://analysis/{id}/summary — one analysis without the task-level payload.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"hibana://analysis/{id}/summary",
			"Analysis Summary",
			mcplib.WithTemplateDescription("Application metrics, anomalies, and recommendations for one analysis"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleAnalysisSummary,
	)
}

func (s *Server) handleAnalysesRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	recent := s.analyzer.Recent(20)
	listed := make([]overview, 0, len(recent))
	for _, e := range recent {
		listed = append(listed, newOverview(e))
	}

	data, err := json.MarshalIndent(map[string]any{"analyses": listed}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal recent analyses: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAnalysisSummary(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id := strings.TrimSuffix(strings.TrimPrefix(uri, "hibana://analysis/"), "/summary")
	if id == "" || id == uri {
		return nil, fmt.Errorf("mcp: invalid analysis summary URI: %s", uri)
	}

	entry, err := s.analyzer.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: analysis summary: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"analysis_id":     entry.ID,
		"application":     entry.Result.App,
		"metrics":         entry.Result.Metrics,
		"anomalies":       entry.Result.Anomalies,
		"recommendations": entry.Result.AllRecommendations(),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal analysis summary: %w", err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

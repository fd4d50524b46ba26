package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/hibana/internal/analysis"
	"github.com/ashita-ai/hibana/internal/service"
	"github.com/ashita-ai/hibana/internal/session"
)

var sampleEventLog = strings.Join([]string{
	`{"Event":"SparkListenerLogStart","Spark Version":"3.5.1"}`,
	`{"Event":"SparkListenerApplicationStart","App Name":"etl","App ID":"application_1700000000000_0042","Timestamp":1000,"User":"svc-etl"}`,
	`{"Event":"SparkListenerJobStart","Job ID":0,"Submission Time":1100,"Stage IDs":[0]}`,
	`{"Event":"SparkListenerStageSubmitted","Stage Info":{"Stage ID":0,"Stage Attempt ID":0,"Stage Name":"count","Number of Tasks":2,"Submission Time":1200}}`,
	`{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":1,"Launch Time":1300,"Finish Time":2300,"Executor ID":"1"},"Task Metrics":{"Executor Run Time":1000}}`,
	`{"Event":"SparkListenerTaskEnd","Stage ID":0,"Stage Attempt ID":0,"Task End Reason":{"Reason":"Success"},"Task Info":{"Task ID":2,"Launch Time":1300,"Finish Time":2400,"Executor ID":"1"},"Task Metrics":{"Executor Run Time":1100}}`,
	`{"Event":"SparkListenerStageCompleted","Stage Info":{"Stage ID":0,"Stage Attempt ID":0,"Stage Name":"count","Number of Tasks":2,"Submission Time":1200,"Completion Time":2500}}`,
	`{"Event":"SparkListenerJobEnd","Job ID":0,"Completion Time":2600,"Job Result":{"Result":"JobSucceeded"}}`,
	`{"Event":"SparkListenerApplicationEnd","Timestamp":3000}`,
}, "\n")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	analyzer := service.NewAnalyzer(service.Options{
		Logger:   slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Analysis: analysis.DefaultConfig(),
		Sessions: session.NewRegistry(10),
	})
	return New(analyzer, "test", slog.Default())
}

func writeEventLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application_1700000000000_0042")
	require.NoError(t, os.WriteFile(path, []byte(sampleEventLog), 0o644))
	return path
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// toolText extracts the first TextContent text from a CallToolResult.
func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

// mustParse runs hibana_parse and returns the analysis id.
func mustParse(t *testing.T, s *Server) string {
	t.Helper()
	result, err := s.handleParse(context.Background(), toolRequest("hibana_parse", map[string]any{
		"source": writeEventLog(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "parse should succeed: %s", toolText(t, result))

	var resp struct {
		AnalysisID string `json:"analysis_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	require.NotEmpty(t, resp.AnalysisID)
	return resp.AnalysisID
}

func TestHandleParse(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleParse(context.Background(), toolRequest("hibana_parse", map[string]any{
		"source": writeEventLog(t),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp overview
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.Equal(t, "application_1700000000000_0042", resp.Application.ID)
	assert.Equal(t, "succeeded", resp.Application.Status)
	assert.Equal(t, 1, resp.Stages)
	assert.Equal(t, 2, resp.Tasks)
}

func TestHandleParseMissingSource(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleParse(context.Background(), toolRequest("hibana_parse", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleParseUnreadableSource(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleParse(context.Background(), toolRequest("hibana_parse", map[string]any{
		"source": "/nonexistent/path",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "parse failed")
}

func TestHandleAnalyze(t *testing.T) {
	s := newTestServer(t)
	id := mustParse(t, s)

	result, err := s.handleAnalyze(context.Background(), toolRequest("hibana_analyze", map[string]any{
		"analysis_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		AnalysisID string `json:"analysis_id"`
		Result     struct {
			Metrics struct {
				TotalTasks int `json:"total_tasks"`
			} `json:"metrics"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.Equal(t, id, resp.AnalysisID)
	assert.Equal(t, 2, resp.Result.Metrics.TotalTasks)
}

func TestHandleAnalyzeBySource(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleAnalyze(context.Background(), toolRequest("hibana_analyze", map[string]any{
		"source": writeEventLog(t),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestHandleAnalyzeUnknownID(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleAnalyze(context.Background(), toolRequest("hibana_analyze", map[string]any{
		"analysis_id": "does-not-exist",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "unknown analysis_id")
}

func TestHandleSuggestions(t *testing.T) {
	s := newTestServer(t)
	id := mustParse(t, s)

	result, err := s.handleSuggestions(context.Background(), toolRequest("hibana_suggestions", map[string]any{
		"analysis_id": id,
		"priority":    "high",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp struct {
		Count           int               `json:"count"`
		Recommendations []json.RawMessage `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.Equal(t, resp.Count, len(resp.Recommendations))
}

func TestHandleReport(t *testing.T) {
	s := newTestServer(t)
	id := mustParse(t, s)

	result, err := s.handleReport(context.Background(), toolRequest("hibana_report", map[string]any{
		"analysis_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.True(t, strings.HasPrefix(toolText(t, result), "<!DOCTYPE html>"))
}

func TestHandleStatusAndClear(t *testing.T) {
	s := newTestServer(t)
	id := mustParse(t, s)

	result, err := s.handleStatus(context.Background(), toolRequest("hibana_status", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var status struct {
		Analyses []overview `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &status))
	require.Len(t, status.Analyses, 1)
	assert.Equal(t, id, status.Analyses[0].AnalysisID)

	// remove the one analysis
	result, err = s.handleClear(context.Background(), toolRequest("hibana_clear", map[string]any{
		"analysis_id": id,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	// clearing again reports it as unknown
	result, err = s.handleClear(context.Background(), toolRequest("hibana_clear", map[string]any{
		"analysis_id": id,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// blanket clear on an empty set is fine
	result, err = s.handleClear(context.Background(), toolRequest("hibana_clear", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, toolText(t, result), `"cleared": 0`)
}

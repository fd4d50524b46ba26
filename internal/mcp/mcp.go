// Package mcp implements the Model Context Protocol server for Hibana.
//
// The MCP server exposes the analysis workflow as tools and resources so
// MCP-compatible AI agents can parse Spark event logs, inspect the
// findings, and pull tuning recommendations without going through the
// HTTP API.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hibana/internal/service"
)

// Server wraps the MCP server with Hibana's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	analyzer  *service.Analyzer
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(analyzer *service.Analyzer, version string, logger *slog.Logger) *Server {
	s := &Server{
		analyzer: analyzer,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"hibana",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// jsonResult marshals v indented into a text tool result.
func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("marshal result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

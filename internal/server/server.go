package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/hibana/internal/ratelimit"
	"github.com/ashita-ai/hibana/internal/service"
)

// Server is the Hibana HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. MCPServer is optional (nil = no /mcp endpoint).
type ServerConfig struct {
	Analyzer  *service.Analyzer
	Logger    *slog.Logger
	MCPServer *mcpserver.MCPServer

	// RateLimiter throttles analysis submissions per client IP.
	// Nil disables limiting.
	RateLimiter ratelimit.Limiter

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// Optional embedded OpenAPI YAML.
	OpenAPISpec []byte
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Analyzer:            cfg.Analyzer,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Analysis submissions do real parse work; everything else is a
	// map lookup and stays unthrottled.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}
	submitRL := ratelimit.Middleware(cfg.RateLimiter, "analyses", ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Analyses: submit, list, inspect, delete.
	mux.Handle("POST /v1/analyses", submitRL(http.HandlerFunc(h.HandleCreateAnalysis)))
	mux.HandleFunc("GET /v1/analyses", h.HandleListAnalyses)
	mux.HandleFunc("GET /v1/analyses/{id}", h.HandleGetAnalysis)
	mux.HandleFunc("DELETE /v1/analyses/{id}", h.HandleDeleteAnalysis)

	// Derived views of one analysis.
	mux.HandleFunc("GET /v1/analyses/{id}/recommendations", h.HandleRecommendations)
	mux.HandleFunc("GET /v1/analyses/{id}/report", h.HandleReport)

	// Persisted history across restarts.
	mux.HandleFunc("GET /v1/history", h.HandleHistory)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// OpenAPI spec.
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Health (no envelope consumers depend on, keep it stable).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

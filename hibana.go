// Package hibana is the public API for embedding the Hibana Spark
// performance analysis server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := hibana.New(
//	    hibana.WithVersion(version),
//	    hibana.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: hibana (root)
// imports internal/*, but internal/* never imports hibana (root).
package hibana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/hibana/api"
	"github.com/ashita-ai/hibana/internal/config"
	"github.com/ashita-ai/hibana/internal/history"
	"github.com/ashita-ai/hibana/internal/mcp"
	"github.com/ashita-ai/hibana/internal/ratelimit"
	"github.com/ashita-ai/hibana/internal/server"
	"github.com/ashita-ai/hibana/internal/service"
	"github.com/ashita-ai/hibana/internal/session"
	"github.com/ashita-ai/hibana/internal/telemetry"
)

// App is the Hibana server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	srv          *server.Server
	analyzer     *service.Analyzer
	store        history.Store // nil when history is disabled
	limiter      ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the Hibana server. It opens the history store, wires
// all subsystems, and returns a ready-to-run App. It does NOT start any
// goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.HistoryBackend = "postgres"
		cfg.DatabaseURL = o.databaseURL
	}
	if o.sqlitePath != "" {
		cfg.HistoryBackend = "sqlite"
		cfg.SQLitePath = o.sqlitePath
	}
	if o.historyDisabled {
		cfg.HistoryBackend = "none"
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("hibana starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Open the history store.
	var store history.Store
	switch cfg.HistoryBackend {
	case "sqlite":
		store, err = history.OpenSQLite(context.Background(), cfg.SQLitePath)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("history: %w", err)
		}
		logger.Info("history: sqlite", "path", cfg.SQLitePath)
	case "postgres":
		store, err = history.OpenPostgres(context.Background(), cfg.DatabaseURL)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("history: %w", err)
		}
		logger.Info("history: postgres")
	default:
		logger.Info("history: disabled")
	}

	// Analysis metrics (nil-safe when OTEL is not configured).
	metrics, err := telemetry.NewMetrics("hibana")
	if err != nil {
		logger.Warn("metrics init failed", "error", err)
	}

	// Analyzer over the in-memory working set.
	analyzer := service.NewAnalyzer(service.Options{
		Logger:      logger,
		Analysis:    cfg.AnalysisConfig(),
		Sessions:    session.NewRegistry(cfg.SessionCapacity),
		Store:       store,
		Metrics:     metrics,
		Parallelism: cfg.ParseParallelism,
		MaxLogBytes: cfg.MaxLogBytes,
	})

	// MCP server.
	mcpSrv := mcp.New(analyzer, version, logger)

	// Rate limiter for analysis submissions.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	// HTTP server (MCP mounted at /mcp).
	srv := server.New(server.ServerConfig{
		Analyzer:            analyzer,
		Logger:              logger,
		MCPServer:           mcpSrv.MCPServer(),
		RateLimiter:         limiter,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
	})

	return &App{
		cfg:          cfg,
		srv:          srv,
		analyzer:     analyzer,
		store:        store,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Analyzer exposes the analysis service for embedding consumers that
// want to drive analyses programmatically instead of over HTTP.
func (a *App) Analyzer() *service.Analyzer {
	return a.analyzer
}

// Run starts the HTTP server and blocks until ctx is cancelled or a
// fatal server error occurs. On return, Shutdown is called
// automatically — callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests, drains in-flight ones, then
// closes the history store and the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("hibana shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("history close error", "error", err)
		}
	}
	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("hibana stopped")
	return nil
}

// Heron - Maintenance analytics for city infrastructure.
// Copyright (c) 2026 cityinfra
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cityinfra/heron/internal/api"
	"github.com/cityinfra/heron/internal/bus"
	"github.com/cityinfra/heron/internal/cache"
	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/engine"
	"github.com/cityinfra/heron/internal/export"
	"github.com/cityinfra/heron/internal/repository"
	"github.com/cityinfra/heron/internal/rules"
	"github.com/cityinfra/heron/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("HERON_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting heron",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HERON_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	if dir := os.Getenv("HERON_EXPORT_DIR"); dir != "" {
		cfg.ExportDir = dir
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load analytics configuration. Missing paths fall back to the
	// shipped defaults.
	engineCfg, matrix, err := loadAnalyticsConfig(cfg)
	if err != nil {
		slog.Error("failed to load analytics configuration", "error", err)
		os.Exit(1)
	}

	// Initialize Analytics Engine
	analyticsEngine, err := engine.New(engineCfg, matrix)
	if err != nil {
		slog.Error("failed to initialize analytics engine", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics engine initialized",
		"severity_levels", len(matrix.Entries),
		"max_workers", engineCfg.MaxWorkers,
	)

	// Initialize Alert Policy Engine
	alertEngine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize alert engine", "error", err)
		os.Exit(1)
	}

	// Load alert rules from database (no hardcoded defaults - configure via API)
	if err := loadAlertRulesFromDatabase(ctx, repo, alertEngine); err != nil {
		slog.Error("failed to load alert rules", "error", err)
		os.Exit(1)
	}
	slog.Info("alert engine initialized", "rules_count", alertEngine.RulesCount())

	// Initialize report exporter when an export directory is configured
	var exporter *export.ExcelWriter
	if cfg.ExportDir != "" {
		exporter, err = export.NewExcelWriter(cfg.ExportDir)
		if err != nil {
			slog.Error("failed to initialize report exporter", "error", err)
			os.Exit(1)
		}
		slog.Info("report exporter initialized", "dir", cfg.ExportDir)
	}

	// Initialize async Worker
	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, analyticsEngine, alertEngine, exporter)

	// Get city IDs to process (from environment or wildcard)
	var cityIDs []string
	if envCities := os.Getenv("HERON_CITIES"); envCities != "" {
		for _, c := range strings.Split(envCities, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cityIDs = append(cityIDs, c)
			}
		}
	}

	workerCfg := worker.Config{
		CityIDs:   cityIDs,
		ReportTTL: time.Hour,
	}

	if err := asyncWorker.Start(workerCfg); err != nil {
		slog.Error("failed to start async worker", "error", err)
	} else {
		slog.Info("async worker started", "city_count", len(cityIDs))
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, analyticsEngine, alertEngine, exporter, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("heron is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop async worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("heron shutdown complete")
}

// loadAnalyticsConfig resolves the engine config and severity matrix,
// falling back to the shipped defaults when no files are configured.
func loadAnalyticsConfig(cfg *domain.Config) (*domain.EngineConfig, *domain.SeverityMatrix, error) {
	engineCfg := domain.DefaultEngineConfig()
	if cfg.EngineConfigPath != "" {
		loaded, err := domain.LoadEngineConfig(cfg.EngineConfigPath)
		if err != nil {
			return nil, nil, fmt.Errorf("engine config %s: %w", cfg.EngineConfigPath, err)
		}
		engineCfg = loaded
		slog.Info("engine config loaded", "path", cfg.EngineConfigPath)
	}

	matrix := domain.DefaultSeverityMatrix()
	if cfg.SeverityMatrixPath != "" {
		loaded, err := domain.LoadSeverityMatrix(cfg.SeverityMatrixPath)
		if err != nil {
			return nil, nil, fmt.Errorf("severity matrix %s: %w", cfg.SeverityMatrixPath, err)
		}
		matrix = loaded
		slog.Info("severity matrix loaded", "path", cfg.SeverityMatrixPath)
	}

	return engineCfg, matrix, nil
}

// loadAlertRulesFromDatabase loads alert rules into the engine.
// All rules must be configured via POST /alert-rules - no hardcoded defaults.
func loadAlertRulesFromDatabase(ctx context.Context, repo domain.Repository, alertEngine *rules.Engine) error {
	dbRules, err := repo.ListAlertRules(ctx, api.GlobalCityID)
	if err != nil {
		slog.Warn("failed to list alert rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading alert rules from database", "count", len(dbRules))
		return alertEngine.LoadRules(dbRules)
	}

	slog.Info("no alert rules in database - configure via POST /alert-rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 HERON                    ║")
	fmt.Println("  ║     Maintenance Analytics Engine          ║")
	fmt.Println("  ║      Every asset, accounted for.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assets                    - Register an asset")
	fmt.Println("    GET  /assets                    - List assets")
	fmt.Println("    POST /assets/{id}/retire        - Retire an asset")
	fmt.Println("    POST /assets/{id}/maintenance   - Log a maintenance record")
	fmt.Println("    POST /incidents                 - Report an incident")
	fmt.Println("    POST /incidents/{id}/resolve    - Resolve an incident")
	fmt.Println("    POST /complaints                - File a complaint")
	fmt.Println("    POST /analytics/run             - Trigger an analytics run")
	fmt.Println("    GET  /reports/latest            - Latest analytics report")
	fmt.Println("    GET  /reports/{id}/export       - Export report as .xlsx")
	fmt.Println("    POST /alert-rules               - Create an alert rule")
	fmt.Println("    POST /alert-rules/reload        - Hot-reload alert rules")
	fmt.Println("    GET  /health                    - Health check")
	fmt.Println()
}

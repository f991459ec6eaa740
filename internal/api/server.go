package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/engine"
	"github.com/cityinfra/heron/internal/export"
	"github.com/cityinfra/heron/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, alerts *rules.Engine, exporter *export.ExcelWriter, version string) *Server {
	handler := NewHandler(repo, cache, bus, eng, alerts, exporter, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no city required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (city required)
	router.Route("/", func(r chi.Router) {
		r.Use(CityMiddleware)

		// Asset registry
		r.Post("/assets", handler.CreateAsset)
		r.Get("/assets", handler.ListAssets)
		r.Get("/assets/{id}", handler.GetAsset)
		r.Put("/assets/{id}/status", handler.UpdateAssetStatus)
		r.Post("/assets/{id}/retire", handler.RetireAsset)

		// Maintenance log
		r.Post("/assets/{id}/maintenance", handler.CreateMaintenanceRecord)
		r.Get("/assets/{id}/maintenance", handler.ListMaintenanceRecords)

		// Incidents
		r.Post("/incidents", handler.CreateIncident)
		r.Get("/incidents/{id}", handler.GetIncident)
		r.Post("/incidents/{id}/resolve", handler.ResolveIncident)

		// Complaints
		r.Post("/complaints", handler.CreateComplaint)
		r.Put("/complaints/{id}", handler.UpdateComplaint)

		// Analytics
		r.Post("/analytics/run", handler.RunAnalytics)
		r.Get("/reports/latest", handler.LatestReport)
		r.Get("/reports/{id}", handler.GetReport)
		r.Get("/reports/{id}/export", handler.ExportReport)

		// Alert policy management
		r.Get("/alert-rules", handler.ListAlertRules)
		r.Get("/alert-rules/{id}", handler.GetAlertRule)
		r.Post("/alert-rules", handler.CreateAlertRule)
		r.Delete("/alert-rules/{id}", handler.DeleteAlertRule)
		r.Post("/alert-rules/reload", handler.ReloadAlertRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}

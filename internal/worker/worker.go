// Package worker provides async analytics processing from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/engine"
	"github.com/cityinfra/heron/internal/export"
	"github.com/cityinfra/heron/internal/rules"
)

// Worker runs analytics batches asynchronously on run-requested events.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	engine   *engine.Engine
	alerts   *rules.Engine
	exporter *export.ExcelWriter

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// CityIDs is the list of cities to process.
	CityIDs []string

	// ReportTTL is how long completed reports stay cached.
	ReportTTL time.Duration
}

// NewWorker creates a new async worker. cache and exporter may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, eng *engine.Engine, alerts *rules.Engine, exporter *export.ExcelWriter) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		engine:   eng,
		alerts:   alerts,
		exporter: exporter,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing run requests for the given cities.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.CityIDs) == 0 {
		return w.startGlobalWorker(cfg)
	}

	for _, cityID := range cfg.CityIDs {
		if err := w.startCityWorker(cityID, cfg); err != nil {
			slog.Error("failed to start worker for city",
				"city_id", cityID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"city_count", len(cfg.CityIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all cities (for testing/dev).
func (w *Worker) startGlobalWorker(cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicRunRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRun(ctx, msg.CityID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startCityWorker starts a worker for a specific city.
func (w *Worker) startCityWorker(cityID string, cfg Config) error {
	sub, err := w.bus.Subscribe(w.ctx, cityID, domain.TopicRunRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.processRun(ctx, cityID, msg, cfg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("city worker started",
		"city_id", cityID,
		"topic", domain.TopicRunRequested,
	)

	return nil
}

// RunMessage is the payload of a run-requested event.
type RunMessage struct {
	CityID  string `json:"cityId"`
	TraceID string `json:"traceId,omitempty"`

	// Now pins the reference instant for the run. Zero means wall clock.
	Now time.Time `json:"now,omitempty"`
}

// processRun loads a snapshot, runs the engine and persists the report.
func (w *Worker) processRun(ctx context.Context, cityID string, msg *domain.Message, cfg Config) error {
	start := time.Now()

	var runMsg RunMessage
	if err := json.Unmarshal(msg.Payload, &runMsg); err != nil {
		slog.Error("failed to parse run message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message city if provided
	if runMsg.CityID != "" {
		cityID = runMsg.CityID
	}

	traceID := runMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	now := runMsg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	slog.Debug("starting analytics run",
		"city_id", cityID,
		"trace_id", traceID,
	)

	// 1. Load the immutable record snapshot
	snap, err := w.repo.LoadSnapshot(ctx, cityID)
	if err != nil {
		slog.Error("failed to load snapshot",
			"city_id", cityID,
			"error", err,
		)
		return err
	}

	// 2. Run the engine
	report, err := w.engine.Run(ctx, snap, now)
	if err != nil {
		slog.Error("analytics run failed",
			"city_id", cityID,
			"error", err,
		)
		return err
	}
	if report.Metadata.TraceID == "" {
		report.Metadata.TraceID = traceID
	}

	// 3. Apply alert policies over the scores
	if w.alerts != nil && w.alerts.RulesCount() > 0 {
		report.Alerts = w.alerts.EvaluateScores(report.Scores)
	}

	// 4. Persist the report
	if err := w.repo.SaveReport(ctx, cityID, report); err != nil {
		slog.Error("failed to save report",
			"city_id", cityID,
			"report_id", report.ID,
			"error", err,
		)
	}
	if w.cache != nil {
		ttl := cfg.ReportTTL
		if ttl == 0 {
			ttl = time.Hour
		}
		_ = w.cache.SetReport(ctx, cityID, report.ID, report, ttl)
	}

	// 5. Export the spreadsheet rendition if configured
	if w.exporter != nil {
		if path, err := w.exporter.Write(report); err != nil {
			slog.Error("failed to export report",
				"report_id", report.ID,
				"error", err,
			)
		} else {
			slog.Debug("report exported", "path", path)
		}
	}

	// 6. Publish completion
	resultPayload, _ := json.Marshal(report)
	if err := w.bus.Publish(ctx, cityID, domain.TopicReportCompleted, resultPayload); err != nil {
		slog.Error("failed to publish report completion",
			"report_id", report.ID,
			"error", err,
		)
	}

	// 7. Critical zones or triggered alerts escalate separately
	if len(report.CriticalZones()) > 0 || len(report.Alerts) > 0 {
		if err := w.bus.Publish(ctx, cityID, domain.TopicCriticalAlert, resultPayload); err != nil {
			slog.Error("failed to publish critical alert",
				"report_id", report.ID,
				"error", err,
			)
		}
	}

	slog.Info("analytics run completed",
		"city_id", cityID,
		"report_id", report.ID,
		"assets_scored", report.Metadata.AssetsScored,
		"incidents_checked", report.Metadata.IncidentsChecked,
		"alerts", len(report.Alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

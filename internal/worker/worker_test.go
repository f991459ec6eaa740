package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cityinfra/heron/internal/bus"
	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/engine"
	"github.com/cityinfra/heron/internal/repository"
	"github.com/cityinfra/heron/internal/rules"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "heron-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(domain.DefaultEngineConfig(), domain.DefaultSeverityMatrix())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng
}

func seedCity(t *testing.T, repo domain.Repository, cityID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	asset := &domain.Asset{
		ID:               "asset-001",
		Type:             domain.AssetRoad,
		Region:           "Downtown",
		InstalledAt:      now.AddDate(-9, 0, 0),
		ExpectedLifespan: 3650 * 24 * time.Hour,
		Status:           domain.AssetActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.SaveAsset(ctx, cityID, asset); err != nil {
		t.Fatalf("SaveAsset failed: %v", err)
	}

	inc := &domain.Incident{
		ID:          "inc-001",
		AssetID:     "asset-001",
		Severity:    "High",
		ReportedAt:  now.Add(-48 * time.Hour),
		Status:      domain.IncidentOpen,
		SLADeadline: now.Add(-24 * time.Hour),
	}
	if err := repo.SaveIncident(ctx, cityID, inc); err != nil {
		t.Fatalf("SaveIncident failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	eng := newTestEngine(t)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, newTestRepo(t), nil, eng, nil, nil)

		cfg := Config{CityIDs: []string{"springfield"}}
		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}

		stats = w.GetStats()
		if stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("ProcessRun", func(t *testing.T) {
		repo := newTestRepo(t)
		seedCity(t, repo, "springfield")

		w := NewWorker(eventBus, repo, nil, eng, nil, nil)
		if err := w.Start(Config{CityIDs: []string{"springfield"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		var completed atomic.Bool
		var completedPayload []byte

		eventBus.Subscribe(context.Background(), "springfield", domain.TopicReportCompleted, func(ctx context.Context, msg *domain.Message) error {
			completedPayload = msg.Payload
			completed.Store(true)
			return nil
		})

		// Allow subscriptions to be active
		time.Sleep(50 * time.Millisecond)

		runMsg := RunMessage{CityID: "springfield", TraceID: "trace-001"}
		payload, _ := json.Marshal(runMsg)
		if err := eventBus.Publish(context.Background(), "springfield", domain.TopicRunRequested, payload); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		// Wait for processing
		deadline := time.After(2 * time.Second)
		for !completed.Load() {
			select {
			case <-deadline:
				t.Fatal("timeout waiting for report completion")
			case <-time.After(20 * time.Millisecond):
			}
		}

		var report domain.Report
		if err := json.Unmarshal(completedPayload, &report); err != nil {
			t.Fatalf("failed to parse report: %v", err)
		}
		if report.CityID != "springfield" {
			t.Errorf("expected cityID 'springfield', got '%s'", report.CityID)
		}
		if report.Metadata.TraceID != "trace-001" {
			t.Errorf("expected traceID 'trace-001', got '%s'", report.Metadata.TraceID)
		}
		if report.Metadata.AssetsScored != 1 {
			t.Errorf("expected 1 asset scored, got %d", report.Metadata.AssetsScored)
		}

		// The report must also be persisted.
		saved, err := repo.GetReport(context.Background(), "springfield", report.ID)
		if err != nil {
			t.Fatalf("expected report persisted: %v", err)
		}
		if len(saved.SLA) != 1 || saved.SLA[0].Classification != domain.SLAPending {
			t.Errorf("unexpected persisted SLA results: %+v", saved.SLA)
		}
	})

	t.Run("CriticalAlertPublished", func(t *testing.T) {
		repo := newTestRepo(t)
		seedCity(t, repo, "alert-city")

		alertEngine, err := rules.NewEngine()
		if err != nil {
			t.Fatalf("failed to create alert engine: %v", err)
		}
		// Trips on any scored asset.
		if err := alertEngine.LoadRule(&domain.AlertRule{
			ID:         "always",
			Name:       "any condition",
			Expression: "score >= 0.0",
			Enabled:    true,
		}); err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		w := NewWorker(eventBus, repo, nil, eng, alertEngine, nil)
		if err := w.Start(Config{CityIDs: []string{"alert-city"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		var alertReceived atomic.Bool
		eventBus.Subscribe(context.Background(), "alert-city", domain.TopicCriticalAlert, func(ctx context.Context, msg *domain.Message) error {
			alertReceived.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		payload, _ := json.Marshal(RunMessage{CityID: "alert-city"})
		eventBus.Publish(context.Background(), "alert-city", domain.TopicRunRequested, payload)

		deadline := time.After(2 * time.Second)
		for !alertReceived.Load() {
			select {
			case <-deadline:
				t.Fatal("expected critical alert to be published")
			case <-time.After(20 * time.Millisecond):
			}
		}
	})

	t.Run("MultiCity", func(t *testing.T) {
		w := NewWorker(eventBus, newTestRepo(t), nil, eng, nil, nil)

		cfg := Config{CityIDs: []string{"city-a", "city-b"}}
		if err := w.Start(cfg); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 cities, got %d", stats.SubscriptionCount)
		}
	})
}

func TestRunMessageParsing(t *testing.T) {
	msg := RunMessage{
		CityID:  "springfield",
		TraceID: "trace-456",
		Now:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var parsed RunMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if parsed.CityID != msg.CityID {
		t.Errorf("expected CityID '%s', got '%s'", msg.CityID, parsed.CityID)
	}
	if !parsed.Now.Equal(msg.Now) {
		t.Errorf("expected Now %v, got %v", msg.Now, parsed.Now)
	}
}

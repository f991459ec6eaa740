package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/cityinfra/heron/internal/bus"
	"github.com/cityinfra/heron/internal/cache"
	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/engine"
	"github.com/cityinfra/heron/internal/export"
	"github.com/cityinfra/heron/internal/repository"
	"github.com/cityinfra/heron/internal/rules"
)

// createTestServer wires a full server against a temp SQLite database.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	tmpFile, err := os.CreateTemp("", "heron-api-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
		os.Remove(tmpPath)
	})

	eng, err := engine.New(domain.DefaultEngineConfig(), domain.DefaultSeverityMatrix())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	alerts, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("failed to create alert engine: %v", err)
	}

	exporter, err := export.NewExcelWriter(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}

	return NewServer(cfg, repo, cache.NewLRUCache(100), bus.NewChannelBus(100), eng, alerts, exporter, "test-v1")
}

// doRequest sends a JSON request through the full router.
func doRequest(server *Server, method, path, cityID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cityID != "" {
		req.Header.Set(CityIDHeader, cityID)
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

// registerAsset creates an asset through the API and returns it.
func registerAsset(t *testing.T, server *Server, cityID string, req domain.AssetRequest) *domain.Asset {
	t.Helper()

	rr := doRequest(server, http.MethodPost, "/assets", cityID, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var asset domain.Asset
	if err := json.Unmarshal(rr.Body.Bytes(), &asset); err != nil {
		t.Fatalf("failed to parse asset: %v", err)
	}
	return &asset
}

func TestAssetEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("RegisterAsset", func(t *testing.T) {
		asset := registerAsset(t, server, "springfield", domain.AssetRequest{
			Type:                 "road",
			Region:               "Downtown",
			InstalledAt:          time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC),
			ExpectedLifespanDays: 365,
		})

		if asset.ID == "" {
			t.Error("expected generated asset ID")
		}
		if asset.CityID != "springfield" {
			t.Errorf("expected city springfield, got %s", asset.CityID)
		}
		if asset.Status != domain.AssetActive {
			t.Errorf("expected status active, got %s", asset.Status)
		}
		if asset.ExpectedLifespan != 365*24*time.Hour {
			t.Errorf("unexpected lifespan: %v", asset.ExpectedLifespan)
		}
	})

	t.Run("InvalidAssetType", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/assets", "springfield", domain.AssetRequest{
			Type:                 "canal",
			InstalledAt:          time.Now(),
			ExpectedLifespanDays: 365,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingCityID", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/assets", "", domain.AssetRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetAsset", func(t *testing.T) {
		asset := registerAsset(t, server, "springfield", domain.AssetRequest{
			Type:                 "bridge",
			Region:               "Riverside",
			InstalledAt:          time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC),
			ExpectedLifespanDays: 730,
		})

		rr := doRequest(server, http.MethodGet, "/assets/"+asset.ID, "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var got domain.Asset
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Type != domain.AssetBridge {
			t.Errorf("expected bridge, got %s", got.Type)
		}
	})

	t.Run("GetAssetNotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/assets/ghost", "springfield", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListAssets", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/assets", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count < 2 {
			t.Errorf("expected at least 2 assets, got %d", resp.Count)
		}
	})

	t.Run("RetireAsset", func(t *testing.T) {
		asset := registerAsset(t, server, "springfield", domain.AssetRequest{
			Type:                 "streetlight",
			Region:               "Downtown",
			InstalledAt:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			ExpectedLifespanDays: 180,
		})

		rr := doRequest(server, http.MethodPost, "/assets/"+asset.ID+"/retire", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(server, http.MethodGet, "/assets/"+asset.ID, "springfield", nil)
		var got domain.Asset
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Status != domain.AssetRetired {
			t.Errorf("expected retired, got %s", got.Status)
		}
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		asset := registerAsset(t, server, "springfield", domain.AssetRequest{
			Type:                 "park",
			Region:               "Hillside",
			InstalledAt:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			ExpectedLifespanDays: 90,
		})

		rr := doRequest(server, http.MethodPut, "/assets/"+asset.ID+"/status", "springfield",
			map[string]string{"status": "demolished"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestMaintenanceEndpoints(t *testing.T) {
	server := createTestServer(t)

	asset := registerAsset(t, server, "springfield", domain.AssetRequest{
		Type:                 "road",
		Region:               "Downtown",
		InstalledAt:          time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpectedLifespanDays: 365,
	})

	t.Run("LogRecord", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/assets/"+asset.ID+"/maintenance", "springfield",
			MaintenanceRequest{
				Action:    "Repair",
				Performer: "crew-7",
				Cost:      1500,
				Date:      time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
				Notes:     "pothole patching",
			})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var rec domain.MaintenanceRecord
		json.Unmarshal(rr.Body.Bytes(), &rec)
		if rec.ID == "" {
			t.Error("expected generated record ID")
		}
		if rec.Action != domain.ActionRepair {
			t.Errorf("expected Repair, got %s", rec.Action)
		}
	})

	t.Run("InvalidAction", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/assets/"+asset.ID+"/maintenance", "springfield",
			MaintenanceRequest{Action: "Demolition", Date: time.Now()})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownAsset", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/assets/ghost/maintenance", "springfield",
			MaintenanceRequest{Action: "Inspection", Date: time.Now()})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ListRecords", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/assets/"+asset.ID+"/maintenance", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 record, got %d", resp.Count)
		}
	})

	t.Run("BadSinceFilter", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/assets/"+asset.ID+"/maintenance?since=yesterday", "springfield", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestIncidentEndpoints(t *testing.T) {
	server := createTestServer(t)

	asset := registerAsset(t, server, "springfield", domain.AssetRequest{
		Type:                 "bridge",
		Region:               "Riverside",
		InstalledAt:          time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpectedLifespanDays: 730,
	})

	t.Run("ReportIncident", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/incidents", "springfield", IncidentRequest{
			AssetID:  asset.ID,
			Severity: "High",
			Reporter: "inspector-3",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var inc domain.Incident
		json.Unmarshal(rr.Body.Bytes(), &inc)
		if inc.Status != domain.IncidentOpen {
			t.Errorf("expected open, got %s", inc.Status)
		}
		// High severity carries a 24h response window.
		if got := inc.SLADeadline.Sub(inc.ReportedAt); got != 24*time.Hour {
			t.Errorf("expected 24h SLA window, got %v", got)
		}
	})

	t.Run("UnknownSeverity", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/incidents", "springfield", IncidentRequest{
			AssetID:  asset.ID,
			Severity: "Apocalyptic",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownAsset", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/incidents", "springfield", IncidentRequest{
			AssetID:  "ghost",
			Severity: "Low",
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ResolveIncident", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/incidents", "springfield", IncidentRequest{
			AssetID:  asset.ID,
			Severity: "Medium",
		})
		var inc domain.Incident
		json.Unmarshal(rr.Body.Bytes(), &inc)

		rr = doRequest(server, http.MethodPost, "/incidents/"+inc.ID+"/resolve", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(server, http.MethodGet, "/incidents/"+inc.ID, "springfield", nil)
		var got domain.Incident
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.Status != domain.IncidentResolved {
			t.Errorf("expected resolved, got %s", got.Status)
		}
		if got.ResolvedAt == nil {
			t.Error("expected resolvedAt to be set")
		}

		// Resolving twice is rejected
		rr = doRequest(server, http.MethodPost, "/incidents/"+inc.ID+"/resolve", "springfield", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on double resolve, got %d", rr.Code)
		}
	})
}

func TestComplaintEndpoints(t *testing.T) {
	server := createTestServer(t)

	asset := registerAsset(t, server, "springfield", domain.AssetRequest{
		Type:                 "park",
		Region:               "Hillside",
		InstalledAt:          time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpectedLifespanDays: 90,
	})

	t.Run("FileComplaint", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/complaints", "springfield", ComplaintRequest{
			AssetID: asset.ID,
			Rating:  4,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var c domain.Complaint
		json.Unmarshal(rr.Body.Bytes(), &c)
		if c.Status != domain.ComplaintOpen {
			t.Errorf("expected Open, got %s", c.Status)
		}
	})

	t.Run("InvalidRating", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/complaints", "springfield", ComplaintRequest{
			AssetID: asset.ID,
			Rating:  6,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("CloseComplaint", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/complaints", "springfield", ComplaintRequest{
			AssetID: asset.ID,
			Rating:  2,
		})
		var c domain.Complaint
		json.Unmarshal(rr.Body.Bytes(), &c)

		rr = doRequest(server, http.MethodPut, "/complaints/"+c.ID, "springfield",
			map[string]string{"status": "Closed"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		rr := doRequest(server, http.MethodPut, "/complaints/ghost", "springfield",
			map[string]string{"status": "Ignored"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	server := createTestServer(t)

	asset := registerAsset(t, server, "springfield", domain.AssetRequest{
		Type:                 "road",
		Region:               "Downtown",
		InstalledAt:          time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpectedLifespanDays: 365,
	})
	doRequest(server, http.MethodPost, "/incidents", "springfield", IncidentRequest{
		AssetID:  asset.ID,
		Severity: "High",
	})

	var reportID string

	t.Run("SyncRun", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/analytics/run", "springfield",
			RunRequest{Sync: true})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var report domain.Report
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to parse report: %v", err)
		}
		if report.ID == "" {
			t.Fatal("expected report ID")
		}
		if report.CityID != "springfield" {
			t.Errorf("expected city springfield, got %s", report.CityID)
		}
		if len(report.Scores) != 1 {
			t.Errorf("expected 1 score, got %d", len(report.Scores))
		}
		if len(report.SLA) != 1 {
			t.Errorf("expected 1 SLA result, got %d", len(report.SLA))
		}
		if report.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		reportID = report.ID
	})

	t.Run("GetReport", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/reports/"+reportID, "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("LatestReport", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/reports/latest", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var report domain.Report
		json.Unmarshal(rr.Body.Bytes(), &report)
		if report.ID != reportID {
			t.Errorf("expected latest report %s, got %s", reportID, report.ID)
		}
	})

	t.Run("ExportReport", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/reports/"+reportID+"/export", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
			t.Errorf("unexpected content type %q", ct)
		}
		if rr.Body.Len() == 0 {
			t.Error("expected workbook bytes in response")
		}
	})

	t.Run("ReportNotFound", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/reports/ghost", "springfield", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("AsyncRunAccepted", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/analytics/run", "springfield", nil)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp["status"] != "accepted" {
			t.Errorf("expected accepted, got %s", resp["status"])
		}
	})

	t.Run("RateLimit", func(t *testing.T) {
		// A fresh city so previous runs don't count against the window
		for i := 0; i < maxRunsPerMinute; i++ {
			rr := doRequest(server, http.MethodPost, "/analytics/run", "shelbyville", nil)
			if rr.Code != http.StatusAccepted {
				t.Fatalf("run %d: expected status 202, got %d", i+1, rr.Code)
			}
		}

		rr := doRequest(server, http.MethodPost, "/analytics/run", "shelbyville", nil)
		if rr.Code != http.StatusTooManyRequests {
			t.Errorf("expected status 429, got %d", rr.Code)
		}
	})
}

func TestAlertRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateRule", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alert-rules", "springfield", CreateAlertRuleRequest{
			ID:          "high-score",
			Name:        "High Condition Score",
			Description: "asset condition exceeds 75",
			Expression:  "score >= 75.0",
			Enabled:     true,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alert-rules", "springfield", CreateAlertRuleRequest{
			ID:         "broken",
			Name:       "Broken Rule",
			Expression: "score >>> 1",
			Enabled:    true,
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alert-rules", "springfield", CreateAlertRuleRequest{
			ID: "incomplete",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ReloadRules", func(t *testing.T) {
		rr := doRequest(server, http.MethodPost, "/alert-rules/reload", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 rule reloaded, got %d", resp.Count)
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alert-rules", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", resp.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rr := doRequest(server, http.MethodGet, "/alert-rules/high-score", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var rule domain.AlertRule
		json.Unmarshal(rr.Body.Bytes(), &rule)
		if rule.Expression != "score >= 75.0" {
			t.Errorf("unexpected expression %q", rule.Expression)
		}
	})

	t.Run("DeleteRule", func(t *testing.T) {
		rr := doRequest(server, http.MethodDelete, "/alert-rules/high-score", "springfield", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doRequest(server, http.MethodGet, "/alert-rules/high-score", "springfield", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("CityMiddlewareExtractsID", func(t *testing.T) {
		var capturedCityID string

		handler := CityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedCityID = GetCityID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CityIDHeader, "my-city-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedCityID != "my-city-123" {
			t.Errorf("expected city ID 'my-city-123', got '%s'", capturedCityID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}

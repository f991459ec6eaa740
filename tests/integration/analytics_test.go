//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Heron maintenance
// analytics engine.
//
// These tests verify the COMPLETE analytics pipeline:
//
//	Assets + Records → Scoring → Ranking → SLA → Forecasts → Report
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. ASSET: A piece of city infrastructure (road, bridge, streetlight,
//    park). Every asset belongs to exactly one city and optionally to a
//    region used for risk ranking.
//
// 2. RECORDS: The history accumulated against an asset:
//   - Maintenance records (what was done, when, at what cost)
//   - Incidents (severity-graded failures with an SLA deadline)
//   - Complaints (citizen ratings 1-5)
//
// 3. CONDITION SCORE: A 0-100 composite per asset, weighted across age,
//    repair frequency, incident severity and complaint density. Higher
//    is worse.
//
// 4. SLA: Each incident severity carries a maximum response time
//    (Critical: 4h, High: 24h, Medium: 72h, Low: 7d, Routine: 14d).
//    Resolved incidents are classified compliant or violated; open ones
//    are pending.
//
// 5. REPORT: One analytics run produces a single report combining the
//    scores, the regional risk ranking, the maintenance forecast, the
//    SLA results and any triggered alert rules.
//
// By default the suite wires a complete in-process stack (SQLite
// repository, channel bus, LRU cache, async worker, chi router) so it
// needs no external services. Set HERON_TEST_URL to point the same
// scenarios at an already-running server instead.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
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

// asyncCity is the only city the in-process worker subscribes to. Async
// run tests must use it; everything else gets its own city for isolation.
const asyncCity = "gotham-int"

var baseURL string

func TestMain(m *testing.M) {
	if url := os.Getenv("HERON_TEST_URL"); url != "" {
		baseURL = url
		os.Exit(m.Run())
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	dir, err := os.MkdirTemp("", "heron-integration-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(dir, "heron.db"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create repository: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(domain.DefaultEngineConfig(), domain.DefaultSeverityMatrix())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create engine: %v\n", err)
		os.Exit(1)
	}

	alerts, err := rules.NewEngine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create alert engine: %v\n", err)
		os.Exit(1)
	}

	exporter, err := export.NewExcelWriter(filepath.Join(dir, "reports"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create exporter: %v\n", err)
		os.Exit(1)
	}

	evBus := bus.NewChannelBus(100)
	lru := cache.NewLRUCache(1000)

	wrk := worker.NewWorker(evBus, repo, lru, eng, alerts, exporter)
	if err := wrk.Start(worker.Config{
		CityIDs:   []string{asyncCity},
		ReportTTL: time.Hour,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start worker: %v\n", err)
		os.Exit(1)
	}

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
	server := api.NewServer(cfg, repo, lru, evBus, eng, alerts, exporter, "integration-test")
	ts := httptest.NewServer(server.Router())
	baseURL = ts.URL

	code := m.Run()

	ts.Close()
	wrk.Stop()
	repo.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

// ============================================================================
// API Request/Response Types (matching Heron's API contract)
// ============================================================================

type AssetRequest struct {
	Type                 string    `json:"type"`
	Region               string    `json:"region,omitempty"`
	InstalledAt          time.Time `json:"installedAt"`
	ExpectedLifespanDays int       `json:"expectedLifespanDays"`
}

type Asset struct {
	ID     string `json:"id"`
	CityID string `json:"cityId"`
	Type   string `json:"type"`
	Region string `json:"region,omitempty"`
	Status string `json:"status"`
}

type IncidentRequest struct {
	AssetID    string    `json:"assetId"`
	Severity   string    `json:"severity"`
	Reporter   string    `json:"reporter,omitempty"`
	ReportedAt time.Time `json:"reportedAt,omitempty"`
}

type Incident struct {
	ID          string    `json:"id"`
	AssetID     string    `json:"assetId"`
	Severity    string    `json:"severity"`
	Status      string    `json:"status"`
	ReportedAt  time.Time `json:"reportedAt"`
	SLADeadline time.Time `json:"slaDeadline"`
}

type MaintenanceRequest struct {
	Action    string    `json:"action"`
	Performer string    `json:"performer,omitempty"`
	Cost      float64   `json:"cost"`
	Date      time.Time `json:"date"`
}

type ComplaintRequest struct {
	AssetID string `json:"assetId"`
	Rating  int    `json:"rating"`
}

// Report mirrors the wire shape of a completed analytics run.
type Report struct {
	ID          string    `json:"id"`
	CityID      string    `json:"cityId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Scores      []struct {
		AssetID   string  `json:"assetId"`
		AssetType string  `json:"assetType"`
		Region    string  `json:"region"`
		Score     float64 `json:"score"`
	} `json:"scores"`
	Ranking []struct {
		Region     string  `json:"region"`
		Rank       int     `json:"rank"`
		MeanScore  float64 `json:"meanScore"`
		AssetCount int     `json:"assetCount"`
		Critical   bool    `json:"critical"`
	} `json:"ranking"`
	Forecasts []struct {
		AssetID      string `json:"assetId"`
		Reason       string `json:"reason"`
		DaysUntilDue int    `json:"daysUntilDue"`
	} `json:"forecasts"`
	SLA []struct {
		IncidentID     string `json:"incidentId"`
		Severity       string `json:"severity"`
		Classification string `json:"classification"`
	} `json:"sla"`
	Alerts []struct {
		RuleID    string  `json:"ruleId"`
		AssetID   string  `json:"assetId"`
		Value     float64 `json:"value"`
		Triggered bool    `json:"triggered"`
	} `json:"alerts"`
	Metadata struct {
		TraceID          string `json:"traceId"`
		AssetsScored     int    `json:"assetsScored"`
		IncidentsChecked int    `json:"incidentsChecked"`
		TotalMs          int64  `json:"totalMs"`
		EngineVersion    string `json:"engineVersion"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doJSON(t *testing.T, method, path, cityID string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cityID != "" {
		req.Header.Set("X-City-ID", cityID)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func createAsset(t *testing.T, cityID string, req AssetRequest) Asset {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/assets", cityID, req)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating asset, got %d: %s", status, body)
	}
	var asset Asset
	if err := json.Unmarshal(body, &asset); err != nil {
		t.Fatalf("failed to unmarshal asset: %v", err)
	}
	return asset
}

func reportIncident(t *testing.T, cityID string, req IncidentRequest) Incident {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/incidents", cityID, req)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 reporting incident, got %d: %s", status, body)
	}
	var inc Incident
	if err := json.Unmarshal(body, &inc); err != nil {
		t.Fatalf("failed to unmarshal incident: %v", err)
	}
	return inc
}

func resolveIncident(t *testing.T, cityID, incidentID string) {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/incidents/"+incidentID+"/resolve", cityID, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 resolving incident, got %d: %s", status, body)
	}
}

func fileComplaint(t *testing.T, cityID, assetID string, rating int) {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/complaints", cityID, ComplaintRequest{AssetID: assetID, Rating: rating})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 filing complaint, got %d: %s", status, body)
	}
}

func logMaintenance(t *testing.T, cityID, assetID string, req MaintenanceRequest) {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/assets/"+assetID+"/maintenance", cityID, req)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 logging maintenance, got %d: %s", status, body)
	}
}

// runSync triggers a synchronous analytics run and returns the report.
func runSync(t *testing.T, cityID string) Report {
	t.Helper()

	status, body := doJSON(t, http.MethodPost, "/analytics/run", cityID, map[string]any{"sync": true})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from sync run, got %d: %s", status, body)
	}
	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		t.Fatalf("failed to unmarshal report: %v (body: %s)", err, body)
	}
	return report
}

// ============================================================================
// SCENARIO 1: Full Pipeline (Sync Run)
// ============================================================================

func TestFullPipeline_SyncRun(t *testing.T) {
	/*
	   SCENARIO: A city with three assets in two regions and a realistic
	   mix of history:

	   - Riverside road, 3 years old: two past repairs, a Critical
	     incident resolved after ~10 hours (threshold 4h → violated), a
	     High incident resolved after ~2 hours (threshold 24h →
	     compliant), one open Medium incident (pending), two unhappy
	     complaints.
	   - Riverside park, 100 days old with no service history: the park
	     lifecycle interval is 90 days, so it is 10 days overdue and must
	     appear in the forecast.
	   - Hillside streetlight, 30 days old: clean.

	   EXPECTED: one report carrying 3 scores, 3 SLA results (one of each
	   classification), a 2-region ranking and a lifecycle-due forecast
	   for the park.
	*/
	city := "metropolis-int"
	now := time.Now().UTC()

	road := createAsset(t, city, AssetRequest{
		Type:                 "road",
		Region:               "Riverside",
		InstalledAt:          now.AddDate(-3, 0, 0),
		ExpectedLifespanDays: 3650,
	})
	park := createAsset(t, city, AssetRequest{
		Type:                 "park",
		Region:               "Riverside",
		InstalledAt:          now.AddDate(0, 0, -100),
		ExpectedLifespanDays: 1825,
	})
	createAsset(t, city, AssetRequest{
		Type:                 "streetlight",
		Region:               "Hillside",
		InstalledAt:          now.AddDate(0, 0, -30),
		ExpectedLifespanDays: 1825,
	})

	logMaintenance(t, city, road.ID, MaintenanceRequest{
		Action: "Repair", Performer: "city-crew-7", Cost: 4200, Date: now.AddDate(0, -6, 0),
	})
	logMaintenance(t, city, road.ID, MaintenanceRequest{
		Action: "Inspection", Performer: "city-crew-7", Cost: 300, Date: now.AddDate(0, -2, 0),
	})

	violated := reportIncident(t, city, IncidentRequest{
		AssetID: road.ID, Severity: "Critical", ReportedAt: now.Add(-10 * time.Hour),
	})
	resolveIncident(t, city, violated.ID)

	compliant := reportIncident(t, city, IncidentRequest{
		AssetID: road.ID, Severity: "High", ReportedAt: now.Add(-2 * time.Hour),
	})
	resolveIncident(t, city, compliant.ID)

	pending := reportIncident(t, city, IncidentRequest{
		AssetID: road.ID, Severity: "Medium", ReportedAt: now.Add(-24 * time.Hour),
	})

	fileComplaint(t, city, road.ID, 1)
	fileComplaint(t, city, road.ID, 2)

	report := runSync(t, city)

	if report.CityID != city {
		t.Errorf("expected report for city %s, got %s", city, report.CityID)
	}
	if len(report.Scores) != 3 {
		t.Fatalf("expected 3 condition scores, got %d", len(report.Scores))
	}
	if report.Metadata.AssetsScored != 3 {
		t.Errorf("expected assetsScored=3, got %d", report.Metadata.AssetsScored)
	}
	if report.Metadata.IncidentsChecked != 3 {
		t.Errorf("expected incidentsChecked=3, got %d", report.Metadata.IncidentsChecked)
	}

	// SLA: one of each classification, matched back to the incidents.
	if len(report.SLA) != 3 {
		t.Fatalf("expected 3 SLA results, got %d", len(report.SLA))
	}
	byIncident := make(map[string]string, 3)
	for _, r := range report.SLA {
		byIncident[r.IncidentID] = r.Classification
	}
	if got := byIncident[violated.ID]; got != "violated" {
		t.Errorf("Critical incident resolved after 10h: expected violated, got %q", got)
	}
	if got := byIncident[compliant.ID]; got != "compliant" {
		t.Errorf("High incident resolved after 2h: expected compliant, got %q", got)
	}
	if got := byIncident[pending.ID]; got != "pending" {
		t.Errorf("open Medium incident: expected pending, got %q", got)
	}

	// Ranking: two regions, ranks contiguous from 1, mean scores descending.
	if len(report.Ranking) != 2 {
		t.Fatalf("expected 2 ranked regions, got %d", len(report.Ranking))
	}
	for i, entry := range report.Ranking {
		if entry.Rank != i+1 {
			t.Errorf("ranking[%d]: expected rank %d, got %d", i, i+1, entry.Rank)
		}
		if i > 0 && entry.MeanScore > report.Ranking[i-1].MeanScore {
			t.Errorf("ranking not descending: %s (%.2f) after %s (%.2f)",
				entry.Region, entry.MeanScore, report.Ranking[i-1].Region, report.Ranking[i-1].MeanScore)
		}
	}

	// Forecast: the park is 10 days past its 90-day lifecycle interval.
	foundPark := false
	for _, f := range report.Forecasts {
		if f.AssetID == park.ID && f.Reason == "lifecycle-due" {
			foundPark = true
			if f.DaysUntilDue >= 0 {
				t.Errorf("overdue park: expected negative daysUntilDue, got %d", f.DaysUntilDue)
			}
		}
	}
	if !foundPark {
		t.Error("expected a lifecycle-due forecast entry for the overdue park")
	}

	if report.Metadata.TraceID == "" {
		t.Error("missing metadata.traceId")
	}
	if report.Metadata.EngineVersion == "" {
		t.Error("missing metadata.engineVersion")
	}

	t.Logf("✓ Full pipeline: %d scores, %d SLA results, %d regions, %d forecasts in %dms",
		len(report.Scores), len(report.SLA), len(report.Ranking), len(report.Forecasts), report.Metadata.TotalMs)
}

// ============================================================================
// SCENARIO 2: SLA Deadline Stamping and Retrieval
// ============================================================================

func TestIncidentSLADeadline(t *testing.T) {
	/*
	   SCENARIO: The SLA deadline is stamped at report time from the
	   severity matrix and survives a round trip through the store.

	   High severity carries a 24 hour response window.
	*/
	city := "springfield-int"

	asset := createAsset(t, city, AssetRequest{
		Type:                 "bridge",
		Region:               "Old Town",
		InstalledAt:          time.Now().UTC().AddDate(-10, 0, 0),
		ExpectedLifespanDays: 7300,
	})

	inc := reportIncident(t, city, IncidentRequest{AssetID: asset.ID, Severity: "High"})
	if window := inc.SLADeadline.Sub(inc.ReportedAt); window != 24*time.Hour {
		t.Errorf("expected 24h SLA window for High severity, got %s", window)
	}

	status, body := doJSON(t, http.MethodGet, "/incidents/"+inc.ID, city, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 fetching incident, got %d: %s", status, body)
	}
	var fetched Incident
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("failed to unmarshal incident: %v", err)
	}
	if !fetched.SLADeadline.Equal(inc.SLADeadline) {
		t.Errorf("SLA deadline changed across round trip: %s vs %s", fetched.SLADeadline, inc.SLADeadline)
	}

	t.Logf("✓ SLA deadline stamped: reported=%s deadline=%s",
		inc.ReportedAt.Format(time.RFC3339), inc.SLADeadline.Format(time.RFC3339))
}

// ============================================================================
// SCENARIO 3: Async Run Through the Worker
// ============================================================================

func TestAsyncRun_WorkerProducesReport(t *testing.T) {
	/*
	   SCENARIO: POST /analytics/run without "sync" publishes a run
	   request on the bus and returns 202. The per-city worker picks it
	   up, runs the engine and persists the report, which then becomes
	   visible at GET /reports/latest.
	*/
	asset := createAsset(t, asyncCity, AssetRequest{
		Type:                 "road",
		Region:               "Harbor",
		InstalledAt:          time.Now().UTC().AddDate(-1, 0, 0),
		ExpectedLifespanDays: 3650,
	})
	inc := reportIncident(t, asyncCity, IncidentRequest{AssetID: asset.ID, Severity: "Low"})
	resolveIncident(t, asyncCity, inc.ID)

	status, body := doJSON(t, http.MethodPost, "/analytics/run", asyncCity, nil)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202 from async run, got %d: %s", status, body)
	}
	var accepted struct {
		Status  string `json:"status"`
		TraceID string `json:"traceId"`
	}
	if err := json.Unmarshal(body, &accepted); err != nil {
		t.Fatalf("failed to unmarshal accept response: %v", err)
	}
	if accepted.Status != "accepted" || accepted.TraceID == "" {
		t.Fatalf("unexpected accept response: %s", body)
	}

	var report Report
	deadline := time.Now().Add(10 * time.Second)
	for {
		status, body = doJSON(t, http.MethodGet, "/reports/latest", asyncCity, nil)
		if status == http.StatusOK {
			if err := json.Unmarshal(body, &report); err != nil {
				t.Fatalf("failed to unmarshal report: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("worker did not produce a report within 10s; last status %d: %s", status, body)
		}
		time.Sleep(100 * time.Millisecond)
	}

	if report.CityID != asyncCity {
		t.Errorf("expected report for city %s, got %s", asyncCity, report.CityID)
	}
	if len(report.Scores) != 1 {
		t.Errorf("expected 1 score in async report, got %d", len(report.Scores))
	}
	if len(report.SLA) != 1 {
		t.Errorf("expected 1 SLA result in async report, got %d", len(report.SLA))
	}

	t.Logf("✓ Async run completed: report=%s traceId=%s", report.ID, accepted.TraceID)
}

// ============================================================================
// SCENARIO 4: Report Retrieval and Excel Export
// ============================================================================

func TestReportExport(t *testing.T) {
	/*
	   SCENARIO: A completed report can be fetched by ID and downloaded
	   as an Excel workbook.
	*/
	city := "shelbyville-export-int"

	createAsset(t, city, AssetRequest{
		Type:                 "park",
		Region:               "Downtown",
		InstalledAt:          time.Now().UTC().AddDate(0, -3, 0),
		ExpectedLifespanDays: 1825,
	})
	report := runSync(t, city)

	status, body := doJSON(t, http.MethodGet, "/reports/"+report.ID, city, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 fetching report by ID, got %d: %s", status, body)
	}
	var fetched Report
	if err := json.Unmarshal(body, &fetched); err != nil {
		t.Fatalf("failed to unmarshal report: %v", err)
	}
	if fetched.ID != report.ID {
		t.Errorf("expected report %s, got %s", report.ID, fetched.ID)
	}

	req, _ := http.NewRequest(http.MethodGet, baseURL+"/reports/"+report.ID+"/export", nil)
	req.Header.Set("X-City-ID", city)
	resp, err := (&http.Client{Timeout: 30 * time.Second}).Do(req)
	if err != nil {
		t.Fatalf("export request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from export, got %d", resp.StatusCode)
	}
	wantType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if ct := resp.Header.Get("Content-Type"); ct != wantType {
		t.Errorf("expected xlsx content type, got %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read workbook: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported workbook is empty")
	}

	t.Logf("✓ Export: report %s → %d byte workbook", report.ID, len(data))
}

// ============================================================================
// SCENARIO 5: City Isolation
// ============================================================================

func TestCityIsolation(t *testing.T) {
	/*
	   SCENARIO: Every read is scoped by the X-City-ID header. Assets and
	   reports registered under one city must be invisible to another.
	*/
	asset := createAsset(t, "ogdenville-int", AssetRequest{
		Type:                 "streetlight",
		Region:               "Downtown",
		InstalledAt:          time.Now().UTC().AddDate(0, -1, 0),
		ExpectedLifespanDays: 1825,
	})

	status, _ := doJSON(t, http.MethodGet, "/assets/"+asset.ID, "north-haverbrook-int", nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 fetching asset across cities, got %d", status)
	}

	status, body := doJSON(t, http.MethodGet, "/assets", "north-haverbrook-int", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 listing assets, got %d", status)
	}
	var listing struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		t.Fatalf("failed to unmarshal listing: %v", err)
	}
	if listing.Count != 0 {
		t.Errorf("expected empty asset list for fresh city, got %d", listing.Count)
	}

	status, _ = doJSON(t, http.MethodGet, "/reports/latest", "north-haverbrook-int", nil)
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for latest report of a city with no runs, got %d", status)
	}

	t.Logf("✓ City isolation holds across assets and reports")
}

func TestMissingCityHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Requests without X-City-ID are rejected with 400 before
	   any handler runs.
	*/
	status, body := doJSON(t, http.MethodGet, "/assets", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 without city header, got %d: %s", status, body)
	}

	t.Logf("✓ Missing city header → HTTP %d", status)
}

// ============================================================================
// SCENARIO 6: Alert Rules End to End
// ============================================================================

func TestAlertRulePipeline(t *testing.T) {
	/*
	   SCENARIO: Create a CEL alert rule over the API, apply it via
	   reload, then verify a sync run evaluates it against every score.

	   The rule fires on any score >= 1, which the aged, incident-laden
	   asset below is guaranteed to exceed.

	   NOTE: Alert rules are shared across cities, so this test cleans
	   up after itself by deleting the rule (delete triggers a reload).
	*/
	city := "capital-city-int"
	now := time.Now().UTC()

	asset := createAsset(t, city, AssetRequest{
		Type:                 "road",
		Region:               "Downtown",
		InstalledAt:          now.AddDate(-8, 0, 0),
		ExpectedLifespanDays: 3650,
	})
	inc := reportIncident(t, city, IncidentRequest{
		AssetID: asset.ID, Severity: "Critical", ReportedAt: now.Add(-48 * time.Hour),
	})
	resolveIncident(t, city, inc.ID)

	rule := map[string]any{
		"id":          "int-any-risk",
		"name":        "Any measurable risk",
		"description": "Fires on any asset with a nonzero condition score",
		"expression":  "score >= 1.0",
		"threshold":   0,
		"enabled":     true,
	}
	status, body := doJSON(t, http.MethodPost, "/alert-rules", city, rule)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating alert rule, got %d: %s", status, body)
	}

	status, body = doJSON(t, http.MethodPost, "/alert-rules/reload", city, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 reloading rules, got %d: %s", status, body)
	}

	report := runSync(t, city)

	triggered := false
	for _, a := range report.Alerts {
		if a.RuleID == "int-any-risk" && a.AssetID == asset.ID && a.Triggered {
			triggered = true
			if a.Value < 1.0 {
				t.Errorf("triggered alert carries value %.2f below the rule threshold", a.Value)
			}
		}
	}
	if !triggered {
		t.Errorf("expected int-any-risk to trigger for asset %s, alerts: %+v", asset.ID, report.Alerts)
	}

	status, body = doJSON(t, http.MethodDelete, "/alert-rules/int-any-risk", city, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 deleting alert rule, got %d: %s", status, body)
	}

	t.Logf("✓ Alert rule pipeline: %d alert results, rule cleaned up", len(report.Alerts))
}

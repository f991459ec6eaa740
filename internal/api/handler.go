package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/engine"
	"github.com/cityinfra/heron/internal/export"
	"github.com/cityinfra/heron/internal/rules"
	"github.com/cityinfra/heron/internal/worker"
)

// GlobalCityID is used for alert rules that apply to all cities.
const GlobalCityID = "*"

// maxRunsPerMinute caps analytics run triggers per city.
const maxRunsPerMinute = 10

// reportCacheTTL is how long retrieved reports stay in cache.
const reportCacheTTL = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *engine.Engine
	alerts   *rules.Engine
	exporter *export.ExcelWriter
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, alerts *rules.Engine, exporter *export.ExcelWriter, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   eng,
		alerts:   alerts,
		exporter: exporter,
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ============================================================================
// ASSET HANDLERS
// ============================================================================

// CreateAsset registers a new infrastructure asset.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)

	var req domain.AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	asset, err := req.ToAsset(uuid.New().String(), cityID, time.Now().UTC())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveAsset(ctx, cityID, asset); err != nil {
		slog.Error("failed to save asset", "id", asset.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save asset",
		})
		return
	}

	slog.Info("asset registered", "id", asset.ID, "type", asset.Type, "city_id", cityID)
	writeJSON(w, http.StatusCreated, asset)
}

// GetAsset retrieves an asset by ID.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	assetID := chi.URLParam(r, "id")

	asset, err := h.repo.GetAsset(ctx, cityID, assetID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "asset not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// ListAssets returns all assets registered for the city.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)

	assets, err := h.repo.ListAssets(ctx, cityID)
	if err != nil {
		slog.Error("failed to list assets", "city_id", cityID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list assets",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": assets,
		"count":  len(assets),
	})
}

// UpdateAssetStatus changes an asset's lifecycle status.
func (h *Handler) UpdateAssetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	assetID := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	status, err := domain.ParseAssetStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.UpdateAssetStatus(ctx, cityID, assetID, status); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "asset not found",
		})
		return
	}

	slog.Info("asset status updated", "id", assetID, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     assetID,
		"status": string(status),
	})
}

// RetireAsset marks an asset retired. Assets are never deleted; retired
// assets keep their history but drop out of scoring on future runs.
func (h *Handler) RetireAsset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	assetID := chi.URLParam(r, "id")

	if err := h.repo.UpdateAssetStatus(ctx, cityID, assetID, domain.AssetRetired); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "asset not found",
		})
		return
	}

	slog.Info("asset retired", "id", assetID, "city_id", cityID)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     assetID,
		"status": string(domain.AssetRetired),
	})
}

// ============================================================================
// MAINTENANCE LOG HANDLERS
// ============================================================================

// MaintenanceRequest is the request body for logging a maintenance record.
type MaintenanceRequest struct {
	Action    string    `json:"action"`
	Performer string    `json:"performer,omitempty"`
	Cost      float64   `json:"cost"`
	Date      time.Time `json:"date"`
	Notes     string    `json:"notes,omitempty"`
}

// CreateMaintenanceRecord appends an entry to an asset's service log.
func (h *Handler) CreateMaintenanceRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	assetID := chi.URLParam(r, "id")

	var req MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	action, err := domain.ParseMaintenanceAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if req.Date.IsZero() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "date is required",
		})
		return
	}
	if req.Cost < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "cost must not be negative",
		})
		return
	}

	// The log is append-only against registered assets.
	if _, err := h.repo.GetAsset(ctx, cityID, assetID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "asset not found",
		})
		return
	}

	rec := &domain.MaintenanceRecord{
		ID:        uuid.New().String(),
		CityID:    cityID,
		AssetID:   assetID,
		Action:    action,
		Performer: req.Performer,
		Cost:      req.Cost,
		Date:      req.Date.UTC(),
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.repo.SaveMaintenanceRecord(ctx, cityID, rec); err != nil {
		slog.Error("failed to save maintenance record", "asset_id", assetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save maintenance record",
		})
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListMaintenanceRecords returns an asset's service log, optionally limited
// to records on or after the `since` query parameter (RFC 3339).
func (h *Handler) ListMaintenanceRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	assetID := chi.URLParam(r, "id")

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be RFC 3339",
			})
			return
		}
		since = parsed
	}

	records, err := h.repo.ListMaintenanceRecords(ctx, cityID, assetID, since)
	if err != nil {
		slog.Error("failed to list maintenance records", "asset_id", assetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list maintenance records",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// ============================================================================
// INCIDENT HANDLERS
// ============================================================================

// IncidentRequest is the request body for reporting an incident.
type IncidentRequest struct {
	AssetID  string `json:"assetId"`
	Severity string `json:"severity"`
	Reporter string `json:"reporter,omitempty"`

	// ReportedAt defaults to the current time when omitted.
	ReportedAt time.Time `json:"reportedAt,omitempty"`
}

// CreateIncident reports a new incident against an asset. The SLA deadline
// is stamped at report time from the severity matrix.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)

	var req IncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AssetID == "" || req.Severity == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assetId and severity are required",
		})
		return
	}

	entry, ok := h.engine.Matrix().Get(req.Severity)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown severity level: " + req.Severity,
		})
		return
	}

	if _, err := h.repo.GetAsset(ctx, cityID, req.AssetID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "asset not found",
		})
		return
	}

	reportedAt := req.ReportedAt.UTC()
	if req.ReportedAt.IsZero() {
		reportedAt = time.Now().UTC()
	}

	inc := &domain.Incident{
		ID:          uuid.New().String(),
		CityID:      cityID,
		AssetID:     req.AssetID,
		Severity:    req.Severity,
		ReportedAt:  reportedAt,
		Status:      domain.IncidentOpen,
		Reporter:    req.Reporter,
		SLADeadline: reportedAt.Add(entry.MaxResponse()),
	}

	if err := h.repo.SaveIncident(ctx, cityID, inc); err != nil {
		slog.Error("failed to save incident", "asset_id", req.AssetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save incident",
		})
		return
	}

	slog.Info("incident reported", "id", inc.ID, "severity", inc.Severity, "asset_id", inc.AssetID)
	writeJSON(w, http.StatusCreated, inc)
}

// GetIncident retrieves an incident by ID.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	incidentID := chi.URLParam(r, "id")

	inc, err := h.repo.GetIncident(ctx, cityID, incidentID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "incident not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

// ResolveIncident marks an open incident resolved. Resolving an already
// resolved incident returns 404.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	incidentID := chi.URLParam(r, "id")

	if err := h.repo.ResolveIncident(ctx, cityID, incidentID, time.Now().UTC()); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "incident not found or already resolved",
		})
		return
	}

	slog.Info("incident resolved", "id", incidentID, "city_id", cityID)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     incidentID,
		"status": string(domain.IncidentResolved),
	})
}

// ============================================================================
// COMPLAINT HANDLERS
// ============================================================================

// ComplaintRequest is the request body for filing a complaint.
type ComplaintRequest struct {
	AssetID string `json:"assetId"`
	Rating  int    `json:"rating"`
}

// CreateComplaint files a citizen complaint against an asset.
func (h *Handler) CreateComplaint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)

	var req ComplaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AssetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assetId is required",
		})
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rating must be between 1 and 5",
		})
		return
	}

	if _, err := h.repo.GetAsset(ctx, cityID, req.AssetID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "asset not found",
		})
		return
	}

	c := &domain.Complaint{
		ID:        uuid.New().String(),
		CityID:    cityID,
		AssetID:   req.AssetID,
		Status:    domain.ComplaintOpen,
		Rating:    req.Rating,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.repo.SaveComplaint(ctx, cityID, c); err != nil {
		slog.Error("failed to save complaint", "asset_id", req.AssetID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save complaint",
		})
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// UpdateComplaint moves a complaint through its workflow. Closing a
// complaint stamps the close time.
func (h *Handler) UpdateComplaint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	complaintID := chi.URLParam(r, "id")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	status, err := domain.ParseComplaintStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	var closedAt *time.Time
	if status == domain.ComplaintClosed {
		t := time.Now().UTC()
		closedAt = &t
	}

	if err := h.repo.UpdateComplaint(ctx, cityID, complaintID, status, closedAt); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "complaint not found",
		})
		return
	}

	slog.Info("complaint updated", "id", complaintID, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     complaintID,
		"status": string(status),
	})
}

// ============================================================================
// ANALYTICS HANDLERS
// ============================================================================

// RunRequest is the request body for POST /analytics/run. The body is
// optional; an empty body dispatches an asynchronous run at the wall clock.
type RunRequest struct {
	// Sync runs the engine inline and returns the full report instead of
	// dispatching to the async worker.
	Sync bool `json:"sync,omitempty"`

	// Now pins the reference instant for the run. Zero means wall clock.
	Now time.Time `json:"now,omitempty"`
}

// RunAnalytics triggers an analytics run for the city. Runs are rate
// limited per city per minute.
func (h *Handler) RunAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	traceID := GetTraceID(ctx)

	if h.cache != nil {
		count, err := h.cache.IncrementCounter(ctx, cityID, "analytics-run", time.Minute)
		if err != nil {
			slog.Warn("rate limit counter unavailable", "city_id", cityID, "error", err)
		} else if count > maxRunsPerMinute {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "analytics run rate limit exceeded",
			})
			return
		}
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Sync {
		h.runInline(w, r, cityID, traceID, req.Now)
		return
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	msg := worker.RunMessage{CityID: cityID, TraceID: traceID, Now: req.Now}
	payload, err := json.Marshal(msg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode run request",
		})
		return
	}

	if err := h.bus.Publish(ctx, cityID, domain.TopicRunRequested, payload); err != nil {
		slog.Error("failed to publish run request", "city_id", cityID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to dispatch analytics run",
		})
		return
	}

	slog.Info("analytics run dispatched", "city_id", cityID, "trace_id", traceID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"traceId": traceID,
	})
}

// runInline executes the full pipeline synchronously and returns the report.
func (h *Handler) runInline(w http.ResponseWriter, r *http.Request, cityID, traceID string, at time.Time) {
	ctx := r.Context()

	snap, err := h.repo.LoadSnapshot(ctx, cityID)
	if err != nil {
		slog.Error("failed to load snapshot", "city_id", cityID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load record snapshot",
		})
		return
	}

	now := at
	if now.IsZero() {
		now = time.Now().UTC()
	}

	report, err := h.engine.Run(ctx, snap, now)
	if err != nil {
		slog.Error("analytics run failed", "city_id", cityID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "analytics run failed: " + err.Error(),
		})
		return
	}
	if report.Metadata.TraceID == "" {
		report.Metadata.TraceID = traceID
	}

	if h.alerts != nil && h.alerts.RulesCount() > 0 {
		report.Alerts = h.alerts.EvaluateScores(report.Scores)
	}

	if err := h.repo.SaveReport(ctx, cityID, report); err != nil {
		slog.Error("failed to save report", "report_id", report.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save report",
		})
		return
	}
	if h.cache != nil {
		if err := h.cache.SetReport(ctx, cityID, report.ID, report, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", report.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// GetReport retrieves a report by ID, checking the cache first.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	reportID := chi.URLParam(r, "id")

	report, err := h.fetchReport(ctx, cityID, reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// LatestReport retrieves the most recently generated report for the city.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)

	report, err := h.repo.LatestReport(ctx, cityID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no reports generated yet",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ExportReport serves a report as an .xlsx workbook.
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cityID := GetCityID(ctx)
	reportID := chi.URLParam(r, "id")

	if h.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "export not configured",
		})
		return
	}

	report, err := h.fetchReport(ctx, cityID, reportID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	path, err := h.exporter.Write(report)
	if err != nil {
		slog.Error("failed to export report", "report_id", reportID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to export report",
		})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+h.exporter.Filename(report)+`"`)
	http.ServeFile(w, r, path)
}

func (h *Handler) fetchReport(ctx context.Context, cityID, reportID string) (*domain.Report, error) {
	if h.cache != nil {
		if report, err := h.cache.GetReport(ctx, cityID, reportID); err == nil && report != nil {
			return report, nil
		}
	}

	report, err := h.repo.GetReport(ctx, cityID, reportID)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetReport(ctx, cityID, reportID, report, reportCacheTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", reportID, "error", err)
		}
	}
	return report, nil
}

// ============================================================================
// ALERT RULE HANDLERS
// ============================================================================

// ListAlertRules returns all loaded alert rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /alert-rules/reload.
func (h *Handler) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.alerts.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetAlertRule retrieves an alert rule by ID from the loaded engine rules.
func (h *Handler) GetAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.alerts.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "alert rule not found",
	})
}

// CreateAlertRuleRequest is the request body for creating an alert rule.
type CreateAlertRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Threshold   float64 `json:"threshold,omitempty"`
	Enabled     bool    `json:"enabled"`
}

// CreateAlertRule creates a new alert rule and saves it to the database.
// Rules are saved globally (city_id = "*") so they apply to all cities.
// After saving, call POST /alert-rules/reload to hot-reload into the engine.
func (h *Handler) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateAlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	now := time.Now().UTC()
	rule := &domain.AlertRule{
		ID:          req.ID,
		CityID:      GlobalCityID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Threshold:   req.Threshold,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Validate the CEL expression before persisting
	if err := h.alerts.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveAlertRule(ctx, GlobalCityID, rule); err != nil {
		slog.Error("failed to save alert rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save alert rule",
		})
		return
	}

	slog.Info("alert rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Alert rule created. Call POST /alert-rules/reload to apply changes.",
	})
}

// DeleteAlertRule disables an alert rule and auto-reloads the engine.
func (h *Handler) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteAlertRule(ctx, GlobalCityID, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert rule not found",
		})
		return
	}

	// Auto-reload the engine after delete
	dbRules, err := h.repo.ListAlertRules(ctx, GlobalCityID)
	if err != nil {
		slog.Error("failed to reload alert rules after delete", "error", err)
	} else if err := h.alerts.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload alert rules into engine", "error", err)
	} else {
		slog.Info("alert rules auto-reloaded after delete", "count", len(dbRules))
	}

	slog.Info("alert rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Alert rule deleted and engine reloaded.",
	})
}

// ReloadAlertRules reloads all alert rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadAlertRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListAlertRules(ctx, GlobalCityID)
	if err != nil {
		slog.Error("failed to list alert rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load alert rules from database",
		})
		return
	}

	if err := h.alerts.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload alert rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload alert rules: " + err.Error(),
		})
		return
	}

	slog.Info("alert rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "alert rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cityinfra/heron/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAsset stores an asset with city isolation.
func (r *SQLRepository) SaveAsset(ctx context.Context, cityID string, asset *domain.Asset) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	lifespanDays := int(asset.ExpectedLifespan / (24 * time.Hour))

	query := `
		INSERT INTO assets (
			id, city_id, type, region, installed_at, lifespan_days,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		asset.ID, cityID, asset.Type, asset.Region,
		asset.InstalledAt, lifespanDays,
		asset.Status, asset.CreatedAt, asset.UpdatedAt,
	)
	return err
}

// GetAsset retrieves an asset by ID with city isolation.
func (r *SQLRepository) GetAsset(ctx context.Context, cityID string, assetID string) (*domain.Asset, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, type, region, installed_at, lifespan_days,
			   status, created_at, updated_at
		FROM assets
		WHERE city_id = ? AND id = ?
	`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, r.rebind(query), cityID, assetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return asset, err
}

// ListAssets retrieves all assets for a city ordered by ID.
func (r *SQLRepository) ListAssets(ctx context.Context, cityID string) ([]*domain.Asset, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, type, region, installed_at, lifespan_days,
			   status, created_at, updated_at
		FROM assets
		WHERE city_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []*domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}

// UpdateAssetStatus transitions an asset's lifecycle state. Assets are
// never deleted, only retired.
func (r *SQLRepository) UpdateAssetStatus(ctx context.Context, cityID string, assetID string, status domain.AssetStatus) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		UPDATE assets
		SET status = ?, updated_at = ?
		WHERE city_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, time.Now().UTC(), cityID, assetID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveMaintenanceRecord appends an entry to an asset's service log.
// The log is append-only; there is no update or delete.
func (r *SQLRepository) SaveMaintenanceRecord(ctx context.Context, cityID string, rec *domain.MaintenanceRecord) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO maintenance_records (
			id, city_id, asset_id, action, performer, cost, date, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, cityID, rec.AssetID, rec.Action,
		rec.Performer, rec.Cost, rec.Date, rec.Notes, rec.CreatedAt,
	)
	return err
}

// ListMaintenanceRecords retrieves an asset's service log since a cutoff.
func (r *SQLRepository) ListMaintenanceRecords(ctx context.Context, cityID string, assetID string, since time.Time) ([]*domain.MaintenanceRecord, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, asset_id, action, performer, cost, date, notes, created_at
		FROM maintenance_records
		WHERE city_id = ? AND asset_id = ? AND date >= ?
		ORDER BY date DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cityID, assetID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.MaintenanceRecord
	for rows.Next() {
		var rec domain.MaintenanceRecord
		if err := rows.Scan(
			&rec.ID, &rec.CityID, &rec.AssetID, &rec.Action,
			&rec.Performer, &rec.Cost, &rec.Date, &rec.Notes, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveIncident stores an incident with city isolation.
func (r *SQLRepository) SaveIncident(ctx context.Context, cityID string, inc *domain.Incident) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO incidents (
			id, city_id, asset_id, severity, reported_at, resolved_at,
			status, reporter, sla_deadline
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		inc.ID, cityID, inc.AssetID, inc.Severity,
		inc.ReportedAt, inc.ResolvedAt,
		inc.Status, inc.Reporter, inc.SLADeadline,
	)
	return err
}

// GetIncident retrieves an incident by ID with city isolation.
func (r *SQLRepository) GetIncident(ctx context.Context, cityID string, incidentID string) (*domain.Incident, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, asset_id, severity, reported_at, resolved_at,
			   status, reporter, sla_deadline
		FROM incidents
		WHERE city_id = ? AND id = ?
	`

	inc, err := scanIncident(r.db.QueryRowContext(ctx, r.rebind(query), cityID, incidentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return inc, err
}

// ResolveIncident closes an open incident at the given instant.
func (r *SQLRepository) ResolveIncident(ctx context.Context, cityID string, incidentID string, resolvedAt time.Time) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		UPDATE incidents
		SET resolved_at = ?, status = ?
		WHERE city_id = ? AND id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		resolvedAt, domain.IncidentResolved, cityID, incidentID, domain.IncidentOpen)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveComplaint stores a complaint with city isolation.
func (r *SQLRepository) SaveComplaint(ctx context.Context, cityID string, c *domain.Complaint) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO complaints (
			id, city_id, asset_id, status, rating, created_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, cityID, c.AssetID, c.Status, c.Rating, c.CreatedAt, c.ClosedAt,
	)
	return err
}

// UpdateComplaint transitions a complaint's workflow state.
func (r *SQLRepository) UpdateComplaint(ctx context.Context, cityID string, complaintID string, status domain.ComplaintStatus, closedAt *time.Time) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		UPDATE complaints
		SET status = ?, closed_at = ?
		WHERE city_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, closedAt, cityID, complaintID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// LoadSnapshot reads the complete record set for a city in one pass.
// The snapshot is ordered by ID throughout so downstream runs are
// reproducible.
func (r *SQLRepository) LoadSnapshot(ctx context.Context, cityID string) (*domain.Snapshot, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	snap := &domain.Snapshot{CityID: cityID}

	assets, err := r.ListAssets(ctx, cityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}
	snap.Assets = assets

	maintQuery := `
		SELECT id, city_id, asset_id, action, performer, cost, date, notes, created_at
		FROM maintenance_records
		WHERE city_id = ?
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(maintQuery), cityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load maintenance records: %w", err)
	}
	for rows.Next() {
		var rec domain.MaintenanceRecord
		if err := rows.Scan(
			&rec.ID, &rec.CityID, &rec.AssetID, &rec.Action,
			&rec.Performer, &rec.Cost, &rec.Date, &rec.Notes, &rec.CreatedAt,
		); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Maintenance = append(snap.Maintenance, &rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	incQuery := `
		SELECT id, city_id, asset_id, severity, reported_at, resolved_at,
			   status, reporter, sla_deadline
		FROM incidents
		WHERE city_id = ?
		ORDER BY id
	`
	rows, err = r.db.QueryContext(ctx, r.rebind(incQuery), cityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load incidents: %w", err)
	}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Incidents = append(snap.Incidents, inc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	compQuery := `
		SELECT id, city_id, asset_id, status, rating, created_at, closed_at
		FROM complaints
		WHERE city_id = ?
		ORDER BY id
	`
	rows, err = r.db.QueryContext(ctx, r.rebind(compQuery), cityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load complaints: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Complaint
		var closedAt sql.NullTime
		if err := rows.Scan(
			&c.ID, &c.CityID, &c.AssetID, &c.Status, &c.Rating, &c.CreatedAt, &closedAt,
		); err != nil {
			return nil, err
		}
		if closedAt.Valid {
			t := closedAt.Time
			c.ClosedAt = &t
		}
		snap.Complaints = append(snap.Complaints, &c)
	}

	return snap, rows.Err()
}

// SaveAlertRule stores an alert policy, replacing any prior version.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, cityID string, rule *domain.AlertRule) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, city_id, name, description, expression, threshold, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, city_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			threshold = excluded.threshold,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, cityID, rule.Name, rule.Description,
		rule.Expression, rule.Threshold, enabled,
		now, now,
	)
	return err
}

// GetAlertRule retrieves an active alert policy with city isolation.
func (r *SQLRepository) GetAlertRule(ctx context.Context, cityID string, ruleID string) (*domain.AlertRule, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, name, description, expression, threshold, enabled, created_at, updated_at
		FROM alert_rules
		WHERE city_id = ? AND id = ? AND enabled = 1
	`

	var rule domain.AlertRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), cityID, ruleID).Scan(
		&rule.ID, &rule.CityID, &rule.Name, &rule.Description,
		&rule.Expression, &rule.Threshold, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1

	return &rule, nil
}

// ListAlertRules retrieves all active alert policies for a city.
func (r *SQLRepository) ListAlertRules(ctx context.Context, cityID string) ([]*domain.AlertRule, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, name, description, expression, threshold, enabled, created_at, updated_at
		FROM alert_rules
		WHERE city_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRule
	for rows.Next() {
		var rule domain.AlertRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.CityID, &rule.Name, &rule.Description,
			&rule.Expression, &rule.Threshold, &enabled,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteAlertRule soft-deletes a policy by setting enabled = 0.
func (r *SQLRepository) DeleteAlertRule(ctx context.Context, cityID string, ruleID string) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		UPDATE alert_rules
		SET enabled = 0, updated_at = ?
		WHERE city_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), cityID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveReport stores a completed analytics report with city isolation.
func (r *SQLRepository) SaveReport(ctx context.Context, cityID string, report *domain.Report) error {
	if cityID == "" {
		return fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	scores, _ := json.Marshal(report.Scores)
	ranking, _ := json.Marshal(report.Ranking)
	forecasts, _ := json.Marshal(report.Forecasts)
	slaResults, _ := json.Marshal(report.SLA)
	alerts, _ := json.Marshal(report.Alerts)
	reportErrors, _ := json.Marshal(report.Errors)
	warnings, _ := json.Marshal(report.Warnings)
	metadata, _ := json.Marshal(report.Metadata)

	query := `
		INSERT INTO reports (
			id, city_id, generated_at, scores, ranking, forecasts,
			sla_results, alerts, errors, warnings, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, cityID, report.GeneratedAt,
		string(scores), string(ranking), string(forecasts),
		string(slaResults), string(alerts), string(reportErrors),
		string(warnings), string(metadata),
	)
	return err
}

// GetReport retrieves a report by ID with city isolation.
func (r *SQLRepository) GetReport(ctx context.Context, cityID string, reportID string) (*domain.Report, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, generated_at, scores, ranking, forecasts,
			   sla_results, alerts, errors, warnings, metadata
		FROM reports
		WHERE city_id = ? AND id = ?
	`

	report, err := scanReport(r.db.QueryRowContext(ctx, r.rebind(query), cityID, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

// LatestReport retrieves the most recently generated report for a city.
func (r *SQLRepository) LatestReport(ctx context.Context, cityID string) (*domain.Report, error) {
	if cityID == "" {
		return nil, fmt.Errorf("%w: cityID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, city_id, generated_at, scores, ranking, forecasts,
			   sla_results, alerts, errors, warnings, metadata
		FROM reports
		WHERE city_id = ?
		ORDER BY generated_at DESC
		LIMIT 1
	`

	report, err := scanReport(r.db.QueryRowContext(ctx, r.rebind(query), cityID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanAsset(s scanner) (*domain.Asset, error) {
	var asset domain.Asset
	var lifespanDays int

	if err := s.Scan(
		&asset.ID, &asset.CityID, &asset.Type, &asset.Region,
		&asset.InstalledAt, &lifespanDays,
		&asset.Status, &asset.CreatedAt, &asset.UpdatedAt,
	); err != nil {
		return nil, err
	}

	asset.ExpectedLifespan = time.Duration(lifespanDays) * 24 * time.Hour

	return &asset, nil
}

func scanIncident(s scanner) (*domain.Incident, error) {
	var inc domain.Incident
	var resolvedAt sql.NullTime

	if err := s.Scan(
		&inc.ID, &inc.CityID, &inc.AssetID, &inc.Severity,
		&inc.ReportedAt, &resolvedAt,
		&inc.Status, &inc.Reporter, &inc.SLADeadline,
	); err != nil {
		return nil, err
	}

	if resolvedAt.Valid {
		t := resolvedAt.Time
		inc.ResolvedAt = &t
	}

	return &inc, nil
}

func scanReport(s scanner) (*domain.Report, error) {
	var report domain.Report
	var scores, ranking, forecasts, slaResults, alerts, reportErrors, warnings, metadata string

	if err := s.Scan(
		&report.ID, &report.CityID, &report.GeneratedAt,
		&scores, &ranking, &forecasts,
		&slaResults, &alerts, &reportErrors, &warnings, &metadata,
	); err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(scores), &report.Scores)
	json.Unmarshal([]byte(ranking), &report.Ranking)
	json.Unmarshal([]byte(forecasts), &report.Forecasts)
	json.Unmarshal([]byte(slaResults), &report.SLA)
	json.Unmarshal([]byte(alerts), &report.Alerts)
	json.Unmarshal([]byte(reportErrors), &report.Errors)
	json.Unmarshal([]byte(warnings), &report.Warnings)
	json.Unmarshal([]byte(metadata), &report.Metadata)

	return &report, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

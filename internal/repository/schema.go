package repository

// Schema definitions for the Heron record store.
// Compatible with both SQLite and PostgreSQL.

const schemaAssets = `
CREATE TABLE IF NOT EXISTS assets (
    id TEXT NOT NULL,
    city_id TEXT NOT NULL,
    type TEXT NOT NULL,
    region TEXT,
    installed_at TIMESTAMP NOT NULL,
    lifespan_days INTEGER NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, city_id)
);

CREATE INDEX IF NOT EXISTS idx_assets_city ON assets(city_id);
CREATE INDEX IF NOT EXISTS idx_assets_region ON assets(city_id, region);
CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(city_id, status);
`

const schemaMaintenanceRecords = `
CREATE TABLE IF NOT EXISTS maintenance_records (
    id TEXT NOT NULL,
    city_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    action TEXT NOT NULL,
    performer TEXT,
    cost REAL NOT NULL DEFAULT 0,
    date TIMESTAMP NOT NULL,
    notes TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, city_id)
);

CREATE INDEX IF NOT EXISTS idx_maintenance_city ON maintenance_records(city_id);
CREATE INDEX IF NOT EXISTS idx_maintenance_asset ON maintenance_records(city_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_maintenance_date ON maintenance_records(city_id, date);
`

const schemaIncidents = `
CREATE TABLE IF NOT EXISTS incidents (
    id TEXT NOT NULL,
    city_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    reported_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP,
    status TEXT NOT NULL,
    reporter TEXT,
    sla_deadline TIMESTAMP NOT NULL,
    PRIMARY KEY (id, city_id)
);

CREATE INDEX IF NOT EXISTS idx_incidents_city ON incidents(city_id);
CREATE INDEX IF NOT EXISTS idx_incidents_asset ON incidents(city_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(city_id, status);
CREATE INDEX IF NOT EXISTS idx_incidents_reported ON incidents(city_id, reported_at);
`

const schemaComplaints = `
CREATE TABLE IF NOT EXISTS complaints (
    id TEXT NOT NULL,
    city_id TEXT NOT NULL,
    asset_id TEXT NOT NULL,
    status TEXT NOT NULL,
    rating INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    closed_at TIMESTAMP,
    PRIMARY KEY (id, city_id)
);

CREATE INDEX IF NOT EXISTS idx_complaints_city ON complaints(city_id);
CREATE INDEX IF NOT EXISTS idx_complaints_asset ON complaints(city_id, asset_id);
CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints(city_id, status);
`

const schemaAlertRules = `
CREATE TABLE IF NOT EXISTS alert_rules (
    id TEXT NOT NULL,
    city_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    threshold REAL NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, city_id)
);

CREATE INDEX IF NOT EXISTS idx_alert_rules_city ON alert_rules(city_id);
CREATE INDEX IF NOT EXISTS idx_alert_rules_enabled ON alert_rules(city_id, enabled);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT NOT NULL,
    city_id TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    scores TEXT NOT NULL,
    ranking TEXT NOT NULL,
    forecasts TEXT NOT NULL,
    sla_results TEXT NOT NULL,
    alerts TEXT,
    errors TEXT,
    warnings TEXT,
    metadata TEXT NOT NULL,
    PRIMARY KEY (id, city_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_city ON reports(city_id);
CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(city_id, generated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAssets,
		schemaMaintenanceRecords,
		schemaIncidents,
		schemaComplaints,
		schemaAlertRules,
		schemaReports,
	}
}

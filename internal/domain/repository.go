package domain

import (
	"context"
	"time"
)

// Repository defines the interface for the tabular record store.
// All methods require cityID for strict per-city isolation.
type Repository interface {
	// Asset registry
	SaveAsset(ctx context.Context, cityID string, asset *Asset) error
	GetAsset(ctx context.Context, cityID string, assetID string) (*Asset, error)
	ListAssets(ctx context.Context, cityID string) ([]*Asset, error)
	UpdateAssetStatus(ctx context.Context, cityID string, assetID string, status AssetStatus) error

	// Maintenance log (append-only)
	SaveMaintenanceRecord(ctx context.Context, cityID string, rec *MaintenanceRecord) error
	ListMaintenanceRecords(ctx context.Context, cityID string, assetID string, since time.Time) ([]*MaintenanceRecord, error)

	// Incidents
	SaveIncident(ctx context.Context, cityID string, inc *Incident) error
	GetIncident(ctx context.Context, cityID string, incidentID string) (*Incident, error)
	ResolveIncident(ctx context.Context, cityID string, incidentID string, resolvedAt time.Time) error

	// Complaints
	SaveComplaint(ctx context.Context, cityID string, c *Complaint) error
	UpdateComplaint(ctx context.Context, cityID string, complaintID string, status ComplaintStatus, closedAt *time.Time) error

	// LoadSnapshot reads the full immutable record set an analytics run
	// operates on.
	LoadSnapshot(ctx context.Context, cityID string) (*Snapshot, error)

	// Alert policy configuration
	SaveAlertRule(ctx context.Context, cityID string, rule *AlertRule) error
	GetAlertRule(ctx context.Context, cityID string, ruleID string) (*AlertRule, error)
	ListAlertRules(ctx context.Context, cityID string) ([]*AlertRule, error)
	DeleteAlertRule(ctx context.Context, cityID string, ruleID string) error

	// Analytics reports
	SaveReport(ctx context.Context, cityID string, report *Report) error
	GetReport(ctx context.Context, cityID string, reportID string) (*Report, error)
	LatestReport(ctx context.Context, cityID string) (*Report, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

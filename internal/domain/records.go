package domain

import (
	"fmt"
	"time"
)

// MaintenanceAction is the closed set of logged maintenance actions.
type MaintenanceAction string

const (
	ActionInspection  MaintenanceAction = "Inspection"
	ActionRepair      MaintenanceAction = "Repair"
	ActionReplacement MaintenanceAction = "Replacement"
)

// ParseMaintenanceAction validates a raw string against the closed set.
func ParseMaintenanceAction(s string) (MaintenanceAction, error) {
	switch MaintenanceAction(s) {
	case ActionInspection, ActionRepair, ActionReplacement:
		return MaintenanceAction(s), nil
	}
	return "", fmt.Errorf("invalid maintenance action: %q", s)
}

// MaintenanceRecord is one entry in an asset's append-only service log.
// Records are immutable once created.
type MaintenanceRecord struct {
	ID        string            `json:"id"`
	CityID    string            `json:"cityId"`
	AssetID   string            `json:"assetId"`
	Action    MaintenanceAction `json:"action"`
	Performer string            `json:"performer,omitempty"`
	Cost      float64           `json:"cost"`
	Date      time.Time         `json:"date"`
	Notes     string            `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// IncidentStatus tracks an incident's resolution state.
type IncidentStatus string

const (
	IncidentOpen     IncidentStatus = "open"
	IncidentResolved IncidentStatus = "resolved"
)

// Incident is a reported problem against an asset. Severity is a label
// resolved against the severity matrix. ResolvedAt is nil while open.
type Incident struct {
	ID         string         `json:"id"`
	CityID     string         `json:"cityId"`
	AssetID    string         `json:"assetId"`
	Severity   string         `json:"severity"`
	ReportedAt time.Time      `json:"reportedAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
	Status     IncidentStatus `json:"status"`
	Reporter   string         `json:"reporter,omitempty"`

	// SLADeadline is computed from the matrix at report time.
	SLADeadline time.Time `json:"slaDeadline"`
}

// ComplaintStatus is the closed set of complaint workflow states.
type ComplaintStatus string

const (
	ComplaintOpen       ComplaintStatus = "Open"
	ComplaintInProgress ComplaintStatus = "In Progress"
	ComplaintClosed     ComplaintStatus = "Closed"
)

// ParseComplaintStatus validates a raw string against the closed set.
func ParseComplaintStatus(s string) (ComplaintStatus, error) {
	switch ComplaintStatus(s) {
	case ComplaintOpen, ComplaintInProgress, ComplaintClosed:
		return ComplaintStatus(s), nil
	}
	return "", fmt.Errorf("invalid complaint status: %q", s)
}

// Complaint is a citizen-reported grievance against an asset.
type Complaint struct {
	ID      string          `json:"id"`
	CityID  string          `json:"cityId"`
	AssetID string          `json:"assetId"`
	Status  ComplaintStatus `json:"status"`

	// Rating is the citizen-assigned priority, 1 (low) to 5 (urgent).
	Rating int `json:"rating"`

	CreatedAt time.Time  `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Snapshot is the immutable batch of records an analytics run operates on.
// It is loaded before a run begins; the engine never writes back to it.
type Snapshot struct {
	CityID      string               `json:"cityId"`
	Assets      []*Asset             `json:"assets"`
	Maintenance []*MaintenanceRecord `json:"maintenance"`
	Incidents   []*Incident          `json:"incidents"`
	Complaints  []*Complaint         `json:"complaints"`
}

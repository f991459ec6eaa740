package domain

import (
	"time"
)

// SLAClassification is the outcome of comparing an incident's response
// time against the severity matrix.
type SLAClassification string

const (
	SLACompliant SLAClassification = "compliant"
	SLAViolated  SLAClassification = "violated"
	SLAPending   SLAClassification = "pending"
)

// SLAResult holds the per-incident compliance facts.
type SLAResult struct {
	IncidentID     string            `json:"incidentId"`
	AssetID        string            `json:"assetId"`
	Severity       string            `json:"severity"`
	Classification SLAClassification `json:"classification"`
	Elapsed        time.Duration     `json:"elapsed"`
	Threshold      time.Duration     `json:"threshold"`
}

// ScoreBreakdown is the per-factor decomposition of a condition score.
// Each component is normalized to [0,1] before weighting.
type ScoreBreakdown struct {
	Age       float64 `json:"age"`
	Frequency float64 `json:"frequency"`
	Severity  float64 `json:"severity"`
	Complaint float64 `json:"complaint"`
}

// ConditionScore is the composite 0-100 condition/risk score for one asset.
// Recomputed in full on every run; never mutated incrementally.
type ConditionScore struct {
	AssetID   string         `json:"assetId"`
	AssetType AssetType      `json:"assetType"`
	Region    string         `json:"region,omitempty"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"breakdown"`

	// MissingRegion marks assets that were scored but could not be ranked.
	MissingRegion bool `json:"missingRegion,omitempty"`

	ComputedAt time.Time `json:"computedAt"`
}

// RiskRankingEntry is one region in the descending risk ranking.
type RiskRankingEntry struct {
	Region     string  `json:"region"`
	Rank       int     `json:"rank"`
	MeanScore  float64 `json:"meanScore"`
	MaxScore   float64 `json:"maxScore"`
	AssetCount int     `json:"assetCount"`

	// Critical marks the top-K entries of the ranking.
	Critical bool `json:"critical"`
}

// ForecastReason tags why an asset was flagged for upcoming service.
type ForecastReason string

const (
	ReasonLifecycleDue  ForecastReason = "lifecycle-due"
	ReasonHighFrequency ForecastReason = "high-frequency"
)

// ForecastEntry flags one asset for one forecast reason. An asset may
// carry both a lifecycle-due and a high-frequency entry.
type ForecastEntry struct {
	AssetID string         `json:"assetId"`
	Reason  ForecastReason `json:"reason"`
	NextDue time.Time      `json:"nextDue"`

	// DaysUntilDue is negative when the asset is already overdue.
	DaysUntilDue int `json:"daysUntilDue"`
}

// RecordErrorKind classifies a recoverable per-record problem.
type RecordErrorKind string

const (
	ErrorReferential RecordErrorKind = "referential"
	ErrorComputation RecordErrorKind = "computation"
)

// RecordError is a recoverable error collected during a run. The offending
// record is excluded from all aggregates; processing continues.
type RecordError struct {
	RecordID string          `json:"recordId"`
	Kind     RecordErrorKind `json:"kind"`
	Reason   string          `json:"reason"`
}

// Warning flags a non-fatal data quality issue, e.g. an asset without a
// region that was scored but excluded from ranking.
type Warning struct {
	AssetID string `json:"assetId"`
	Reason  string `json:"reason"`
}

// AlertResult is the outcome of one alert policy applied to one score.
type AlertResult struct {
	RuleID    string  `json:"ruleId"`
	RuleName  string  `json:"ruleName,omitempty"`
	AssetID   string  `json:"assetId"`
	Value     float64 `json:"value"`
	Triggered bool    `json:"triggered"`
	Reason    string  `json:"reason,omitempty"`
}

// ReportMetadata carries processing information for a run.
type ReportMetadata struct {
	TraceID          string `json:"traceId,omitempty"`
	AssetsScored     int    `json:"assetsScored"`
	AssetsFailed     int    `json:"assetsFailed"`
	IncidentsChecked int    `json:"incidentsChecked"`
	RecordsSkipped   int    `json:"recordsSkipped"`
	TotalMs          int64  `json:"totalMs"`
	EngineVersion    string `json:"engineVersion"`
}

// Report is the combined, export-ready output of one analytics run.
type Report struct {
	ID          string             `json:"id"`
	CityID      string             `json:"cityId"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Scores      []ConditionScore   `json:"scores"`
	Ranking     []RiskRankingEntry `json:"ranking"`
	Forecasts   []ForecastEntry    `json:"forecasts"`
	SLA         []SLAResult        `json:"sla"`
	Alerts      []AlertResult      `json:"alerts,omitempty"`
	Errors      []RecordError      `json:"errors,omitempty"`
	Warnings    []Warning          `json:"warnings,omitempty"`
	Metadata    ReportMetadata     `json:"metadata"`
}

// CriticalZones returns the regions marked critical, in rank order.
func (r *Report) CriticalZones() []RiskRankingEntry {
	var out []RiskRankingEntry
	for _, e := range r.Ranking {
		if e.Critical {
			out = append(out, e)
		}
	}
	return out
}

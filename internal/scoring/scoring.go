// Package scoring computes composite condition scores for assets.
package scoring

import (
	"fmt"
	"time"

	"github.com/cityinfra/heron/internal/domain"
)

// Scorer normalizes four signals (age ratio, maintenance frequency,
// incident severity pressure, complaint density) into a single 0-100
// condition score per asset. Deterministic for a fixed "now".
type Scorer struct {
	cfg    *domain.EngineConfig
	matrix *domain.SeverityMatrix
}

// NewScorer creates a scorer. The config and matrix must already be
// validated; Validate errors here are configuration errors.
func NewScorer(cfg *domain.EngineConfig, matrix *domain.SeverityMatrix) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if err := matrix.Validate(); err != nil {
		return nil, fmt.Errorf("invalid severity matrix: %w", err)
	}
	return &Scorer{cfg: cfg, matrix: matrix}, nil
}

// Input bundles the per-asset records a score is computed from. SLA holds
// the classification for each of the asset's incidents, keyed by incident
// id; incidents without an entry weigh normally.
type Input struct {
	Asset       *domain.Asset
	Maintenance []*domain.MaintenanceRecord
	Incidents   []*domain.Incident
	SLA         map[string]domain.SLAResult
	Complaints  []*domain.Complaint
}

// Score computes the composite condition score with its breakdown.
func (s *Scorer) Score(in Input, now time.Time) (domain.ConditionScore, error) {
	asset := in.Asset
	if asset.InstalledAt.IsZero() {
		return domain.ConditionScore{}, fmt.Errorf("asset %s: installation date not set", asset.ID)
	}
	if asset.ExpectedLifespan <= 0 {
		return domain.ConditionScore{}, fmt.Errorf("asset %s: expected lifespan must be positive", asset.ID)
	}
	if asset.InstalledAt.After(now) {
		return domain.ConditionScore{}, fmt.Errorf("asset %s: installed in the future", asset.ID)
	}
	// Config validation only covers the known types; a row written outside
	// the API can carry anything. A missing threshold would divide by zero.
	if s.cfg.FrequencyThresholds[asset.Type] <= 0 {
		return domain.ConditionScore{}, fmt.Errorf("asset %s: no frequency threshold configured for type %q", asset.ID, asset.Type)
	}

	windowStart := now.Add(-s.cfg.Lookback())

	breakdown := domain.ScoreBreakdown{
		Age:       s.ageRatio(asset, now),
		Frequency: s.frequency(asset, in.Maintenance, windowStart),
		Severity:  s.severityPressure(in.Incidents, in.SLA, windowStart),
		Complaint: s.complaintDensity(in.Complaints, windowStart),
	}

	w := s.cfg.Weights
	composite := 100 * (w.Age*breakdown.Age +
		w.Frequency*breakdown.Frequency +
		w.Severity*breakdown.Severity +
		w.Complaint*breakdown.Complaint)

	return domain.ConditionScore{
		AssetID:       asset.ID,
		AssetType:     asset.Type,
		Region:        asset.Region,
		Score:         composite,
		Breakdown:     breakdown,
		MissingRegion: asset.Region == "",
		ComputedAt:    now,
	}, nil
}

// ageRatio is elapsed service life over design life, capped at 1.
func (s *Scorer) ageRatio(asset *domain.Asset, now time.Time) float64 {
	ratio := float64(asset.Age(now)) / float64(asset.ExpectedLifespan)
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}

// frequency is the recent maintenance count against the per-type
// threshold, capped at 1. More recent repairs means a worse asset.
func (s *Scorer) frequency(asset *domain.Asset, records []*domain.MaintenanceRecord, windowStart time.Time) float64 {
	count := 0
	for _, rec := range records {
		if !rec.Date.Before(windowStart) {
			count++
		}
	}
	threshold := s.cfg.FrequencyThresholds[asset.Type]
	ratio := float64(count) / float64(threshold)
	if ratio > 1 {
		return 1
	}
	return ratio
}

// severityPressure is the weighted mean priority of recent incidents,
// normalized against the matrix's maximum priority. Incidents whose SLA
// was violated weigh double.
func (s *Scorer) severityPressure(incidents []*domain.Incident, slaByID map[string]domain.SLAResult, windowStart time.Time) float64 {
	var weightedSum, totalWeight float64
	for _, inc := range incidents {
		if inc.ReportedAt.Before(windowStart) {
			continue
		}
		entry, ok := s.matrix.Get(inc.Severity)
		if !ok {
			// Unknown severities are rejected before scoring starts.
			continue
		}
		weight := 1.0
		if res, ok := slaByID[inc.ID]; ok && res.Classification == domain.SLAViolated {
			weight = 2.0
		}
		weightedSum += float64(entry.Priority) * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return (weightedSum / totalWeight) / float64(s.matrix.MaxPriority())
}

// complaintDensity counts complaints still open or recently closed,
// against the fixed threshold, capped at 1.
func (s *Scorer) complaintDensity(complaints []*domain.Complaint, windowStart time.Time) float64 {
	count := 0
	for _, c := range complaints {
		if c.ClosedAt == nil || !c.ClosedAt.Before(windowStart) {
			count++
		}
	}
	ratio := float64(count) / float64(s.cfg.ComplaintThreshold)
	if ratio > 1 {
		return 1
	}
	return ratio
}

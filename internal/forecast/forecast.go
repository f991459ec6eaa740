// Package forecast flags assets due for service in a rolling window.
package forecast

import (
	"fmt"
	"time"

	"github.com/cityinfra/heron/internal/domain"
)

// Forecaster determines next-due maintenance dates from lifecycle policy
// and service history. Two independent flag rules; an asset may carry both.
type Forecaster struct {
	cfg *domain.EngineConfig
}

// NewForecaster creates a forecaster over a validated engine config.
func NewForecaster(cfg *domain.EngineConfig) (*Forecaster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &Forecaster{cfg: cfg}, nil
}

// Forecast returns zero, one or two entries for the asset. Lifecycle-due:
// last service (or installation when no history) plus the type's lifecycle
// interval, flagged when the next-due date is at or before now+horizon —
// overdue assets are flagged with negative days-until-due. High-frequency:
// recent record count strictly exceeds the type's threshold.
func (f *Forecaster) Forecast(asset *domain.Asset, records []*domain.MaintenanceRecord, now time.Time) ([]domain.ForecastEntry, error) {
	if asset.InstalledAt.IsZero() {
		return nil, fmt.Errorf("asset %s: installation date not set", asset.ID)
	}
	// An unconfigured type would make every asset due immediately.
	if f.cfg.LifecycleIntervalDays[asset.Type] <= 0 {
		return nil, fmt.Errorf("asset %s: no lifecycle interval configured for type %q", asset.ID, asset.Type)
	}

	lastService := asset.InstalledAt
	recentCount := 0
	windowStart := now.Add(-f.cfg.Lookback())
	for _, rec := range records {
		if rec.Date.After(lastService) {
			lastService = rec.Date
		}
		if !rec.Date.Before(windowStart) {
			recentCount++
		}
	}

	nextDue := lastService.Add(f.cfg.LifecycleInterval(asset.Type))
	var entries []domain.ForecastEntry

	if !nextDue.After(now.Add(f.cfg.Horizon())) {
		entries = append(entries, domain.ForecastEntry{
			AssetID:      asset.ID,
			Reason:       domain.ReasonLifecycleDue,
			NextDue:      nextDue,
			DaysUntilDue: daysUntil(now, nextDue),
		})
	}

	if recentCount > f.cfg.FrequencyThresholds[asset.Type] {
		entries = append(entries, domain.ForecastEntry{
			AssetID:      asset.ID,
			Reason:       domain.ReasonHighFrequency,
			NextDue:      nextDue,
			DaysUntilDue: daysUntil(now, nextDue),
		})
	}

	return entries, nil
}

// daysUntil truncates toward zero: 36 hours ahead is 1 day, 36 hours
// overdue is -1.
func daysUntil(now, due time.Time) int {
	return int(due.Sub(now) / (24 * time.Hour))
}

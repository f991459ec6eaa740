package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// ScoringWeights are the factor weights of the composite condition score.
// They must sum to 1.
type ScoringWeights struct {
	Age       float64 `json:"age"`
	Frequency float64 `json:"frequency"`
	Severity  float64 `json:"severity"`
	Complaint float64 `json:"complaint"`
}

// Sum returns the total weight.
func (w ScoringWeights) Sum() float64 {
	return w.Age + w.Frequency + w.Severity + w.Complaint
}

// EngineConfig holds every tunable of the analytics engine. All values are
// validated at load time; a zero threshold is a configuration error, never
// a divide-by-zero at scoring time.
type EngineConfig struct {
	// LookbackDays is the trailing window over which recent repairs,
	// incidents and complaints are counted.
	LookbackDays int `json:"lookbackDays"`

	// ForecastHorizonDays is how far ahead the forecaster looks for
	// assets coming due.
	ForecastHorizonDays int `json:"forecastHorizonDays"`

	// TopK is the number of regions marked as critical zones.
	TopK int `json:"topK"`

	Weights ScoringWeights `json:"weights"`

	// LifecycleIntervalDays is the maximum recommended time between
	// services, per asset type.
	LifecycleIntervalDays map[AssetType]int `json:"lifecycleIntervalDays"`

	// FrequencyThresholds is the per-type repair count above which an
	// asset is considered high-frequency. Shared between the scorer's
	// frequency component and the forecaster's high-frequency flag.
	FrequencyThresholds map[AssetType]int `json:"frequencyThresholds"`

	// ComplaintThreshold caps the complaint density component.
	ComplaintThreshold int `json:"complaintThreshold"`

	// MaxWorkers bounds the scoring/SLA fan-out. Zero means sequential.
	MaxWorkers int `json:"maxWorkers"`
}

// Lookback returns the lookback window as a duration.
func (c *EngineConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Horizon returns the forecast horizon as a duration.
func (c *EngineConfig) Horizon() time.Duration {
	return time.Duration(c.ForecastHorizonDays) * 24 * time.Hour
}

// LifecycleInterval returns the service interval for an asset type.
func (c *EngineConfig) LifecycleInterval(t AssetType) time.Duration {
	return time.Duration(c.LifecycleIntervalDays[t]) * 24 * time.Hour
}

const weightTolerance = 1e-9

// Validate enforces the load-time invariants: positive windows and
// thresholds, a full per-type threshold table, weights summing to 1.
func (c *EngineConfig) Validate() error {
	if c.LookbackDays <= 0 {
		return fmt.Errorf("lookbackDays must be positive, got %d", c.LookbackDays)
	}
	if c.ForecastHorizonDays <= 0 {
		return fmt.Errorf("forecastHorizonDays must be positive, got %d", c.ForecastHorizonDays)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive, got %d", c.TopK)
	}
	if c.ComplaintThreshold <= 0 {
		return fmt.Errorf("complaintThreshold must be positive, got %d", c.ComplaintThreshold)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("maxWorkers must not be negative, got %d", c.MaxWorkers)
	}
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"age", c.Weights.Age},
		{"frequency", c.Weights.Frequency},
		{"severity", c.Weights.Severity},
		{"complaint", c.Weights.Complaint},
	} {
		if w.value < 0 {
			return fmt.Errorf("weight %s must not be negative, got %g", w.name, w.value)
		}
	}
	if math.Abs(c.Weights.Sum()-1.0) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %g", c.Weights.Sum())
	}
	for _, t := range AssetTypes() {
		if c.LifecycleIntervalDays[t] <= 0 {
			return fmt.Errorf("lifecycleIntervalDays[%s] must be positive, got %d", t, c.LifecycleIntervalDays[t])
		}
		if c.FrequencyThresholds[t] <= 0 {
			return fmt.Errorf("frequencyThresholds[%s] must be positive, got %d", t, c.FrequencyThresholds[t])
		}
	}
	return nil
}

// DefaultEngineConfig returns the shipped defaults: 12 month lookback,
// 3 month horizon, top 10 critical zones, equal factor weights.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		LookbackDays:        365,
		ForecastHorizonDays: 90,
		TopK:                10,
		Weights: ScoringWeights{
			Age:       0.25,
			Frequency: 0.25,
			Severity:  0.25,
			Complaint: 0.25,
		},
		LifecycleIntervalDays: map[AssetType]int{
			AssetRoad:        365,
			AssetBridge:      730,
			AssetStreetlight: 180,
			AssetPark:        90,
			AssetOther:       365,
		},
		FrequencyThresholds: map[AssetType]int{
			AssetRoad:        4,
			AssetBridge:      3,
			AssetStreetlight: 6,
			AssetPark:        8,
			AssetOther:       4,
		},
		ComplaintThreshold: 5,
		MaxWorkers:         8,
	}
}

// LoadEngineConfig reads an engine config JSON file, applying the defaults
// for any field the file omits, then validates.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid engine config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

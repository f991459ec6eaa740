package domain

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// SeverityEntry maps one severity level to its response policy.
type SeverityEntry struct {
	Level       string `json:"level"`
	Description string `json:"description,omitempty"`

	// MaxResponseHours is the SLA: the maximum allowed time between an
	// incident being reported and resolved.
	MaxResponseHours float64 `json:"hours"`

	// Priority is the numeric severity used for scoring normalization.
	Priority int `json:"priority"`
}

// MaxResponse returns the SLA threshold as a duration.
func (e SeverityEntry) MaxResponse() time.Duration {
	return time.Duration(e.MaxResponseHours * float64(time.Hour))
}

// SeverityMatrix is the ordered severity level -> response policy table.
// Loaded once per run and immutable afterwards.
type SeverityMatrix struct {
	Entries []SeverityEntry `json:"entries"`
}

// Get looks up the entry for a severity level.
func (m *SeverityMatrix) Get(level string) (SeverityEntry, bool) {
	for _, e := range m.Entries {
		if e.Level == level {
			return e, true
		}
	}
	return SeverityEntry{}, false
}

// MaxPriority returns the highest priority across all entries.
func (m *SeverityMatrix) MaxPriority() int {
	max := 0
	for _, e := range m.Entries {
		if e.Priority > max {
			max = e.Priority
		}
	}
	return max
}

// Validate checks the matrix satisfies the load-time invariants:
// at least one entry, unique levels, positive response times and priorities.
func (m *SeverityMatrix) Validate() error {
	if len(m.Entries) == 0 {
		return fmt.Errorf("severity matrix has no entries")
	}
	seen := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		if e.Level == "" {
			return fmt.Errorf("severity matrix entry with empty level")
		}
		if seen[e.Level] {
			return fmt.Errorf("duplicate severity level: %q", e.Level)
		}
		seen[e.Level] = true
		if e.MaxResponseHours <= 0 {
			return fmt.Errorf("severity level %q: hours must be positive", e.Level)
		}
		if e.Priority <= 0 {
			return fmt.Errorf("severity level %q: priority must be positive", e.Level)
		}
	}
	return nil
}

// LoadSeverityMatrix reads and validates a severity matrix JSON file.
// The file format matches the original deployment's severity_matrix.json:
// an object keyed by level name with hours, description and priority.
func LoadSeverityMatrix(path string) (*SeverityMatrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read severity matrix: %w", err)
	}

	var raw map[string]struct {
		Hours       float64 `json:"hours"`
		Description string  `json:"description"`
		Priority    int     `json:"priority"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid severity matrix JSON: %w", err)
	}

	m := &SeverityMatrix{Entries: make([]SeverityEntry, 0, len(raw))}
	for level, d := range raw {
		m.Entries = append(m.Entries, SeverityEntry{
			Level:            level,
			Description:      d.Description,
			MaxResponseHours: d.Hours,
			Priority:         d.Priority,
		})
	}

	// Keep a deterministic order: highest priority first.
	sort.Slice(m.Entries, func(i, j int) bool {
		a, b := m.Entries[i], m.Entries[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Level < b.Level
	})

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DefaultSeverityMatrix returns the matrix used when no file is configured:
// five labelled tiers with response times from 4 hours to 2 weeks.
func DefaultSeverityMatrix() *SeverityMatrix {
	return &SeverityMatrix{Entries: []SeverityEntry{
		{Level: "Critical", Description: "Immediate public safety hazard", MaxResponseHours: 4, Priority: 5},
		{Level: "High", Description: "Major service disruption", MaxResponseHours: 24, Priority: 4},
		{Level: "Medium", Description: "Degraded service", MaxResponseHours: 72, Priority: 3},
		{Level: "Low", Description: "Minor defect", MaxResponseHours: 168, Priority: 2},
		{Level: "Routine", Description: "Cosmetic or scheduled work", MaxResponseHours: 336, Priority: 1},
	}}
}

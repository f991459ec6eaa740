package domain

import "time"

// AlertRule is an operator-defined alert policy evaluated against each
// computed condition score after a run. The expression is CEL over the
// score and its breakdown, e.g.
//
//	score >= 75.0 && severity > 0.5
//	asset_type == "bridge" && age >= 1.0
type AlertRule struct {
	ID          string `json:"id"`
	CityID      string `json:"cityId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression returning bool or a numeric value.
	Expression string `json:"expression"`

	// Threshold applies when the expression returns a number: the rule
	// triggers when the value reaches it. Ignored for bool expressions.
	Threshold float64 `json:"threshold,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

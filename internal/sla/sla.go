// Package sla evaluates incident response times against the severity matrix.
package sla

import (
	"fmt"
	"time"

	"github.com/cityinfra/heron/internal/domain"
)

// Evaluate classifies a single incident against the matrix. Pure function
// of its inputs: an unresolved incident is pending with elapsed measured
// up to now; a resolved one is compliant or violated by comparing the
// resolution time against the matrix entry for its severity level.
func Evaluate(inc *domain.Incident, matrix *domain.SeverityMatrix, now time.Time) (domain.SLAResult, error) {
	entry, ok := matrix.Get(inc.Severity)
	if !ok {
		return domain.SLAResult{}, fmt.Errorf("severity level %q not in matrix", inc.Severity)
	}

	result := domain.SLAResult{
		IncidentID: inc.ID,
		AssetID:    inc.AssetID,
		Severity:   inc.Severity,
		Threshold:  entry.MaxResponse(),
	}

	if inc.ResolvedAt == nil {
		result.Classification = domain.SLAPending
		result.Elapsed = now.Sub(inc.ReportedAt)
		return result, nil
	}

	result.Elapsed = inc.ResolvedAt.Sub(inc.ReportedAt)
	if result.Elapsed > result.Threshold {
		result.Classification = domain.SLAViolated
	} else {
		result.Classification = domain.SLACompliant
	}
	return result, nil
}

// Deadline computes the SLA deadline for an incident reported at the given
// time, used when logging new incidents.
func Deadline(severity string, matrix *domain.SeverityMatrix, reportedAt time.Time) (time.Time, error) {
	entry, ok := matrix.Get(severity)
	if !ok {
		return time.Time{}, fmt.Errorf("severity level %q not in matrix", severity)
	}
	return reportedAt.Add(entry.MaxResponse()), nil
}

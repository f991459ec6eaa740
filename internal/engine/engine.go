// Package engine orchestrates a full analytics run over a record snapshot.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cityinfra/heron/internal/domain"
	"github.com/cityinfra/heron/internal/forecast"
	"github.com/cityinfra/heron/internal/ranking"
	"github.com/cityinfra/heron/internal/scoring"
	"github.com/cityinfra/heron/internal/sla"
)

const engineVersion = "heron-1.0"

var tracer = otel.Tracer("heron-engine")

// Engine is the analytics facade. It evaluates SLA compliance, scores
// every asset, ranks regions and forecasts upcoming maintenance over one
// immutable snapshot, merging everything into a single report.
type Engine struct {
	cfg        *domain.EngineConfig
	matrix     *domain.SeverityMatrix
	scorer     *scoring.Scorer
	forecaster *forecast.Forecaster
}

// New creates an engine. Config and matrix problems are configuration
// errors surfaced here, before any run starts.
func New(cfg *domain.EngineConfig, matrix *domain.SeverityMatrix) (*Engine, error) {
	scorer, err := scoring.NewScorer(cfg, matrix)
	if err != nil {
		return nil, err
	}
	forecaster, err := forecast.NewForecaster(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		matrix:     matrix,
		scorer:     scorer,
		forecaster: forecaster,
	}, nil
}

// Matrix returns the severity matrix the engine was configured with.
// Used by the intake layer to stamp SLA deadlines on new incidents.
func (e *Engine) Matrix() *domain.SeverityMatrix {
	return e.matrix
}

// groups holds an asset's records after referential validation.
type groups struct {
	maintenance []*domain.MaintenanceRecord
	incidents   []*domain.Incident
	complaints  []*domain.Complaint
}

// Run executes one analytics batch. now is injected by the caller so runs
// are deterministic and testable; the engine never reads the ambient clock.
// Configuration errors abort before any work; referential and per-asset
// computation problems are collected into the report and the batch
// continues.
func (e *Engine) Run(ctx context.Context, snap *domain.Snapshot, now time.Time) (*domain.Report, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "engine.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("city.id", snap.CityID),
		attribute.Int("assets", len(snap.Assets)),
		attribute.Int("incidents", len(snap.Incidents)),
	)

	// Every severity level in use must resolve in the matrix before any
	// work starts.
	if err := e.checkSeverityLevels(snap.Incidents); err != nil {
		return nil, err
	}

	report := &domain.Report{
		ID:          uuid.New().String(),
		CityID:      snap.CityID,
		GeneratedAt: now,
	}

	assetsByID := make(map[string]*domain.Asset, len(snap.Assets))
	grouped := make(map[string]*groups, len(snap.Assets))
	for _, a := range snap.Assets {
		assetsByID[a.ID] = a
		grouped[a.ID] = &groups{}
	}

	// Referential validation: records against unknown assets are reported
	// and excluded from all aggregates.
	validIncidents := make([]*domain.Incident, 0, len(snap.Incidents))
	for _, rec := range snap.Maintenance {
		g, ok := grouped[rec.AssetID]
		if !ok {
			report.Errors = append(report.Errors, domain.RecordError{
				RecordID: rec.ID,
				Kind:     domain.ErrorReferential,
				Reason:   fmt.Sprintf("maintenance record references unknown asset %s", rec.AssetID),
			})
			continue
		}
		g.maintenance = append(g.maintenance, rec)
	}
	for _, inc := range snap.Incidents {
		g, ok := grouped[inc.AssetID]
		if !ok {
			report.Errors = append(report.Errors, domain.RecordError{
				RecordID: inc.ID,
				Kind:     domain.ErrorReferential,
				Reason:   fmt.Sprintf("incident references unknown asset %s", inc.AssetID),
			})
			continue
		}
		g.incidents = append(g.incidents, inc)
		validIncidents = append(validIncidents, inc)
	}
	for _, c := range snap.Complaints {
		g, ok := grouped[c.AssetID]
		if !ok {
			report.Errors = append(report.Errors, domain.RecordError{
				RecordID: c.ID,
				Kind:     domain.ErrorReferential,
				Reason:   fmt.Sprintf("complaint references unknown asset %s", c.AssetID),
			})
			continue
		}
		g.complaints = append(g.complaints, c)
	}

	// Phase 1: SLA evaluation for every valid incident. The scorer's
	// severity-pressure component depends on these classifications.
	report.SLA = e.evaluateSLA(validIncidents, now)
	slaByIncident := make(map[string]domain.SLAResult, len(report.SLA))
	for _, res := range report.SLA {
		slaByIncident[res.IncidentID] = res
	}

	// Retired assets stay in the snapshot so their records remain
	// referentially valid and their incidents keep SLA history, but they
	// are excluded from scoring, ranking and forecasting.
	active := make([]*domain.Asset, 0, len(snap.Assets))
	for _, a := range snap.Assets {
		if a.Status != domain.AssetRetired {
			active = append(active, a)
		}
	}

	// Phase 2: per-asset condition scores, fanned out across workers.
	scores, scoreErrs := e.scoreAssets(active, grouped, slaByIncident, now)
	report.Errors = append(report.Errors, scoreErrs...)
	for _, s := range scores {
		if s.MissingRegion {
			report.Warnings = append(report.Warnings, domain.Warning{
				AssetID: s.AssetID,
				Reason:  "asset has no region; scored but excluded from ranking",
			})
		}
	}
	report.Scores = scores

	failed := make(map[string]bool, len(scoreErrs))
	for _, re := range scoreErrs {
		failed[re.RecordID] = true
	}

	// Phases 3 and 4 are independent of each other.
	report.Ranking = ranking.Rank(scores, e.cfg.TopK)
	report.Forecasts = e.forecastAssets(active, grouped, failed, now)

	var traceID string
	if span.SpanContext().TraceID().IsValid() {
		traceID = span.SpanContext().TraceID().String()
	}
	report.Metadata = domain.ReportMetadata{
		TraceID:          traceID,
		AssetsScored:     len(scores),
		AssetsFailed:     len(active) - len(scores),
		IncidentsChecked: len(report.SLA),
		RecordsSkipped:   len(report.Errors),
		TotalMs:          time.Since(start).Milliseconds(),
		EngineVersion:    engineVersion,
	}

	return report, nil
}

// checkSeverityLevels verifies every severity level in use has a matrix
// entry. A miss is a configuration error fatal to the run.
func (e *Engine) checkSeverityLevels(incidents []*domain.Incident) error {
	for _, inc := range incidents {
		if _, ok := e.matrix.Get(inc.Severity); !ok {
			return fmt.Errorf("severity level %q (incident %s) missing from matrix", inc.Severity, inc.ID)
		}
	}
	return nil
}

// evaluateSLA classifies all incidents, in parallel when configured.
// Results are collected positionally and re-sorted by incident id so the
// output is identical to the sequential reference.
func (e *Engine) evaluateSLA(incidents []*domain.Incident, now time.Time) []domain.SLAResult {
	results := make([]domain.SLAResult, len(incidents))

	e.fanOut(len(incidents), func(i int) {
		// Severity levels were pre-validated; Evaluate cannot fail here.
		res, err := sla.Evaluate(incidents[i], e.matrix, now)
		if err == nil {
			results[i] = res
		}
	})

	sort.Slice(results, func(i, j int) bool {
		return results[i].IncidentID < results[j].IncidentID
	})
	return results
}

// scoreAssets computes condition scores for all assets in parallel and
// restores asset-id order before ranking to keep tie-breaks deterministic.
func (e *Engine) scoreAssets(assets []*domain.Asset, grouped map[string]*groups, slaByIncident map[string]domain.SLAResult, now time.Time) ([]domain.ConditionScore, []domain.RecordError) {
	type outcome struct {
		score domain.ConditionScore
		err   error
	}
	outcomes := make([]outcome, len(assets))

	e.fanOut(len(assets), func(i int) {
		a := assets[i]
		g := grouped[a.ID]
		score, err := e.scorer.Score(scoring.Input{
			Asset:       a,
			Maintenance: g.maintenance,
			Incidents:   g.incidents,
			SLA:         slaByIncident,
			Complaints:  g.complaints,
		}, now)
		outcomes[i] = outcome{score: score, err: err}
	})

	var scores []domain.ConditionScore
	var errs []domain.RecordError
	for i, o := range outcomes {
		if o.err != nil {
			errs = append(errs, domain.RecordError{
				RecordID: assets[i].ID,
				Kind:     domain.ErrorComputation,
				Reason:   o.err.Error(),
			})
			continue
		}
		scores = append(scores, o.score)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].AssetID != scores[j].AssetID {
			return scores[i].AssetID < scores[j].AssetID
		}
		return scores[i].Region < scores[j].Region
	})
	return scores, errs
}

// forecastAssets runs the forecaster in asset-id order over the assets
// that scored cleanly. Assets in the failed set already carry a
// computation error and are skipped.
func (e *Engine) forecastAssets(assets []*domain.Asset, grouped map[string]*groups, failed map[string]bool, now time.Time) []domain.ForecastEntry {
	ordered := make([]*domain.Asset, 0, len(assets))
	for _, a := range assets {
		if !failed[a.ID] {
			ordered = append(ordered, a)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var entries []domain.ForecastEntry
	for _, a := range ordered {
		got, err := e.forecaster.Forecast(a, grouped[a.ID].maintenance, now)
		if err != nil {
			continue
		}
		entries = append(entries, got...)
	}
	return entries
}

// fanOut runs fn for each index across a bounded worker pool. With
// MaxWorkers zero the loop is sequential.
func (e *Engine) fanOut(n int, fn func(i int)) {
	if e.cfg.MaxWorkers <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.MaxWorkers)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			fn(idx)
		}(i)
	}
	wg.Wait()
}

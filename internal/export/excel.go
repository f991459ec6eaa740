// Package export renders analytics reports as spreadsheet workbooks.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cityinfra/heron/internal/domain"
)

// Sheet names in workbook order.
const (
	SheetScores   = "Condition Scores"
	SheetRanking  = "Risk Ranking"
	SheetForecast = "Forecast"
	SheetSLA      = "SLA Compliance"
	SheetIssues   = "Issues"
)

// ExcelWriter writes reports as .xlsx workbooks into a directory.
type ExcelWriter struct {
	dir string
}

// NewExcelWriter creates a writer rooted at dir, creating it if needed.
func NewExcelWriter(dir string) (*ExcelWriter, error) {
	if dir == "" {
		dir = "./reports"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &ExcelWriter{dir: dir}, nil
}

// Write renders the report and returns the path of the workbook.
func (w *ExcelWriter) Write(report *domain.Report) (string, error) {
	path := filepath.Join(w.dir, w.Filename(report))
	if err := w.WriteFile(report, path); err != nil {
		return "", err
	}
	return path, nil
}

// Filename returns the canonical workbook name for a report.
func (w *ExcelWriter) Filename(report *domain.Report) string {
	return fmt.Sprintf("%s_%s_%s.xlsx",
		report.CityID,
		report.GeneratedAt.UTC().Format("20060102T150405Z"),
		report.ID,
	)
}

// WriteFile renders the report workbook at an explicit path.
func (w *ExcelWriter) WriteFile(report *domain.Report, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := w.writeScores(f, report, headerStyle); err != nil {
		return err
	}
	if err := w.writeRanking(f, report, headerStyle); err != nil {
		return err
	}
	if err := w.writeForecast(f, report, headerStyle); err != nil {
		return err
	}
	if err := w.writeSLA(f, report, headerStyle); err != nil {
		return err
	}
	if err := w.writeIssues(f, report, headerStyle); err != nil {
		return err
	}

	// The default sheet is replaced by the report sheets.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *ExcelWriter) writeScores(f *excelize.File, report *domain.Report, headerStyle int) error {
	headers := []string{"Asset ID", "Type", "Region", "Score", "Age", "Frequency", "Severity", "Complaint"}
	if err := newSheet(f, SheetScores, headers, headerStyle); err != nil {
		return err
	}

	for i, s := range report.Scores {
		row := i + 2
		region := s.Region
		if s.MissingRegion {
			region = "(none)"
		}
		cells := []any{
			s.AssetID, string(s.AssetType), region,
			round2(s.Score),
			round2(s.Breakdown.Age), round2(s.Breakdown.Frequency),
			round2(s.Breakdown.Severity), round2(s.Breakdown.Complaint),
		}
		if err := setRow(f, SheetScores, row, cells); err != nil {
			return err
		}
	}

	return f.SetColWidth(SheetScores, "A", "A", 24)
}

func (w *ExcelWriter) writeRanking(f *excelize.File, report *domain.Report, headerStyle int) error {
	headers := []string{"Rank", "Region", "Mean Score", "Max Score", "Assets", "Critical"}
	if err := newSheet(f, SheetRanking, headers, headerStyle); err != nil {
		return err
	}

	for i, e := range report.Ranking {
		row := i + 2
		critical := ""
		if e.Critical {
			critical = "YES"
		}
		cells := []any{e.Rank, e.Region, round2(e.MeanScore), round2(e.MaxScore), e.AssetCount, critical}
		if err := setRow(f, SheetRanking, row, cells); err != nil {
			return err
		}
	}

	return f.SetColWidth(SheetRanking, "B", "B", 20)
}

func (w *ExcelWriter) writeForecast(f *excelize.File, report *domain.Report, headerStyle int) error {
	headers := []string{"Asset ID", "Reason", "Next Due", "Days Until Due"}
	if err := newSheet(f, SheetForecast, headers, headerStyle); err != nil {
		return err
	}

	for i, e := range report.Forecasts {
		row := i + 2
		cells := []any{
			e.AssetID, string(e.Reason),
			e.NextDue.UTC().Format(time.RFC3339),
			e.DaysUntilDue,
		}
		if err := setRow(f, SheetForecast, row, cells); err != nil {
			return err
		}
	}

	return f.SetColWidth(SheetForecast, "A", "C", 24)
}

func (w *ExcelWriter) writeSLA(f *excelize.File, report *domain.Report, headerStyle int) error {
	headers := []string{"Incident ID", "Asset ID", "Severity", "Classification", "Elapsed Hours", "Threshold Hours"}
	if err := newSheet(f, SheetSLA, headers, headerStyle); err != nil {
		return err
	}

	for i, r := range report.SLA {
		row := i + 2
		cells := []any{
			r.IncidentID, r.AssetID, r.Severity, string(r.Classification),
			round2(r.Elapsed.Hours()), round2(r.Threshold.Hours()),
		}
		if err := setRow(f, SheetSLA, row, cells); err != nil {
			return err
		}
	}

	return f.SetColWidth(SheetSLA, "A", "B", 24)
}

// writeIssues merges per-record errors and data quality warnings.
func (w *ExcelWriter) writeIssues(f *excelize.File, report *domain.Report, headerStyle int) error {
	headers := []string{"Record ID", "Kind", "Detail"}
	if err := newSheet(f, SheetIssues, headers, headerStyle); err != nil {
		return err
	}

	row := 2
	for _, e := range report.Errors {
		if err := setRow(f, SheetIssues, row, []any{e.RecordID, string(e.Kind), e.Reason}); err != nil {
			return err
		}
		row++
	}
	for _, warn := range report.Warnings {
		if err := setRow(f, SheetIssues, row, []any{warn.AssetID, "warning", warn.Reason}); err != nil {
			return err
		}
		row++
	}

	return f.SetColWidth(SheetIssues, "C", "C", 48)
}

func newSheet(f *excelize.File, name string, headers []string, headerStyle int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	if err := setRow(f, name, 1, toAny(headers)); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(name, "A1", last, headerStyle)
}

func setRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

package aggregator

import (
	"sort"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

// Aggregator merges scanner runs into a report.
type Aggregator struct {
	now func() time.Time
}

// New creates a new aggregator
func New() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Aggregate combines the runs of one invocation into a unified report.
// Failed runs contribute their summary and no findings.
func (a *Aggregator) Aggregate(root string, runs []*models.ScanRun) *models.Report {
	report := &models.Report{
		Timestamp: a.now().UTC(),
		Root:      root,
		Runs:      make([]models.RunSummary, 0, len(runs)),
		Findings:  []models.Finding{},
		Summary: models.Summary{
			ByScanner: make(map[string]int),
			ByType:    make(map[string]int),
		},
	}

	for _, run := range runs {
		if run == nil {
			continue
		}
		report.Runs = append(report.Runs, summarizeRun(run))
		if run.Failed() {
			report.Summary.FailedScanners = append(report.Summary.FailedScanners, run.Scanner)
			continue
		}
		report.Findings = append(report.Findings, run.Findings...)
		report.Summary.Scanned += run.Scanned
		if run.Truncated {
			report.Summary.Truncated = true
		}
	}

	SortFindings(report.Findings)
	calculateSummary(report)
	return report
}

func summarizeRun(run *models.ScanRun) models.RunSummary {
	return models.RunSummary{
		ID:         run.ID,
		Scanner:    run.Scanner,
		Scope:      run.Scope,
		Config:     run.Config,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Scanned:    run.Scanned,
		Findings:   len(run.Findings),
		Truncated:  run.Truncated,
		Status:     run.Status,
		Error:      run.Error,
	}
}

// calculateSummary computes counters and the grade from the findings.
func calculateSummary(report *models.Report) {
	s := &report.Summary
	s.Total = len(report.Findings)
	for _, f := range report.Findings {
		switch f.Severity {
		case models.SeverityCritical:
			s.Critical++
		case models.SeverityAlert:
			s.Alert++
		default:
			s.Info++
		}
		s.ByScanner[f.Scanner]++
		s.ByType[f.Type]++
	}
	s.Grade = models.CalculateGrade(s.Critical, s.Alert)
}

// SortFindings orders findings by severity descending, then scanner,
// subject and type.
func SortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Scanner != b.Scanner {
			return a.Scanner < b.Scanner
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Type < b.Type
	})
}

// Recompute refreshes the summary of a report whose findings were edited,
// e.g. by a filter. Run-derived fields are kept.
func Recompute(report *models.Report) {
	s := &report.Summary
	s.Total, s.Critical, s.Alert, s.Info = 0, 0, 0, 0
	s.ByScanner = make(map[string]int)
	s.ByType = make(map[string]int)
	calculateSummary(report)
}

// AddTrend adds trend information by comparing with a previous report
func (a *Aggregator) AddTrend(current, previous *models.Report) {
	if previous == nil {
		return
	}
	diff := Diff(previous, current)

	trend := &models.Trend{
		PreviousFindings: previous.Summary.Total,
		CurrentFindings:  current.Summary.Total,
		PreviousGrade:    previous.Summary.Grade,
		ComparedWith:     previous.Timestamp,
		NewFindings:      len(diff.New),
		ResolvedFindings: len(diff.Resolved),
	}

	// A grade change decides the direction before raw counts.
	cur, prev := current.Summary.Grade.Rank(), previous.Summary.Grade.Rank()
	change := current.Summary.Total - previous.Summary.Total
	switch {
	case cur > prev:
		trend.Direction = DirectionImproving
	case cur < prev:
		trend.Direction = DirectionDegrading
	case change < 0:
		trend.Direction = DirectionImproving
	case change > 0:
		trend.Direction = DirectionDegrading
	default:
		trend.Direction = DirectionStable
	}

	current.Trend = trend
}

// Trend directions
const (
	DirectionImproving = "improving"
	DirectionDegrading = "degrading"
	DirectionStable    = "stable"
)

// DiffResult holds findings that appeared, disappeared or changed severity
// between two reports. Findings are matched by fingerprint.
type DiffResult struct {
	New      []models.Finding `json:"new"`
	Resolved []models.Finding `json:"resolved"`
	Changed  []SeverityChange `json:"changed"`
}

// SeverityChange is a finding present in both reports at different levels.
type SeverityChange struct {
	Finding  models.Finding  `json:"finding"`
	Previous models.Severity `json:"previous"`
}

// Diff compares baseline with current.
func Diff(baseline, current *models.Report) *DiffResult {
	res := &DiffResult{
		New:      []models.Finding{},
		Resolved: []models.Finding{},
		Changed:  []SeverityChange{},
	}
	base := index(baseline)
	curr := index(current)

	for _, f := range current.Findings {
		prev, ok := base[key(f)]
		switch {
		case !ok:
			res.New = append(res.New, f)
		case prev.Severity != f.Severity:
			res.Changed = append(res.Changed, SeverityChange{Finding: f, Previous: prev.Severity})
		}
	}
	for _, f := range baseline.Findings {
		if _, ok := curr[key(f)]; !ok {
			res.Resolved = append(res.Resolved, f)
		}
	}
	return res
}

func index(r *models.Report) map[string]models.Finding {
	m := make(map[string]models.Finding, len(r.Findings))
	for _, f := range r.Findings {
		m[key(f)] = f
	}
	return m
}

// key falls back to computing the fingerprint for hand-written reports.
func key(f models.Finding) string {
	if f.Fingerprint != "" {
		return f.Fingerprint
	}
	return f.ComputeFingerprint()
}

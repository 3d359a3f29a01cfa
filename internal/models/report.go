package models

import "time"

// Report is the aggregated output of one wpspectre invocation.
type Report struct {
	Timestamp time.Time    `json:"timestamp"`
	Root      string       `json:"root"`
	Runs      []RunSummary `json:"runs"`
	Findings  []Finding    `json:"findings"`
	Summary   Summary      `json:"summary"`
	Trend     *Trend       `json:"trend,omitempty"`
}

// RunSummary describes a scan run without its findings.
type RunSummary struct {
	ID         string            `json:"id"`
	Scanner    string            `json:"scanner"`
	Scope      string            `json:"scope"`
	Config     map[string]string `json:"config,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Scanned    int               `json:"scanned"`
	Findings   int               `json:"findings"`
	Truncated  bool              `json:"truncated"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
}

// Summary provides totals across all runs of a report.
type Summary struct {
	Total          int            `json:"total"`
	Critical       int            `json:"critical"`
	Alert          int            `json:"alert"`
	Info           int            `json:"info"`
	ByScanner      map[string]int `json:"by_scanner"`
	ByType         map[string]int `json:"by_type"`
	Scanned        int            `json:"scanned"`
	FailedScanners []string       `json:"failed_scanners,omitempty"`
	Truncated      bool           `json:"truncated"`
	Grade          Grade          `json:"grade"`
}

// Trend compares a report with the previous stored one.
type Trend struct {
	Direction        string    `json:"direction"` // improving, degrading, stable
	PreviousFindings int       `json:"previous_findings"`
	CurrentFindings  int       `json:"current_findings"`
	PreviousGrade    Grade     `json:"previous_grade"`
	ComparedWith     time.Time `json:"compared_with"`
	NewFindings      int       `json:"new_findings"`
	ResolvedFindings int       `json:"resolved_findings"`
}

// TrendSummary is the history view used by summarize.
type TrendSummary struct {
	TimeRange    string                   `json:"time_range"`
	RunsAnalyzed int                      `json:"runs_analyzed"`
	Sparkline    []int                    `json:"sparkline"`
	Grades       []Grade                  `json:"grades"`
	ByScanner    map[string]*ScannerTrend `json:"by_scanner"`
}

// ScannerTrend is the per-scanner share of a TrendSummary.
type ScannerTrend struct {
	Name             string  `json:"name"`
	CurrentFindings  int     `json:"current_findings"`
	PreviousFindings int     `json:"previous_findings"`
	Change           int     `json:"change"`
	ChangePercent    float64 `json:"change_percent"`
}

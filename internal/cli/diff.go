package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/reporter"
	"github.com/ppiankov/wpspectre/internal/validator"
)

var (
	diffFormat  string
	diffOutput  string
	diffFailNew bool
)

var diffCmd = &cobra.Command{
	Use:   "diff [old] [new]",
	Short: "Show what changed between two audit runs",
	Long: `Compare two reports to show drift: new findings, resolved findings,
and findings whose severity changed. Findings are matched by fingerprint.

With no arguments the two most recent stored runs are compared. With one
argument that report is the baseline and the latest stored run is current.
With two arguments both reports are read from files.

Exit codes:
  0  No new findings (or --fail-new not set)
  1  New findings detected (with --fail-new)
  2  A report file is invalid

Example:
  wpspectre diff
  wpspectre diff baseline.json --fail-new
  wpspectre diff old.json new.json --format json`,
	Args: cobra.MaximumNArgs(2),
	RunE: runDiff,
}

func init() {
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text",
		"output format: text or json")
	diffCmd.Flags().StringVarP(&diffOutput, "output", "o", "",
		"write output to file instead of stdout")
	diffCmd.Flags().BoolVar(&diffFailNew, "fail-new", false,
		"exit 1 if new findings are found (for CI gating)")
}

// DiffReport is the structured output of a diff operation.
type DiffReport struct {
	Baseline string `json:"baseline"`
	Current  string `json:"current"`
	*aggregator.DiffResult
	Summary DiffSummary `json:"summary"`
}

// DiffSummary holds aggregate counts for a diff.
type DiffSummary struct {
	BaselineTotal int            `json:"baseline_total"`
	CurrentTotal  int            `json:"current_total"`
	NewCount      int            `json:"new_count"`
	ResolvedCount int            `json:"resolved_count"`
	ChangedCount  int            `json:"changed_count"`
	Delta         int            `json:"delta"` // positive = more findings
	BaselineGrade models.Grade   `json:"baseline_grade"`
	CurrentGrade  models.Grade   `json:"current_grade"`
	NewBySeverity map[string]int `json:"new_by_severity"`
	NewByScanner  map[string]int `json:"new_by_scanner"`
}

func runDiff(cmd *cobra.Command, args []string) error {
	if diffFormat != "text" && diffFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", diffFormat)}
	}

	baseline, current, err := loadDiffPair(args)
	if err != nil {
		return err
	}
	if baseline == nil {
		fmt.Println("Need at least 2 stored runs for diff.")
		fmt.Println("Run 'wpspectre scan --store' to generate more reports.")
		return nil
	}

	logVerbose("Comparing %s (current) vs %s (baseline)",
		current.Timestamp.Format("2006-01-02 15:04"),
		baseline.Timestamp.Format("2006-01-02 15:04"))

	result := buildDiffReport(baseline, current)

	var w io.Writer = os.Stdout
	if diffOutput != "" {
		f, err := os.Create(diffOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if diffFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printDiffText(w, result)
	}

	if diffFailNew && result.Summary.NewCount > 0 {
		return &ThresholdExceededError{Count: result.Summary.NewCount, Reason: "new findings"}
	}
	return nil
}

// loadDiffPair returns baseline and current. A nil baseline means history
// is too short.
func loadDiffPair(args []string) (*models.Report, *models.Report, error) {
	switch len(args) {
	case 2:
		baseline, err := loadReportFromFile(args[0])
		if err != nil {
			return nil, nil, err
		}
		current, err := loadReportFromFile(args[1])
		if err != nil {
			return nil, nil, err
		}
		return baseline, current, nil
	}

	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	if len(args) == 1 {
		baseline, err := loadReportFromFile(args[0])
		if err != nil {
			return nil, nil, err
		}
		current, err := store.GetLatestRun()
		if err != nil {
			fmt.Println("No stored runs found. Run 'wpspectre scan --store' first.")
			return nil, nil, err
		}
		return baseline, current, nil
	}

	reports, err := store.GetLastNRuns(2)
	if err != nil || len(reports) < 2 {
		return nil, nil, nil
	}
	return reports[0], reports[1], nil
}

func buildDiffReport(baseline, current *models.Report) *DiffReport {
	d := aggregator.Diff(baseline, current)

	newBySeverity := map[string]int{}
	newByScanner := map[string]int{}
	for _, f := range d.New {
		newBySeverity[string(f.Severity)]++
		newByScanner[f.Scanner]++
	}

	return &DiffReport{
		Baseline:   baseline.Timestamp.Format("2006-01-02 15:04:05"),
		Current:    current.Timestamp.Format("2006-01-02 15:04:05"),
		DiffResult: d,
		Summary: DiffSummary{
			BaselineTotal: len(baseline.Findings),
			CurrentTotal:  len(current.Findings),
			NewCount:      len(d.New),
			ResolvedCount: len(d.Resolved),
			ChangedCount:  len(d.Changed),
			Delta:         len(current.Findings) - len(baseline.Findings),
			BaselineGrade: baseline.Summary.Grade,
			CurrentGrade:  current.Summary.Grade,
			NewBySeverity: newBySeverity,
			NewByScanner:  newByScanner,
		},
	}
}

func printDiffText(w io.Writer, r *DiffReport) {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("╔════════════════════════════════════════════╗\n")
	p("║          wpspectre Drift Delta             ║\n")
	p("╚════════════════════════════════════════════╝\n\n")

	p("Baseline: %s (grade %s)\n", r.Baseline, r.Summary.BaselineGrade)
	p("Current:  %s (grade %s)\n\n", r.Current, r.Summary.CurrentGrade)

	deltaSign := "+"
	if r.Summary.Delta < 0 {
		deltaSign = ""
	}
	p("Findings: %d → %d (%s%d)\n", r.Summary.BaselineTotal, r.Summary.CurrentTotal, deltaSign, r.Summary.Delta)
	p("New: %d   Resolved: %d   Changed: %d\n\n", r.Summary.NewCount, r.Summary.ResolvedCount, r.Summary.ChangedCount)

	if len(r.New) > 0 {
		p("New Findings:\n")
		p("--------------------------------------------------\n")
		for _, f := range r.New {
			p("  %s %-8s [%s] %s: %s\n", reporter.Glyph(f.Severity), f.Severity, f.Scanner, f.Type, f.Subject)
			if f.Detail != "" {
				p("         %s\n", f.Detail)
			}
		}
		p("\n")
	}

	if len(r.Changed) > 0 {
		p("Severity Changes:\n")
		p("--------------------------------------------------\n")
		for _, c := range r.Changed {
			p("  %s → %s [%s] %s: %s\n", c.Previous, c.Finding.Severity, c.Finding.Scanner, c.Finding.Type, c.Finding.Subject)
		}
		p("\n")
	}

	if len(r.Resolved) > 0 {
		p("Resolved Findings:\n")
		p("--------------------------------------------------\n")
		for _, f := range r.Resolved {
			p("  ✓ [%s] %s: %s\n", f.Scanner, f.Type, f.Subject)
		}
		p("\n")
	}

	if len(r.Summary.NewBySeverity) > 0 {
		p("New by Severity:\n")
		for i := len(models.Severities) - 1; i >= 0; i-- {
			sev := string(models.Severities[i])
			if n := r.Summary.NewBySeverity[sev]; n > 0 {
				p("  %s: %d\n", sev, n)
			}
		}
		p("\n")
	}

	if len(r.Summary.NewByScanner) > 0 {
		p("New by Scanner:\n")
		names := make([]string, 0, len(r.Summary.NewByScanner))
		for name := range r.Summary.NewByScanner {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p("  %s: %d\n", name, r.Summary.NewByScanner[name])
		}
		p("\n")
	}

	switch {
	case r.Summary.NewCount == 0 && r.Summary.ResolvedCount == 0 && r.Summary.ChangedCount == 0:
		p("No drift detected.\n")
	case r.Summary.NewCount == 0:
		p("No new findings, only improvements or severity changes.\n")
	}
}

// loadReportFromFile reads and validates a report. Invalid content is an
// input error.
func loadReportFromFile(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	report, err := validator.New().ParseReport(path, data)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return report, nil
}

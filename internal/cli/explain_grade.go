package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/models"
)

var (
	explainFormat string
	explainReport string
)

var explainGradeCmd = &cobra.Command{
	Use:   "explain-grade",
	Short: "Show how the grade of the latest run was decided",
	Long: `Explain-grade loads the latest stored report (or --report) and shows
exactly how its letter grade was calculated:

  1. Critical and alert findings per scanner
  2. The grade rules, in the order they are checked
  3. The rule that decided the grade

Only CRITIQUE and ALERTE findings affect the grade; INFO never does.`,
	RunE: runExplainGrade,
}

func init() {
	explainGradeCmd.Flags().StringVar(&explainFormat, "format", "text",
		"output format: text or json")
	explainGradeCmd.Flags().StringVar(&explainReport, "report", "",
		"explain this report file instead of the latest stored run")
}

// explainResult holds the structured explanation.
type explainResult struct {
	Grade     models.Grade        `json:"grade"`
	Message   string              `json:"message"`
	Critical  int                 `json:"critical"`
	Alert     int                 `json:"alert"`
	Info      int                 `json:"info"`
	PerScan   []scannerSeverities `json:"per_scanner"`
	Rules     []gradeRule         `json:"rules"`
	Decided   string              `json:"decided_by"`
	Failed    []string            `json:"failed_scanners,omitempty"`
	Truncated bool                `json:"truncated"`
}

type scannerSeverities struct {
	Scanner  string `json:"scanner"`
	Critical int    `json:"critical"`
	Alert    int    `json:"alert"`
	Info     int    `json:"info"`
}

type gradeRule struct {
	Grade models.Grade `json:"grade"`
	When  string       `json:"when"`
}

// gradeRules mirrors models.CalculateGrade in evaluation order.
var gradeRules = []gradeRule{
	{models.GradeD, "critical > 2"},
	{models.GradeC, "critical > 0"},
	{models.GradeB, "alert > 5"},
	{models.GradeA, "alert > 0"},
	{models.GradeAPlus, "otherwise"},
}

func runExplainGrade(cmd *cobra.Command, args []string) error {
	if explainFormat != "text" && explainFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("invalid format: %s (must be text or json)", explainFormat)}
	}

	var report *models.Report
	var err error
	if explainReport != "" {
		report, err = loadReportFromFile(explainReport)
	} else {
		store, serr := openStore()
		if serr != nil {
			return serr
		}
		report, err = store.GetLatestRun()
		if err != nil {
			err = fmt.Errorf("no stored runs found, run 'wpspectre scan --store' first: %w", err)
		}
	}
	if err != nil {
		return err
	}

	result := buildExplanation(report)
	if explainFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeExplainText(os.Stdout, result)
	return nil
}

func buildExplanation(report *models.Report) explainResult {
	s := report.Summary
	result := explainResult{
		Grade:     models.CalculateGrade(s.Critical, s.Alert),
		Critical:  s.Critical,
		Alert:     s.Alert,
		Info:      s.Info,
		Rules:     gradeRules,
		Failed:    s.FailedScanners,
		Truncated: s.Truncated,
	}
	result.Message = models.GradeMessage(result.Grade)
	for _, r := range gradeRules {
		if r.Grade == result.Grade {
			result.Decided = r.When
		}
	}

	per := map[string]*scannerSeverities{}
	for _, run := range report.Runs {
		per[run.Scanner] = &scannerSeverities{Scanner: run.Scanner}
	}
	for _, f := range report.Findings {
		ss, ok := per[f.Scanner]
		if !ok {
			ss = &scannerSeverities{Scanner: f.Scanner}
			per[f.Scanner] = ss
		}
		switch f.Severity {
		case models.SeverityCritical:
			ss.Critical++
		case models.SeverityAlert:
			ss.Alert++
		default:
			ss.Info++
		}
	}
	for _, ss := range per {
		result.PerScan = append(result.PerScan, *ss)
	}
	sort.Slice(result.PerScan, func(i, j int) bool {
		return result.PerScan[i].Scanner < result.PerScan[j].Scanner
	})
	return result
}

func writeExplainText(w io.Writer, r explainResult) {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("Grade Breakdown\n")
	p("===============\n\n")

	p("1. Findings per scanner:\n")
	for _, ss := range r.PerScan {
		p("   %-8s  %d critical, %d alert, %d info\n", ss.Scanner, ss.Critical, ss.Alert, ss.Info)
	}
	p("   %-8s  %d critical, %d alert, %d info\n\n", "total", r.Critical, r.Alert, r.Info)

	p("2. Rules (first match wins):\n")
	for _, rule := range r.Rules {
		marker := "  "
		if rule.Grade == r.Grade {
			marker = "→ "
		}
		p("   %s%-2s  %s\n", marker, rule.Grade, rule.When)
	}
	p("\n")

	p("3. Result: %s (%s)\n", r.Grade, r.Decided)
	p("   %s\n", r.Message)

	if len(r.Failed) > 0 {
		p("\nNote: failed scanners contribute no findings: %v\n", r.Failed)
	}
	if r.Truncated {
		p("Note: a findings cap was reached; the real counts may be higher\n")
	}
}

package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/models"
)

const rule = "--------------------------------------------------"

// TextReporter generates human-readable text reports
type TextReporter struct {
	writer   io.Writer
	renderer *lipgloss.Renderer
	// Limit caps printed findings; zero prints all.
	Limit int
}

// NewTextReporter creates a new text reporter. Colors are used only when
// writer is a terminal.
func NewTextReporter(writer io.Writer) *TextReporter {
	return &TextReporter{
		writer:   writer,
		renderer: lipgloss.NewRenderer(writer),
	}
}

// Generate creates a text report
func (r *TextReporter) Generate(report *models.Report) error {
	r.printHeader()
	r.printf("Root:      %s\n", report.Root)
	r.printf("Timestamp: %s\n\n", formatTimestamp(report.Timestamp))

	r.printSummary(report)
	r.printRuns(report.Runs)
	r.printFindings(report.Findings)

	if report.Trend != nil {
		r.printTrendInfo(report.Trend)
	}
	return nil
}

func (r *TextReporter) printHeader() {
	r.printf("╔════════════════════════════════════════════╗\n")
	r.printf("║        wpspectre WordPress Audit           ║\n")
	r.printf("╚════════════════════════════════════════════╝\n\n")
}

func (r *TextReporter) printSummary(report *models.Report) {
	s := report.Summary
	r.printf("Summary:\n%s\n", rule)
	r.printf("  Findings: %d (%s critical, %s alert, %d info)\n",
		s.Total,
		r.severity(models.SeverityCritical, fmt.Sprint(s.Critical)),
		r.severity(models.SeverityAlert, fmt.Sprint(s.Alert)),
		s.Info)
	r.printf("  Items scanned: %d\n", s.Scanned)
	r.printf("  Grade: %s  %s", r.grade(s.Grade), models.GradeMessage(s.Grade))
	if report.Trend != nil {
		r.printf("  %s since %s", aggregator.GetTrendIndicator(report.Trend.Direction), report.Trend.PreviousGrade)
	}
	r.printf("\n")
	if s.Truncated {
		r.printf("  Note: findings cap reached, some results were dropped\n")
	}
	r.printf("\n")
}

func (r *TextReporter) printRuns(runs []models.RunSummary) {
	if len(runs) == 0 {
		return
	}
	title := cases.Title(language.English)
	r.printf("Scanners:\n%s\n", rule)
	var failed []models.RunSummary
	for _, run := range runs {
		status := strings.ToUpper(run.Status)
		if run.Status == models.RunStatusError {
			failed = append(failed, run)
			status = r.severity(models.SeverityCritical, status)
		}
		line := fmt.Sprintf("  %-8s %-6s scanned %-6d findings %-5d %s",
			title.String(run.Scanner), status, run.Scanned, run.Findings,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
		if run.Truncated {
			line += " (truncated)"
		}
		r.printf("%s\n", strings.TrimRight(line, " "))
	}
	if len(failed) > 0 {
		r.printf("\nScanner failures:\n")
		for _, run := range failed {
			r.printf("  %s: %s\n", run.Scanner, run.Error)
		}
	}
	r.printf("\n")
}

func (r *TextReporter) printFindings(findings []models.Finding) {
	r.printf("Findings:\n%s\n", rule)
	if len(findings) == 0 {
		r.printf("  No findings.\n\n")
		return
	}
	shown := findings
	if r.Limit > 0 && len(shown) > r.Limit {
		shown = shown[:r.Limit]
	}
	for _, f := range shown {
		label := fmt.Sprintf("%s %-8s", Glyph(f.Severity), f.Severity)
		r.printf("  %s [%s] %s  %s\n", r.severity(f.Severity, label), f.Scanner, f.Type, f.Subject)
		detail := f.Detail
		if f.Size != nil {
			detail += fmt.Sprintf(" [%s]", models.HumanBytes(*f.Size))
		}
		if detail != "" {
			r.printf("      %s\n", detail)
		}
	}
	if len(shown) < len(findings) {
		r.printf("  ... %d more, use --format json for the full list\n", len(findings)-len(shown))
	}
	r.printf("\n")
}

func (r *TextReporter) printTrendInfo(trend *models.Trend) {
	r.printf("Trend Analysis:\n%s\n", rule)
	r.printf("  Direction: %s %s\n", trend.Direction, aggregator.GetTrendIndicator(trend.Direction))
	r.printf("  Change: %d → %d findings\n", trend.PreviousFindings, trend.CurrentFindings)
	if trend.NewFindings > 0 {
		r.printf("  New: %d\n", trend.NewFindings)
	}
	if trend.ResolvedFindings > 0 {
		r.printf("  Resolved: %d\n", trend.ResolvedFindings)
	}
	r.printf("  Compared With: %s\n", formatTimestamp(trend.ComparedWith))
}

func (r *TextReporter) severity(s models.Severity, text string) string {
	return SeverityStyle(r.renderer, s).Render(text)
}

func (r *TextReporter) grade(g models.Grade) string {
	return GradeStyle(r.renderer, g).Render(string(g))
}

func (r *TextReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format, args...)
}

// Glyph returns the one-character marker of a severity.
func Glyph(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "✖"
	case models.SeverityAlert:
		return "▲"
	default:
		return "•"
	}
}

// Severity colors
var (
	ColorCritical = lipgloss.Color("#FF0000")
	ColorAlert    = lipgloss.Color("#FF8800")
	ColorInfo     = lipgloss.Color("#5FAFFF")
	ColorOK       = lipgloss.Color("#00FF00")
)

// SeverityStyle returns the style for a severity on the given renderer.
func SeverityStyle(re *lipgloss.Renderer, s models.Severity) lipgloss.Style {
	st := re.NewStyle()
	switch s {
	case models.SeverityCritical:
		return st.Foreground(ColorCritical).Bold(true)
	case models.SeverityAlert:
		return st.Foreground(ColorAlert).Bold(true)
	case models.SeverityInfo:
		return st.Foreground(ColorInfo)
	}
	return st
}

// GradeStyle returns the style for a grade on the given renderer.
func GradeStyle(re *lipgloss.Renderer, g models.Grade) lipgloss.Style {
	st := re.NewStyle().Bold(true)
	switch g {
	case models.GradeD, models.GradeC:
		return st.Foreground(ColorCritical)
	case models.GradeB:
		return st.Foreground(ColorAlert)
	}
	return st.Foreground(ColorOK)
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

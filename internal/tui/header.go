package tui

import (
	"fmt"
	"strings"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/models"
)

// headerHeight is the number of terminal lines the header occupies.
const headerHeight = 5

func renderHeader(report *models.Report, sparkline []int, width int) string {
	var b strings.Builder
	s := report.Summary

	gradeText := gradeStyle(s.Grade).Render(string(s.Grade))
	b.WriteString(fmt.Sprintf("wpspectre  %s  Grade: %s", report.Root, gradeText))
	if report.Trend != nil {
		b.WriteString(fmt.Sprintf("  %s since %s", aggregator.GetTrendIndicator(report.Trend.Direction), report.Trend.PreviousGrade))
	}
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("Scanners: %d  Scanned: %d  Findings: %d", len(report.Runs), s.Scanned, s.Total))
	if len(s.FailedScanners) > 0 {
		b.WriteString("  Failed: " + strings.Join(s.FailedScanners, ","))
	}
	b.WriteString("\n")

	counts := map[models.Severity]int{
		models.SeverityCritical: s.Critical,
		models.SeverityAlert:    s.Alert,
		models.SeverityInfo:     s.Info,
	}
	parts := make([]string, 0, 3)
	for _, sev := range []models.Severity{models.SeverityCritical, models.SeverityAlert, models.SeverityInfo} {
		if counts[sev] > 0 {
			parts = append(parts, severityStyle(sev).Render(fmt.Sprintf("%s:%d", sev, counts[sev])))
		}
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n")

	if len(sparkline) > 0 {
		b.WriteString("Trend: ")
		b.WriteString(aggregator.Sparkline(sparkline))
		b.WriteString(fmt.Sprintf(" [%d→%d]", sparkline[0], sparkline[len(sparkline)-1]))
	}

	return styleHeader.Width(width).Render(b.String())
}

package aggregator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

// TrendAnalyzer analyzes trends across multiple stored reports
type TrendAnalyzer struct{}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{}
}

// AnalyzeRuns summarizes reports ordered oldest first.
func (t *TrendAnalyzer) AnalyzeRuns(reports []*models.Report) *models.TrendSummary {
	if len(reports) == 0 {
		return nil
	}

	summary := &models.TrendSummary{
		RunsAnalyzed: len(reports),
		Sparkline:    make([]int, len(reports)),
		Grades:       make([]models.Grade, len(reports)),
		ByScanner:    make(map[string]*models.ScannerTrend),
	}

	if len(reports) > 1 {
		earliest := reports[0].Timestamp
		latest := reports[len(reports)-1].Timestamp
		days := int(latest.Sub(earliest).Hours() / 24)
		summary.TimeRange = fmt.Sprintf("Last %d days", days)
	} else {
		summary.TimeRange = "Single run"
	}

	for i, r := range reports {
		summary.Sparkline[i] = r.Summary.Total
		summary.Grades[i] = r.Summary.Grade
	}

	if len(reports) >= 2 {
		t.calculateScannerTrends(reports[0], reports[len(reports)-1], summary)
	}
	return summary
}

func (t *TrendAnalyzer) calculateScannerTrends(earliest, latest *models.Report, summary *models.TrendSummary) {
	all := make(map[string]bool)
	for name := range earliest.Summary.ByScanner {
		all[name] = true
	}
	for name := range latest.Summary.ByScanner {
		all[name] = true
	}

	for name := range all {
		prev := earliest.Summary.ByScanner[name]
		curr := latest.Summary.ByScanner[name]
		change := curr - prev

		pct := 0.0
		if prev > 0 {
			pct = float64(change) / float64(prev) * 100.0
		} else if curr > 0 {
			pct = 100.0
		}

		summary.ByScanner[name] = &models.ScannerTrend{
			Name:             name,
			CurrentFindings:  curr,
			PreviousFindings: prev,
			Change:           change,
			ChangePercent:    pct,
		}
	}
}

// ComparisonText renders a short plain-text comparison of two reports.
func (t *TrendAnalyzer) ComparisonText(current, previous *models.Report) string {
	if previous == nil {
		return "No previous run to compare with"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Comparison: %s vs %s\n\n", formatDate(current.Timestamp), formatDate(previous.Timestamp))
	fmt.Fprintf(&b, "Overall: %d → %d findings, grade %s → %s\n",
		previous.Summary.Total, current.Summary.Total,
		previous.Summary.Grade, current.Summary.Grade)

	names := make([]string, 0, len(current.Summary.ByScanner))
	for name := range current.Summary.ByScanner {
		names = append(names, name)
	}
	for name := range previous.Summary.ByScanner {
		if _, ok := current.Summary.ByScanner[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		prev := previous.Summary.ByScanner[name]
		curr := current.Summary.ByScanner[name]
		if prev == curr {
			continue
		}
		fmt.Fprintf(&b, "  %s: %d → %d (%+d)\n", name, prev, curr, curr-prev)
	}

	d := Diff(previous, current)
	if len(d.New) > 0 {
		fmt.Fprintf(&b, "\nNew findings: %d\n", len(d.New))
	}
	if len(d.Resolved) > 0 {
		fmt.Fprintf(&b, "\nResolved findings: %d\n", len(d.Resolved))
	}
	return b.String()
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// GetTrendIndicator returns a visual indicator for trend direction
func GetTrendIndicator(direction string) string {
	switch direction {
	case DirectionImproving:
		return "↓"
	case DirectionDegrading:
		return "↑"
	case DirectionStable:
		return "→"
	default:
		return "?"
	}
}

// Sparkline renders counts as block characters scaled to the maximum.
func Sparkline(counts []int) string {
	blocks := []rune("▁▂▃▄▅▆▇█")
	peak := 0
	for _, c := range counts {
		if c > peak {
			peak = c
		}
	}
	var b strings.Builder
	for _, c := range counts {
		i := 0
		if peak > 0 {
			i = c * (len(blocks) - 1) / peak
		}
		b.WriteRune(blocks[i])
	}
	return b.String()
}

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
	"github.com/ppiankov/wpspectre/internal/storage"
)

var (
	summarizeLastN   int
	summarizeCompare bool
	summarizeFormat  string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Show summary and trends from stored runs",
	Long: `Analyze stored runs and show how the audit results moved over time.

This command displays:
- Latest run summary and grade
- Finding sparkline and grade history across the last N runs
- Per-scanner trend comparison

Example:
  wpspectre summarize
  wpspectre summarize --last 14
  wpspectre summarize --compare
  wpspectre summarize --format json`,
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().IntVarP(&summarizeLastN, "last", "n", 0,
		"number of runs to analyze (default from config)")
	summarizeCmd.Flags().BoolVarP(&summarizeCompare, "compare", "c", false,
		"compare latest run with previous")
	summarizeCmd.Flags().StringVarP(&summarizeFormat, "format", "f", "text",
		"output format: text or json")
}

type summaryJSON struct {
	Trend  *models.TrendSummary `json:"trend"`
	Latest *models.Report       `json:"latest"`
}

func runSummarize(cmd *cobra.Command, args []string) error {
	if summarizeFormat != "text" && summarizeFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text or json)", summarizeFormat)}
	}
	lastN := summarizeLastN
	if lastN <= 0 {
		lastN = cfg.LastRuns
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	logVerbose("Loading runs from: %s", store.GetStoragePath())

	runs, err := store.ListRuns()
	if err != nil {
		logError("Failed to list runs: %v", err)
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs found.")
		fmt.Println("Run 'wpspectre scan --store' to record your first report.")
		return nil
	}
	logVerbose("Found %d stored runs", len(runs))

	if summarizeCompare {
		return runComparisonReport(os.Stdout, store)
	}
	return runTrendReport(os.Stdout, store, lastN)
}

func runComparisonReport(w io.Writer, store *storage.LocalStorage) error {
	reports, err := store.GetLastNRuns(2)
	if err != nil {
		logError("Failed to load runs: %v", err)
		return err
	}
	if len(reports) < 2 {
		fmt.Fprintln(w, "Need at least 2 runs for comparison.")
		return nil
	}

	previous, current := reports[0], reports[1]
	logVerbose("Comparing %s vs %s", current.Timestamp, previous.Timestamp)
	_, err = fmt.Fprint(w, aggregator.NewTrendAnalyzer().ComparisonText(current, previous))
	return err
}

func runTrendReport(w io.Writer, store *storage.LocalStorage, lastN int) error {
	reports, err := store.GetLastNRuns(lastN)
	if err != nil {
		logError("Failed to load runs: %v", err)
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	logVerbose("Analyzing trends across %d runs", len(reports))

	summary := aggregator.NewTrendAnalyzer().AnalyzeRuns(reports)
	if summary == nil {
		fmt.Fprintln(w, "Unable to generate trend summary.")
		return nil
	}

	if summarizeFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaryJSON{Trend: summary, Latest: reports[len(reports)-1]})
	}
	printTrendSummaryText(w, summary, reports)
	return nil
}

func printTrendSummaryText(w io.Writer, summary *models.TrendSummary, reports []*models.Report) {
	p := func(format string, args ...interface{}) {
		_, _ = fmt.Fprintf(w, format, args...)
	}

	p("╔════════════════════════════════════════════╗\n")
	p("║          wpspectre Trend Summary           ║\n")
	p("╚════════════════════════════════════════════╝\n\n")

	p("Time Range: %s\n", summary.TimeRange)
	p("Runs Analyzed: %d\n\n", summary.RunsAnalyzed)

	latest := reports[len(reports)-1]
	p("Latest Run: %s\n", latest.Timestamp.Format("2006-01-02 15:04:05"))
	p("Root: %s\n", latest.Root)
	p("Findings: %d (%d critical, %d alert, %d info)\n",
		latest.Summary.Total, latest.Summary.Critical, latest.Summary.Alert, latest.Summary.Info)
	p("Grade: %s", latest.Summary.Grade)

	if len(reports) >= 2 {
		previous := reports[len(reports)-2]
		change := latest.Summary.Total - previous.Summary.Total
		indicator := "→"
		switch {
		case change < 0:
			indicator = "↓"
		case change > 0:
			indicator = "↑"
		}
		p(" (was %s, findings %s %+d)", previous.Summary.Grade, indicator, change)
	}
	p("\n\n")

	if len(summary.Sparkline) > 0 {
		p("Finding Trend (over time):\n")
		p("  %s [%d → %d]\n", aggregator.Sparkline(summary.Sparkline),
			summary.Sparkline[0], summary.Sparkline[len(summary.Sparkline)-1])
	}
	if len(summary.Grades) > 0 {
		p("Grades: ")
		for i, g := range summary.Grades {
			if i > 0 {
				p(" → ")
			}
			p("%s", g)
		}
		p("\n")
	}

	if len(summary.ByScanner) > 0 {
		p("\nBy Scanner:\n")
		p("--------------------------------------------------\n")
		names := make([]string, 0, len(summary.ByScanner))
		for name := range summary.ByScanner {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			st := summary.ByScanner[name]
			indicator := "→"
			switch {
			case st.Change < 0:
				indicator = "↓"
			case st.Change > 0:
				indicator = "↑"
			}
			p("  %-8s %d findings (%s %+d, %.1f%%)\n", name, st.CurrentFindings, indicator, st.Change, st.ChangePercent)
		}
	}

	p("\nRun 'wpspectre scan --store' to update data\n")
}

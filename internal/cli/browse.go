package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/reporter"
	"github.com/ppiankov/wpspectre/internal/tui"
)

var browseReport string

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the findings of the latest run interactively",
	Long: `Browse opens a terminal UI over the latest stored report (or --report).

Keys:
  /      search          f      cycle scanner filter
  s      cycle sort      enter  toggle details
  c      copy subject    esc    clear filters
  q      quit

When stdout is not a terminal the text report is printed instead.`,
	RunE: runBrowse,
}

func init() {
	browseCmd.Flags().StringVar(&browseReport, "report", "",
		"browse this report file instead of the latest stored run")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	report, trend, err := loadBrowseData()
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Println("No stored runs found. Run 'wpspectre scan --store' first.")
		return nil
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		logVerbose("stdout is not a terminal, printing text report")
		return reporter.NewTextReporter(os.Stdout).Generate(report)
	}
	return tui.Run(report, trend)
}

// loadBrowseData returns the report to browse and, for stored runs, the
// trend across the last configured runs.
func loadBrowseData() (*models.Report, *models.TrendSummary, error) {
	if browseReport != "" {
		report, err := loadReportFromFile(browseReport)
		return report, nil, err
	}

	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	reports, err := store.GetLastNRuns(cfg.LastRuns)
	if err != nil || len(reports) == 0 {
		logDebug("No stored runs: %v", err)
		return nil, nil, nil
	}
	trend := aggregator.NewTrendAnalyzer().AnalyzeRuns(reports)
	return reports[len(reports)-1], trend, nil
}

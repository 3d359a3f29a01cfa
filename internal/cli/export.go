package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/reporter"
)

var (
	exportFormat string
	exportOutput string
	exportLastN  int
	exportFiles  []string
	exportMinSev string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored findings for code scanning and compliance tools",
	Long: `Export writes the findings of recent stored runs in a machine format.

Supported formats:
  csv    One row per finding, for spreadsheets and ticketing imports
  json   Full reports wrapped with export metadata
  sarif  SARIF 2.1.0 for GitHub code scanning and similar tools

Example:
  wpspectre export --format csv -o findings.csv
  wpspectre export --format sarif -o results.sarif
  wpspectre export --format json --last 30 -o history.json
  wpspectre export --format sarif --report ci-report.json
  wpspectre export --format csv --min-severity ALERTE`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv",
		"output format: csv, json, or sarif")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"write output to file (default: stdout)")
	exportCmd.Flags().IntVarP(&exportLastN, "last", "n", 1,
		"number of recent stored runs to include")
	exportCmd.Flags().StringSliceVar(&exportFiles, "report", nil,
		"export these report files instead of stored runs")
	exportCmd.Flags().StringVar(&exportMinSev, "min-severity", "",
		"drop findings below this severity (INFO, ALERTE, CRITIQUE)")
}

// ExportBundle is the json export payload.
type ExportBundle struct {
	ExportedAt   string           `json:"exported_at"`
	Version      string           `json:"wpspectre_version"`
	RunCount     int              `json:"run_count"`
	FindingCount int              `json:"finding_count"`
	Reports      []*models.Report `json:"reports"`
}

func runExport(cmd *cobra.Command, args []string) error {
	switch exportFormat {
	case "csv", "json", "sarif":
	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use csv, json, or sarif)", exportFormat)}
	}
	if exportLastN <= 0 {
		return &ValidationError{Message: "--last must be positive"}
	}
	var minSev models.Severity
	if exportMinSev != "" {
		sev, err := models.ParseSeverity(exportMinSev)
		if err != nil {
			return &ValidationError{Message: fmt.Sprintf("invalid --min-severity: %v", err)}
		}
		minSev = sev
	}

	reports, err := loadExportReports()
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No stored runs found. Run 'wpspectre scan --store' first.")
		return nil
	}
	if minSev != "" {
		for _, r := range reports {
			filterBelow(r, minSev)
		}
	}
	logVerbose("Exporting %d run(s)", len(reports))

	var w io.Writer = os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return writeExport(w, reports, exportFormat)
}

func loadExportReports() ([]*models.Report, error) {
	if len(exportFiles) > 0 {
		reports := make([]*models.Report, 0, len(exportFiles))
		for _, path := range exportFiles {
			r, err := loadReportFromFile(path)
			if err != nil {
				return nil, err
			}
			reports = append(reports, r)
		}
		return reports, nil
	}

	store, err := openStore()
	if err != nil {
		return nil, err
	}
	reports, err := store.GetLastNRuns(exportLastN)
	if err != nil {
		logDebug("No stored runs: %v", err)
		return nil, nil
	}
	return reports, nil
}

// filterBelow drops findings under min and refreshes the summary so the
// exported grade matches what remains.
func filterBelow(report *models.Report, min models.Severity) {
	kept := report.Findings[:0]
	for _, f := range report.Findings {
		if f.Severity.Rank() >= min.Rank() {
			kept = append(kept, f)
		}
	}
	report.Findings = kept
	aggregator.Recompute(report)
}

func writeExport(w io.Writer, reports []*models.Report, format string) error {
	switch format {
	case "csv":
		return reporter.WriteCSV(w, reports)
	case "sarif":
		return reporter.WriteSARIF(w, reports, version)
	default:
		bundle := ExportBundle{
			ExportedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    version,
			RunCount:   len(reports),
			Reports:    reports,
		}
		for _, r := range reports {
			bundle.FindingCount += len(r.Findings)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}
}

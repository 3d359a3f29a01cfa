package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/config"
	"github.com/ppiankov/wpspectre/internal/metrics"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/policy"
	"github.com/ppiankov/wpspectre/internal/reporter"
	"github.com/ppiankov/wpspectre/internal/runner"
	"github.com/ppiankov/wpspectre/internal/storage"
)

// bothJSONFile receives the JSON half of --format both when no --output is set.
const bothJSONFile = "wpspectre-report.json"

// PipelineConfig holds options for the post-scan pipeline.
type PipelineConfig struct {
	Root        string
	Format      string
	Output      string
	TextLimit   int // findings printed by the text reporter, 0 prints all
	Store       bool
	StorageDir  string
	KeepRuns    int
	FailOn      models.Severity // empty disables
	MetricsFile string
	Recorder    *metrics.Recorder
	PolicyPath  string // empty searches upward from the working directory
}

// RunPipeline turns finished scanner runs into a report:
// aggregate → trend → store → output → metrics → policy → fail-on.
// The report is returned even when a gate fails.
func RunPipeline(runs []*models.ScanRun, pcfg PipelineConfig) (*models.Report, error) {
	// Step 1: Aggregate
	agg := aggregator.New()
	report := agg.Aggregate(pcfg.Root, runs)
	logVerbose("Aggregated %d findings from %d scanners (grade %s)",
		report.Summary.Total, len(report.Runs), report.Summary.Grade)

	// Step 2: Trend and store
	if pcfg.Store {
		if err := storeReport(agg, report, pcfg); err != nil {
			logError("Failed to store report: %v", err)
			return report, err
		}
	}

	// Step 3: Output
	if err := generateOutput(report, pcfg); err != nil {
		logError("Failed to generate output: %v", err)
		return report, err
	}

	// Step 4: Metrics textfile
	if pcfg.MetricsFile != "" {
		if err := pcfg.Recorder.WriteTextfile(pcfg.MetricsFile); err != nil {
			logError("Failed to write metrics: %v", err)
			return report, err
		}
		logVerbose("Wrote metrics to %s", pcfg.MetricsFile)
	}

	if runner.AllFailed(runs) {
		return report, fmt.Errorf("all %d scanners failed", len(runs))
	}

	// Step 5: Policy enforcement (if .wpspectre-policy.yaml exists)
	if err := applyPolicy(report, pcfg.PolicyPath); err != nil {
		return report, err
	}

	// Step 6: Severity gate
	if pcfg.FailOn != "" {
		if n := countAtOrAbove(report.Findings, pcfg.FailOn); n > 0 {
			logError("%d finding(s) at or above %s", n, pcfg.FailOn)
			return report, &ThresholdExceededError{
				Count:  n,
				Reason: fmt.Sprintf("findings at or above %s", pcfg.FailOn),
			}
		}
	}
	return report, nil
}

func storeReport(agg *aggregator.Aggregator, report *models.Report, pcfg PipelineConfig) error {
	storagePath, err := config.ExpandPath(pcfg.StorageDir)
	if err != nil {
		return err
	}
	store := storage.NewLocal(storagePath)

	if previous, err := store.GetLatestRun(); err == nil {
		logVerbose("Found previous run from %s", previous.Timestamp)
		agg.AddTrend(report, previous)
	} else {
		logDebug("No previous run found: %v", err)
	}

	path, err := store.SaveReport(report)
	if err != nil {
		return err
	}
	logVerbose("Stored report in: %s", path)

	if removed, err := store.Prune(pcfg.KeepRuns); err != nil {
		return err
	} else if removed > 0 {
		logVerbose("Pruned %d old report(s)", removed)
	}
	return nil
}

func applyPolicy(report *models.Report, path string) error {
	if path == "" {
		path = policy.FindPolicyFile()
	}
	if path == "" {
		return nil
	}
	logVerbose("Found policy file: %s", path)

	pol, err := policy.LoadFromFile(path)
	if err != nil {
		logError("Failed to load policy: %v", err)
		return &ValidationError{Message: fmt.Sprintf("invalid policy %s: %v", path, err)}
	}
	if pol == nil {
		return nil
	}

	result := pol.Evaluate(report)
	if !result.Pass {
		for _, v := range result.Violations {
			logError("Policy violation [%s]: %s", v.Rule, v.Message)
			fmt.Fprintf(os.Stderr, "Policy violation [%s]: %s\n", v.Rule, v.Message)
		}
		return &ThresholdExceededError{
			Count:  len(result.Violations),
			Reason: "policy violations",
		}
	}
	logVerbose("Policy check passed")
	return nil
}

func countAtOrAbove(findings []models.Finding, min models.Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity.Rank() >= min.Rank() {
			n++
		}
	}
	return n
}

// generateOutput generates the output in the specified format(s).
func generateOutput(report *models.Report, pcfg PipelineConfig) error {
	var writer io.Writer = os.Stdout
	if pcfg.Output != "" {
		f, err := os.Create(pcfg.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		writer = f
	}
	return writeReport(writer, report, pcfg.Format, pcfg.Output == "", pcfg.TextLimit)
}

func writeReport(writer io.Writer, report *models.Report, format string, toStdout bool, textLimit int) error {
	text := reporter.NewTextReporter(writer)
	text.Limit = textLimit

	switch format {
	case "text":
		return text.Generate(report)

	case "json":
		return reporter.NewJSONReporter(writer, true).Generate(report)

	case "markdown":
		md, err := reporter.NewMarkdownReporter(writer)
		if err != nil {
			return err
		}
		return md.Generate(report)

	case "both":
		if err := text.Generate(report); err != nil {
			return err
		}
		if toStdout {
			jsonFile, err := os.Create(bothJSONFile)
			if err != nil {
				return fmt.Errorf("failed to create JSON file: %w", err)
			}
			defer func() { _ = jsonFile.Close() }()
			return reporter.NewJSONReporter(jsonFile, true).Generate(report)
		}
		if _, err := fmt.Fprintf(writer, "\n=== JSON Output ===\n\n"); err != nil {
			return err
		}
		return reporter.NewJSONReporter(writer, true).Generate(report)

	default:
		return &ValidationError{Message: fmt.Sprintf("unsupported format: %s (use text, json, markdown, or both)", format)}
	}
}

// openStore resolves the configured storage directory.
func openStore() (*storage.LocalStorage, error) {
	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		logError("Failed to get storage path: %v", err)
		return nil, err
	}
	return storage.NewLocal(storagePath), nil
}

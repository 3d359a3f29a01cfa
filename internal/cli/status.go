package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/policy"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and stored history",
	Long: `Status displays the effective wpspectre configuration, the stored
run history, and the policy file in effect.

Example:
  wpspectre status
  wpspectre status --format json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text",
		"output format: text or json")
}

type statusResult struct {
	ConfigFile string        `json:"config_file,omitempty"`
	Config     statusConfig  `json:"config"`
	History    statusHistory `json:"history"`
	PolicyFile string        `json:"policy_file,omitempty"`
}

type statusConfig struct {
	Root        string   `json:"root"`
	StorageDir  string   `json:"storage_dir"`
	Format      string   `json:"format"`
	Scanners    []string `json:"scanners"`
	MaxFindings int      `json:"max_findings"`
	FailOn      string   `json:"fail_on,omitempty"`
	HasDSN      bool     `json:"has_db_dsn"`
	Tracing     bool     `json:"tracing"`
}

type statusHistory struct {
	Runs         int          `json:"runs"`
	LatestRun    string       `json:"latest_run,omitempty"`
	LatestGrade  models.Grade `json:"latest_grade,omitempty"`
	LatestTotal  int          `json:"latest_findings"`
	FailedLatest []string     `json:"failed_scanners,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFormat != "text" && statusFormat != "json" {
		return &ValidationError{Message: fmt.Sprintf("invalid format: %s (must be text or json)", statusFormat)}
	}

	result, err := collectStatus()
	if err != nil {
		return err
	}
	if statusFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	writeStatusText(os.Stdout, result)
	return nil
}

func collectStatus() (statusResult, error) {
	storagePath, err := cfg.GetStoragePath()
	if err != nil {
		return statusResult{}, err
	}
	result := statusResult{
		ConfigFile: configFile,
		Config: statusConfig{
			Root:        cfg.Root,
			StorageDir:  storagePath,
			Format:      cfg.Format,
			Scanners:    cfg.Scanners,
			MaxFindings: cfg.MaxFindings,
			FailOn:      cfg.FailOn,
			HasDSN:      cfg.DB.DSN != "",
			Tracing:     cfg.OTLPEndpoint != "",
		},
		PolicyFile: policy.FindPolicyFile(),
	}

	store, err := openStore()
	if err != nil {
		return result, err
	}
	runs, err := store.ListRuns()
	if err != nil {
		return result, err
	}
	result.History.Runs = len(runs)
	if latest, err := store.GetLatestRun(); err == nil {
		result.History.LatestRun = latest.Timestamp.Format("2006-01-02 15:04:05")
		result.History.LatestGrade = latest.Summary.Grade
		result.History.LatestTotal = latest.Summary.Total
		result.History.FailedLatest = latest.Summary.FailedScanners
	}
	return result, nil
}

func writeStatusText(w io.Writer, r statusResult) {
	if r.ConfigFile != "" {
		fmt.Fprintf(w, "Config:   %s\n", r.ConfigFile)
	} else {
		fmt.Fprintf(w, "Config:   defaults and search path\n")
	}
	fmt.Fprintf(w, "Root:     %s\n", r.Config.Root)
	fmt.Fprintf(w, "Scanners: %s\n", strings.Join(r.Config.Scanners, ", "))
	fmt.Fprintf(w, "Format:   %s (max %d findings per scanner)\n", r.Config.Format, r.Config.MaxFindings)
	if r.Config.FailOn != "" {
		fmt.Fprintf(w, "Fail on:  %s\n", r.Config.FailOn)
	}
	if r.Config.HasDSN {
		fmt.Fprintf(w, "Database: DSN configured\n")
	} else {
		fmt.Fprintf(w, "Database: from wp-config.php\n")
	}
	if r.PolicyFile != "" {
		fmt.Fprintf(w, "Policy:   %s\n", r.PolicyFile)
	} else {
		fmt.Fprintf(w, "Policy:   none\n")
	}

	fmt.Fprintf(w, "Storage:  %s\n", r.Config.StorageDir)
	if r.History.Runs == 0 {
		fmt.Fprintf(w, "History:  no stored runs\n")
		return
	}
	fmt.Fprintf(w, "History:  %d run(s), latest %s, grade %s, %d finding(s)\n",
		r.History.Runs, r.History.LatestRun, r.History.LatestGrade, r.History.LatestTotal)
	if len(r.History.FailedLatest) > 0 {
		fmt.Fprintf(w, "Failed:   %s\n", strings.Join(r.History.FailedLatest, ", "))
	}
}

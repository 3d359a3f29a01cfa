package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wpspectre/internal/validator"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a stored or exported wpspectre report",
	Long: `Validate checks that a JSON report file is a consistent wpspectre
report: runs, findings, severities and summary counts must agree.

Returns exit 0 if valid, exit 2 if invalid with details on stderr.

Example:
  wpspectre validate .wpspectre/runs/2026-02-01T10-00-00-report.json
  wpspectre scan --format json | wpspectre validate /dev/stdin`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	report, err := loadReportFromFile(args[0])
	if err != nil {
		if verr, ok := err.(*ValidationError); ok {
			return &ValidationError{Message: "INVALID: " + verr.Message}
		}
		return err
	}
	if err := validator.ValidateTimestamp(report.Timestamp); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
	}
	fmt.Printf("VALID: %d run(s), %d finding(s), grade %s\n",
		len(report.Runs), len(report.Findings), report.Summary.Grade)
	return nil
}

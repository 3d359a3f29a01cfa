package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

// ValidationError represents a validation failure
type ValidationError struct {
	Source string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid %s:\n  - %s", e.Source, strings.Join(e.Errors, "\n  - "))
}

// Validator validates stored wpspectre reports
type Validator struct{}

// New creates a new validator
func New() *Validator {
	return &Validator{}
}

// ParseReport decodes and validates report JSON.
func (v *Validator) ParseReport(source string, data []byte) (*models.Report, error) {
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, &ValidationError{
			Source: source,
			Errors: []string{fmt.Sprintf("Failed to parse JSON: %v", err)},
		}
	}
	if err := v.ValidateReport(source, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ValidateReport checks the structural consistency of a report.
func (v *Validator) ValidateReport(source string, report *models.Report) error {
	var errs []string

	if report.Timestamp.IsZero() {
		errs = append(errs, "Missing or invalid field: 'timestamp'")
	}
	if report.Root == "" {
		errs = append(errs, "Missing required field: 'root'")
	}

	statuses := map[string]bool{models.RunStatusOK: true, models.RunStatusError: true}
	for i, run := range report.Runs {
		switch {
		case run.Scanner == "":
			errs = append(errs, fmt.Sprintf("Run %d is missing 'scanner'", i))
		case !statuses[run.Status]:
			errs = append(errs, fmt.Sprintf("Run '%s' has invalid status: '%s'", run.Scanner, run.Status))
		case run.Status == models.RunStatusError && run.Error == "":
			errs = append(errs, fmt.Sprintf("Run '%s' failed without an error message", run.Scanner))
		case run.Status == models.RunStatusError && run.Findings > 0:
			errs = append(errs, fmt.Sprintf("Run '%s' failed but reports %d findings", run.Scanner, run.Findings))
		}
		if run.Scanned < 0 {
			errs = append(errs, fmt.Sprintf("Run '%s' has negative 'scanned'", run.Scanner))
		}
		if !run.FinishedAt.IsZero() && run.FinishedAt.Before(run.StartedAt) {
			errs = append(errs, fmt.Sprintf("Run '%s' finished before it started", run.Scanner))
		}
	}

	var critical, alert, info int
	for i, f := range report.Findings {
		if !f.Severity.Valid() {
			errs = append(errs, fmt.Sprintf("Finding %d has invalid severity: '%s'", i, f.Severity))
		}
		if f.Type == "" || f.Scanner == "" {
			errs = append(errs, fmt.Sprintf("Finding %d is missing 'type' or 'scanner'", i))
		}
		switch f.Severity {
		case models.SeverityCritical:
			critical++
		case models.SeverityAlert:
			alert++
		case models.SeverityInfo:
			info++
		}
	}

	s := report.Summary
	if s.Total != len(report.Findings) {
		errs = append(errs, fmt.Sprintf("Field 'summary.total' is %d but the report holds %d findings", s.Total, len(report.Findings)))
	}
	if s.Critical != critical || s.Alert != alert || s.Info != info {
		errs = append(errs, "Severity counts in 'summary' do not match findings")
	}
	if s.Grade != "" && s.Grade != models.CalculateGrade(s.Critical, s.Alert) {
		errs = append(errs, fmt.Sprintf("Field 'summary.grade' is %s but counts give %s", s.Grade, models.CalculateGrade(s.Critical, s.Alert)))
	}

	if len(errs) > 0 {
		return &ValidationError{Source: source, Errors: errs}
	}
	return nil
}

// ValidateTimestamp checks if a timestamp is reasonable (not in future, not too old)
func ValidateTimestamp(t time.Time) error {
	now := time.Now()

	if t.After(now.Add(1 * time.Hour)) {
		return fmt.Errorf("timestamp is in the future: %v", t)
	}

	oneYearAgo := now.AddDate(-1, 0, 0)
	if t.Before(oneYearAgo) {
		return fmt.Errorf("timestamp is too old (> 1 year): %v", t)
	}

	return nil
}

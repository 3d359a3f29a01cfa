package validator

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/models"
)

func validReport() *models.Report {
	ts := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	return &models.Report{
		Timestamp: ts,
		Root:      "/srv/www",
		Runs: []models.RunSummary{
			{Scanner: "files", Status: models.RunStatusOK, StartedAt: ts, FinishedAt: ts.Add(time.Second), Scanned: 3, Findings: 2},
			{Scanner: "db", Status: models.RunStatusError, Error: "no database"},
		},
		Findings: []models.Finding{
			{Scanner: "files", Severity: models.SeverityCritical, Type: "exec_taint", Subject: "a.php"},
			{Scanner: "files", Severity: models.SeverityInfo, Type: "unreadable", Subject: "b.php"},
		},
		Summary: models.Summary{Total: 2, Critical: 1, Info: 1, Grade: models.GradeC},
	}
}

func TestValidateReportValid(t *testing.T) {
	assert.NoError(t, New().ValidateReport("report", validReport()))
}

func TestValidateReportErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.Report)
		want   string
	}{
		{"no timestamp", func(r *models.Report) { r.Timestamp = time.Time{} }, "'timestamp'"},
		{"no root", func(r *models.Report) { r.Root = "" }, "'root'"},
		{"bad status", func(r *models.Report) { r.Runs[0].Status = "done" }, "invalid status"},
		{"silent failure", func(r *models.Report) { r.Runs[1].Error = "" }, "without an error message"},
		{"failed with findings", func(r *models.Report) { r.Runs[1].Findings = 1 }, "failed but reports"},
		{"time travel", func(r *models.Report) { r.Runs[0].FinishedAt = r.Runs[0].StartedAt.Add(-time.Second) }, "finished before"},
		{"bad severity", func(r *models.Report) { r.Findings[1].Severity = "HIGH" }, "invalid severity"},
		{"missing type", func(r *models.Report) { r.Findings[0].Type = "" }, "missing 'type'"},
		{"total mismatch", func(r *models.Report) { r.Summary.Total = 5 }, "summary.total"},
		{"count mismatch", func(r *models.Report) { r.Summary.Critical = 0; r.Summary.Grade = models.GradeAPlus }, "Severity counts"},
		{"grade mismatch", func(r *models.Report) { r.Summary.Grade = models.GradeA }, "summary.grade"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReport()
			tt.mutate(r)
			err := New().ValidateReport("report.json", r)
			require.Error(t, err)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "report.json", verr.Source)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseReport(t *testing.T) {
	data, err := json.Marshal(validReport())
	require.NoError(t, err)

	r, err := New().ParseReport("report.json", data)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Summary.Total)

	_, err = New().ParseReport("broken.json", []byte("{"))
	assert.ErrorContains(t, err, "Failed to parse JSON")
}

func TestValidateTimestamp(t *testing.T) {
	assert.NoError(t, ValidateTimestamp(time.Now()))
	assert.Error(t, ValidateTimestamp(time.Now().Add(2*time.Hour)))
	assert.Error(t, ValidateTimestamp(time.Now().AddDate(-2, 0, 0)))
}

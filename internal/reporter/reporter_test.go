package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/models"
)

func sampleReport() *models.Report {
	ts := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	return &models.Report{
		Timestamp: ts,
		Root:      "/srv/www",
		Runs: []models.RunSummary{
			{Scanner: "files", Status: models.RunStatusOK, StartedAt: ts, FinishedAt: ts.Add(1500 * time.Millisecond), Scanned: 12, Findings: 2},
			{Scanner: "uploads", Status: models.RunStatusOK, Scanned: 3, Findings: 1, Truncated: true},
			{Scanner: "db", Status: models.RunStatusError, Error: "misconfigured scan: no database source configured"},
		},
		Findings: []models.Finding{
			{Scanner: "files", Severity: models.SeverityCritical, Type: "exec_taint", Subject: "wp-content/a.php", Detail: "system() fed by $_GET", Fingerprint: "fp1"},
			{Scanner: "uploads", Severity: models.SeverityAlert, Type: "double_extension", Subject: "wp-content/uploads/x.php.jpg", Size: models.SizePtr(1536), Fingerprint: "fp2"},
			{Scanner: "files", Severity: models.SeverityInfo, Type: "unreadable", Subject: "wp-content/b|c.php", Fingerprint: "fp3"},
		},
		Summary: models.Summary{
			Total: 3, Critical: 1, Alert: 1, Info: 1, Scanned: 15,
			ByScanner:      map[string]int{"files": 2, "uploads": 1},
			ByType:         map[string]int{"exec_taint": 1, "double_extension": 1, "unreadable": 1},
			FailedScanners: []string{"db"},
			Truncated:      true,
			Grade:          models.GradeC,
		},
	}
}

func TestTextReporterGenerate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextReporter(&buf).Generate(sampleReport()))
	out := buf.String()

	for _, frag := range []string{
		"wpspectre WordPress Audit",
		"Root:      /srv/www",
		"Findings: 3 (1 critical, 1 alert, 1 info)",
		"Items scanned: 15",
		"Grade: C",
		"findings cap reached",
		"Files    OK",
		"(truncated)",
		"Scanner failures:",
		"db: misconfigured scan",
		"✖ CRITIQUE [files] exec_taint  wp-content/a.php",
		"system() fed by $_GET",
		"[1.5 KB]",
	} {
		assert.Contains(t, out, frag)
	}
	assert.NotContains(t, out, "Trend Analysis")
	assert.NotContains(t, out, "\x1b[", "no ANSI codes when not writing to a terminal")
}

func TestTextReporterTrendAndLimit(t *testing.T) {
	report := sampleReport()
	report.Trend = &models.Trend{
		Direction:        "improving",
		PreviousFindings: 5,
		CurrentFindings:  3,
		PreviousGrade:    models.GradeD,
		ComparedWith:     time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC),
		ResolvedFindings: 2,
	}

	var buf bytes.Buffer
	r := NewTextReporter(&buf)
	r.Limit = 1
	require.NoError(t, r.Generate(report))
	out := buf.String()

	assert.Contains(t, out, "↓ since D")
	assert.Contains(t, out, "Change: 5 → 3 findings")
	assert.Contains(t, out, "Resolved: 2")
	assert.Contains(t, out, "Compared With: 2026-02-14 10:00:00")
	assert.Contains(t, out, "... 2 more")
	assert.NotContains(t, out, "double_extension")
}

func TestTextReporterEmpty(t *testing.T) {
	var buf bytes.Buffer
	report := &models.Report{Root: "/srv", Summary: models.Summary{Grade: models.GradeAPlus}}
	require.NoError(t, NewTextReporter(&buf).Generate(report))
	assert.Contains(t, buf.String(), "No findings.")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONReporter(&buf, false).Generate(sampleReport()))
	assert.True(t, strings.HasSuffix(buf.String(), "}\n"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	var decoded models.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Findings, 3)
	assert.Equal(t, models.SeverityCritical, decoded.Findings[0].Severity)

	buf.Reset()
	require.NoError(t, NewJSONReporter(&buf, true).Generate(sampleReport()))
	assert.Contains(t, buf.String(), "\n  ")
	assert.Contains(t, buf.String(), "\"grade\": \"C\"")
}

func TestMarkdownReporter(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewMarkdownReporter(&buf)
	require.NoError(t, err)
	require.NoError(t, r.Generate(sampleReport()))
	out := buf.String()

	for _, frag := range []string{
		"# wpspectre audit: /srv/www",
		"| **C** | 3 | 1 | 1 | 1 | 15 |",
		"Findings cap reached",
		"| Files | OK | 12 | 2 |  |",
		"| Uploads | OK | 3 | 1 | truncated |",
		"| Db | ERROR | 0 | 0 | misconfigured scan: no database source configured |",
		"## ✖ CRITIQUE (1)",
		"## ▲ ALERTE (1)",
		"(1.5 KB)",
		`wp-content/b\|c.php`,
		"`exec_taint`",
	} {
		assert.Contains(t, out, frag)
	}
	assert.NotContains(t, out, "No findings.")
}

func TestMarkdownReporterEmpty(t *testing.T) {
	var buf bytes.Buffer
	r, err := NewMarkdownReporter(&buf)
	require.NoError(t, err)
	require.NoError(t, r.Generate(&models.Report{Root: "/srv", Summary: models.Summary{Grade: models.GradeAPlus}}))
	assert.Contains(t, buf.String(), "No findings.")
	assert.NotContains(t, buf.String(), "## ✖")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []*models.Report{sampleReport()}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "2026-02-15T10:00:00Z", rows[1][0])
	assert.Equal(t, "CRITIQUE", rows[1][2])
	assert.Equal(t, "1536", rows[2][6])
	assert.Equal(t, "C", rows[3][9])
}

func TestWriteSARIF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSARIF(&buf, []*models.Report{sampleReport()}, "1.2.3"))

	var log sarifLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &log))
	assert.Equal(t, "2.1.0", log.Version)
	require.Len(t, log.Runs, 1)
	run := log.Runs[0]
	assert.Equal(t, "wpspectre", run.Tool.Driver.Name)
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)
	require.Len(t, run.Tool.Driver.Rules, 3)
	assert.Equal(t, "files/exec_taint", run.Tool.Driver.Rules[0].ID)

	require.Len(t, run.Results, 3)
	assert.Equal(t, "error", run.Results[0].Level)
	assert.Equal(t, "warning", run.Results[1].Level)
	assert.Equal(t, "note", run.Results[2].Level)
	assert.Equal(t, "fp1", run.Results[0].PartialFingerprints["wpspectre/v1"])
	assert.Equal(t, "wp-content/a.php", run.Results[0].Locations[0].PhysicalLocation.ArtifactLocation.URI)
}

func TestSARIFRuleDescriptions(t *testing.T) {
	report := sampleReport()
	report.Findings = []models.Finding{
		{Scanner: "files", Severity: models.SeverityCritical, Type: "user_input_to_eval", Subject: "wp-content/x.php"},
		{Scanner: "files", Severity: models.SeverityInfo, Type: "eval", Subject: "wp-content/x.php"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSARIF(&buf, []*models.Report{report}, "1.2.3"))

	var log sarifLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &log))
	desc := map[string]string{}
	for _, r := range log.Runs[0].Tool.Driver.Rules {
		desc[r.ID] = r.ShortDescription.Text
	}
	assert.Contains(t, desc["files/user_input_to_eval"], "user_input_to_exec")
	assert.Equal(t, "files eval", desc["files/eval"])
}

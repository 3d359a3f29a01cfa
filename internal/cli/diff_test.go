package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

func diffPair() (*models.Report, *models.Report) {
	now := time.Now()
	baseline := reportAt(now.Add(-24*time.Hour),
		okRun("files",
			finding("files", models.SeverityAlert, "obfuscation", "wp-content/plugins/a/a.php"),
			finding("files", models.SeverityInfo, "unreadable", "wp-content/plugins/b/b.php")),
	)
	current := reportAt(now,
		okRun("files",
			finding("files", models.SeverityCritical, "obfuscation", "wp-content/plugins/a/a.php"),
			finding("files", models.SeverityCritical, "exec_taint", "wp-content/themes/t/404.php")),
		okRun("uploads",
			finding("uploads", models.SeverityAlert, "double_extension", "wp-content/uploads/x.jpg.php")),
	)
	return baseline, current
}

func TestBuildDiffReport(t *testing.T) {
	baseline, current := diffPair()
	r := buildDiffReport(baseline, current)

	s := r.Summary
	if s.NewCount != 2 || s.ResolvedCount != 1 || s.ChangedCount != 1 {
		t.Errorf("counts new=%d resolved=%d changed=%d, want 2/1/1", s.NewCount, s.ResolvedCount, s.ChangedCount)
	}
	if s.BaselineTotal != 2 || s.CurrentTotal != 3 || s.Delta != 1 {
		t.Errorf("totals = %d → %d (%d)", s.BaselineTotal, s.CurrentTotal, s.Delta)
	}
	if s.BaselineGrade != models.GradeA || s.CurrentGrade != models.GradeC {
		t.Errorf("grades = %s → %s", s.BaselineGrade, s.CurrentGrade)
	}
	if s.NewBySeverity["CRITIQUE"] != 1 || s.NewBySeverity["ALERTE"] != 1 {
		t.Errorf("new by severity = %v", s.NewBySeverity)
	}
	if s.NewByScanner["files"] != 1 || s.NewByScanner["uploads"] != 1 {
		t.Errorf("new by scanner = %v", s.NewByScanner)
	}
	if r.Changed[0].Previous != models.SeverityAlert || r.Changed[0].Finding.Severity != models.SeverityCritical {
		t.Errorf("changed = %+v", r.Changed[0])
	}
}

func TestPrintDiffText(t *testing.T) {
	baseline, current := diffPair()
	var buf bytes.Buffer
	printDiffText(&buf, buildDiffReport(baseline, current))
	out := buf.String()

	for _, want := range []string{
		"Drift Delta",
		"Findings: 2 → 3 (+1)",
		"New: 2   Resolved: 1   Changed: 1",
		"New Findings:",
		"exec_taint: wp-content/themes/t/404.php",
		"Severity Changes:",
		"ALERTE → CRITIQUE [files] obfuscation",
		"Resolved Findings:",
		"✓ [files] unreadable",
		"New by Severity:",
		"New by Scanner:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diff text missing %q\n%s", want, out)
		}
	}
	if strings.Index(out, "CRITIQUE: 1") > strings.Index(out, "ALERTE: 1") {
		t.Error("new by severity should list CRITIQUE before ALERTE")
	}
}

func TestPrintDiffTextNoDrift(t *testing.T) {
	_, current := diffPair()
	var buf bytes.Buffer
	printDiffText(&buf, buildDiffReport(current, current))
	if !strings.Contains(buf.String(), "No drift detected.") {
		t.Errorf("expected no-drift message, got:\n%s", buf.String())
	}
}

func TestPrintDiffTextOnlyImprovements(t *testing.T) {
	baseline, current := diffPair()
	var buf bytes.Buffer
	printDiffText(&buf, buildDiffReport(current, baseline))
	out := buf.String()
	if !strings.Contains(out, "Findings: 3 → 2 (-1)") {
		t.Errorf("missing negative delta:\n%s", out)
	}
}

func TestLoadReportFromFile(t *testing.T) {
	_, current := diffPair()
	path := writeReportFile(t, current)

	r, err := loadReportFromFile(path)
	if err != nil {
		t.Fatalf("loadReportFromFile: %v", err)
	}
	if len(r.Findings) != 3 {
		t.Errorf("findings = %d, want 3", len(r.Findings))
	}
}

func TestLoadReportFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"root":"/srv/www","summary":{"total":5}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := loadReportFromFile(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	_, err = loadReportFromFile(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || errors.As(err, &verr) {
		t.Errorf("missing file should be a runtime error, got %v", err)
	}
}

func TestLoadDiffPairFromStore(t *testing.T) {
	c := testConfig(t)

	baseline, current, err := loadDiffPair(nil)
	if err != nil || baseline != nil || current != nil {
		t.Fatalf("empty store: %v %v %v", baseline, current, err)
	}

	b, cur := diffPair()
	saveReports(t, c.StorageDir, b, cur)
	baseline, current, err = loadDiffPair(nil)
	if err != nil {
		t.Fatalf("loadDiffPair: %v", err)
	}
	if len(baseline.Findings) != 2 || len(current.Findings) != 3 {
		t.Errorf("pair = %d, %d findings", len(baseline.Findings), len(current.Findings))
	}
}

func TestLoadDiffPairBaselineFile(t *testing.T) {
	c := testConfig(t)
	b, cur := diffPair()
	saveReports(t, c.StorageDir, cur)

	baseline, current, err := loadDiffPair([]string{writeReportFile(t, b)})
	if err != nil {
		t.Fatalf("loadDiffPair: %v", err)
	}
	if len(baseline.Findings) != 2 || len(current.Findings) != 3 {
		t.Errorf("pair = %d, %d findings", len(baseline.Findings), len(current.Findings))
	}
}

func TestLoadDiffPairTwoFiles(t *testing.T) {
	testConfig(t)
	b, cur := diffPair()
	baseline, current, err := loadDiffPair([]string{writeReportFile(t, b), writeReportFile(t, cur)})
	if err != nil {
		t.Fatalf("loadDiffPair: %v", err)
	}
	if baseline.Summary.Grade != models.GradeA || current.Summary.Grade != models.GradeC {
		t.Errorf("grades = %s, %s", baseline.Summary.Grade, current.Summary.Grade)
	}
}

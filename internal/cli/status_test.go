package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

func TestCollectStatusEmpty(t *testing.T) {
	c := testConfig(t)
	c.DB.DSN = "ro:secret@tcp(db:3306)/wordpress"

	r, err := collectStatus()
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	if r.History.Runs != 0 || r.History.LatestRun != "" {
		t.Errorf("history = %+v, want empty", r.History)
	}
	if r.Config.StorageDir != c.StorageDir {
		t.Errorf("storage = %q, want %q", r.Config.StorageDir, c.StorageDir)
	}
	if !r.Config.HasDSN || r.Config.Tracing {
		t.Errorf("config = %+v", r.Config)
	}

	var buf bytes.Buffer
	writeStatusText(&buf, r)
	out := buf.String()
	if !strings.Contains(out, "History:  no stored runs") {
		t.Errorf("status text:\n%s", out)
	}
	if strings.Contains(out, "secret") {
		t.Error("status must not print the DSN")
	}
}

func TestCollectStatusWithHistory(t *testing.T) {
	c := testConfig(t)
	c.FailOn = "ALERTE"
	now := time.Now()
	saveReports(t, c.StorageDir,
		reportAt(now.Add(-time.Hour), okRun("config")),
		reportAt(now,
			okRun("files", finding("files", models.SeverityCritical, "exec_taint", "shell.php")),
			failedRun("db", "database unavailable")),
	)

	r, err := collectStatus()
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	h := r.History
	if h.Runs != 2 || h.LatestGrade != models.GradeC || h.LatestTotal != 1 {
		t.Errorf("history = %+v", h)
	}
	if len(h.FailedLatest) != 1 || h.FailedLatest[0] != "db" {
		t.Errorf("failed = %v", h.FailedLatest)
	}

	var buf bytes.Buffer
	writeStatusText(&buf, r)
	out := buf.String()
	for _, want := range []string{
		"History:  2 run(s)",
		"grade C, 1 finding(s)",
		"Failed:   db",
		"Fail on:  ALERTE",
		"Scanners: config, uploads, headers, files, db",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status text missing %q\n%s", want, out)
		}
	}
}

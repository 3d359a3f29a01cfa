package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/config"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/storage"
)

// --- Test helpers ---

// captureStdout runs fn and returns whatever it printed to os.Stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.Bytes()
	}()

	fn()

	_ = w.Close()
	os.Stdout = old
	return string(<-done)
}

// withTestConfig sets the global cfg for the duration of the test.
func withTestConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

// testConfig installs a default config whose storage lives in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.StorageDir = t.TempDir()
	withTestConfig(t, c)
	return c
}

func finding(scanner string, sev models.Severity, typ, subject string) models.Finding {
	return models.Finding{
		Scanner:  scanner,
		Severity: sev,
		Type:     typ,
		Subject:  subject,
		Detail:   typ + " in " + subject,
	}.WithFingerprint()
}

func okRun(scanner string, findings ...models.Finding) *models.ScanRun {
	now := time.Now().UTC()
	return &models.ScanRun{
		ID:         scanner + "-run",
		Scanner:    scanner,
		Scope:      "/srv/www",
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Scanned:    10,
		Findings:   findings,
		Status:     models.RunStatusOK,
	}
}

func failedRun(scanner, msg string) *models.ScanRun {
	run := okRun(scanner)
	run.Scanned = 0
	run.Status = models.RunStatusError
	run.Error = msg
	return run
}

// reportAt aggregates runs into a report stamped at ts.
func reportAt(ts time.Time, runs ...*models.ScanRun) *models.Report {
	r := aggregator.New().Aggregate("/srv/www", runs)
	r.Timestamp = ts.UTC()
	return r
}

func saveReports(t *testing.T, dir string, reports ...*models.Report) {
	t.Helper()
	store := storage.NewLocal(dir)
	for _, r := range reports {
		if _, err := store.SaveReport(r); err != nil {
			t.Fatalf("SaveReport: %v", err)
		}
	}
}

func writeReportFile(t *testing.T, r *models.Report) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()
	if err := writeReport(f, r, "json", false, 0); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	return path
}

// --- HandleError tests ---

func TestHandleErrorNil(t *testing.T) {
	if code := HandleError(nil); code != ExitOK {
		t.Errorf("HandleError(nil) = %d, want %d", code, ExitOK)
	}
}

func TestHandleErrorValidation(t *testing.T) {
	err := &ValidationError{Message: "bad input"}
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("HandleError(ValidationError) = %d, want %d", code, ExitInvalidInput)
	}
}

func TestHandleErrorThreshold(t *testing.T) {
	err := &ThresholdExceededError{Count: 3, Reason: "findings at or above ALERTE"}
	if code := HandleError(err); code != ExitPolicyFail {
		t.Errorf("HandleError(ThresholdExceededError) = %d, want %d", code, ExitPolicyFail)
	}
}

func TestHandleErrorWrapped(t *testing.T) {
	err := fmt.Errorf("scan: %w", &ValidationError{Message: "bad root"})
	if code := HandleError(err); code != ExitInvalidInput {
		t.Errorf("HandleError(wrapped ValidationError) = %d, want %d", code, ExitInvalidInput)
	}
	err = fmt.Errorf("gate: %w", &ThresholdExceededError{Count: 1, Reason: "policy violations"})
	if code := HandleError(err); code != ExitPolicyFail {
		t.Errorf("HandleError(wrapped ThresholdExceededError) = %d, want %d", code, ExitPolicyFail)
	}
}

func TestHandleErrorRuntime(t *testing.T) {
	for _, err := range []error{os.ErrNotExist, os.ErrPermission, errors.New("something went wrong")} {
		if code := HandleError(err); code != ExitRuntimeError {
			t.Errorf("HandleError(%v) = %d, want %d", err, code, ExitRuntimeError)
		}
	}
}

// --- Error type tests ---

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Message: "unsupported format: pdf"}
	if err.Error() != "unsupported format: pdf" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestThresholdExceededErrorMessage(t *testing.T) {
	err := &ThresholdExceededError{Count: 4, Reason: "new findings"}
	if got := err.Error(); got != "new findings (4)" {
		t.Errorf("Error() = %q, want %q", got, "new findings (4)")
	}
}

// --- Version ---

func TestSetVersion(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	SetVersion("")
	if version != old {
		t.Errorf("empty SetVersion changed version to %q", version)
	}
	SetVersion("1.2.3")
	if version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", version)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"scan", "diff", "export", "browse", "summarize", "status",
		"explain-grade", "discover", "doctor", "validate", "init", "version",
	}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestLogHelpersWithoutInit(t *testing.T) {
	// The package logger is a no-op until Init; the helpers must not panic.
	logVerbose("verbose %d", 1)
	logDebug("debug %s", "x")
	logError("error %v", errors.New("boom"))
}

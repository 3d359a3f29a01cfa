package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunValidateValid(t *testing.T) {
	_, current := diffPair()
	path := writeReportFile(t, current)

	var err error
	out := captureStdout(t, func() {
		err = runValidate(validateCmd, []string{path})
	})
	if err != nil {
		t.Fatalf("runValidate: %v", err)
	}
	if !strings.Contains(out, "VALID: 2 run(s), 3 finding(s), grade C") {
		t.Errorf("output = %q", out)
	}
}

func TestRunValidateInvalid(t *testing.T) {
	report := reportAt(time.Now(), okRun("files", finding("files", "LOW", "x", "y.php")))
	path := writeReportFile(t, report)

	err := runValidate(validateCmd, []string{path})
	if HandleError(err) != ExitInvalidInput {
		t.Fatalf("err = %v, want a validation error", err)
	}
	if !strings.HasPrefix(err.Error(), "INVALID: ") || !strings.Contains(err.Error(), "invalid severity") {
		t.Errorf("err = %q", err.Error())
	}
}

func TestRunValidateMissingFile(t *testing.T) {
	err := runValidate(validateCmd, []string{filepath.Join(t.TempDir(), "missing.json")})
	if HandleError(err) != ExitRuntimeError {
		t.Errorf("err = %v, want a runtime error", err)
	}
}

func TestRunInit(t *testing.T) {
	oldOut, oldForce := initOutput, initForce
	t.Cleanup(func() { initOutput, initForce = oldOut, oldForce })

	initOutput = filepath.Join(t.TempDir(), "wpspectre.yaml")
	initForce = false
	captureStdout(t, func() {
		if err := runInit(initCmd, nil); err != nil {
			t.Errorf("runInit: %v", err)
		}
	})
	data, err := os.ReadFile(initOutput)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if !strings.Contains(string(data), "# wpspectre configuration") {
		t.Errorf("unexpected sample:\n%s", data)
	}

	if err := runInit(initCmd, nil); HandleError(err) != ExitInvalidInput {
		t.Errorf("overwrite without --force: err = %v", err)
	}

	initForce = true
	captureStdout(t, func() {
		if err := runInit(initCmd, nil); err != nil {
			t.Errorf("runInit --force: %v", err)
		}
	})
}

func TestRunInitStdout(t *testing.T) {
	old := initOutput
	initOutput = ""
	t.Cleanup(func() { initOutput = old })

	out := captureStdout(t, func() {
		if err := runInit(initCmd, nil); err != nil {
			t.Errorf("runInit: %v", err)
		}
	})
	if !strings.Contains(out, "max_findings:") {
		t.Errorf("stdout sample missing keys:\n%s", out)
	}
}

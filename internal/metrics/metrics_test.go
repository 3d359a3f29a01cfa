package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/wpspectre/internal/models"
)

func sampleRun() *models.ScanRun {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &models.ScanRun{
		Scanner:    "files",
		Status:     models.RunStatusOK,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Scanned:    42,
		Truncated:  true,
		Findings: []models.Finding{
			{Severity: models.SeverityCritical},
			{Severity: models.SeverityInfo},
			{Severity: models.SeverityInfo},
		},
	}
}

// value returns the sample of the named family whose labels include want.
func value(t *testing.T, r *Recorder, name string, want map[string]string) float64 {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s %v not found", name, want)
	return 0
}

func TestObserveRun(t *testing.T) {
	r := New()
	r.ObserveRun(sampleRun())
	files := map[string]string{"scanner": "files"}

	assert.Equal(t, 1.0, value(t, r, "wpspectre_scanner_runs_total", map[string]string{"scanner": "files", "status": "ok"}))
	assert.Equal(t, 2.0, value(t, r, "wpspectre_findings_total", map[string]string{"scanner": "files", "severity": "INFO"}))
	assert.Equal(t, 0.0, value(t, r, "wpspectre_findings_total", map[string]string{"scanner": "files", "severity": "ALERTE"}))
	assert.Equal(t, 42.0, value(t, r, "wpspectre_scanned_items", files))
	assert.Equal(t, 1.5, value(t, r, "wpspectre_scan_duration_seconds", files))
	assert.Equal(t, 1.0, value(t, r, "wpspectre_scan_truncated", files))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.ObserveRun(sampleRun())
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveRun(sampleRun())
	path := filepath.Join(t.TempDir(), "wpspectre.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `wpspectre_findings_total{scanner="files",severity="CRITIQUE"} 1`)
	assert.Contains(t, string(data), "wpspectre_last_run_timestamp_seconds")
}

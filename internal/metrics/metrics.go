// Package metrics records scan metrics in a private Prometheus registry and
// writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/wpspectre/internal/models"
)

// Recorder collects per-scanner metrics. A nil Recorder ignores all calls.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	findingsTotal   *prometheus.CounterVec
	scannedItems    *prometheus.GaugeVec
	durationSeconds *prometheus.GaugeVec
	truncated       *prometheus.GaugeVec
	lastRun         prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpspectre_scanner_runs_total",
			Help: "Scanner runs by final status",
		}, []string{"scanner", "status"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wpspectre_findings_total",
			Help: "Findings by scanner and severity",
		}, []string{"scanner", "severity"}),
		scannedItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wpspectre_scanned_items",
			Help: "Items examined by the last run of each scanner",
		}, []string{"scanner"}),
		durationSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wpspectre_scan_duration_seconds",
			Help: "Wall time of the last run of each scanner",
		}, []string{"scanner"}),
		truncated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wpspectre_scan_truncated",
			Help: "1 when the last run of a scanner hit the findings cap",
		}, []string{"scanner"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wpspectre_last_run_timestamp_seconds",
			Help: "Unix time of the last completed scan",
		}),
	}
	r.registry.MustRegister(r.runsTotal, r.findingsTotal, r.scannedItems, r.durationSeconds, r.truncated, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveRun records one finished scanner run.
func (r *Recorder) ObserveRun(run *models.ScanRun) {
	if r == nil || run == nil {
		return
	}
	r.runsTotal.WithLabelValues(run.Scanner, run.Status).Inc()
	for _, sev := range models.Severities {
		r.findingsTotal.WithLabelValues(run.Scanner, string(sev))
	}
	for _, f := range run.Findings {
		r.findingsTotal.WithLabelValues(run.Scanner, string(f.Severity)).Inc()
	}
	r.scannedItems.WithLabelValues(run.Scanner).Set(float64(run.Scanned))
	r.durationSeconds.WithLabelValues(run.Scanner).Set(run.Duration().Seconds())
	truncated := 0.0
	if run.Truncated {
		truncated = 1
	}
	r.truncated.WithLabelValues(run.Scanner).Set(truncated)
	r.lastRun.Set(float64(run.FinishedAt.Unix()))
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ppiankov/wpspectre/internal/collector"
	"github.com/ppiankov/wpspectre/internal/logging"
	"github.com/ppiankov/wpspectre/internal/metrics"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/scanner"
	"github.com/ppiankov/wpspectre/internal/telemetry"
)

// DefaultTimeout is the per-scanner execution timeout.
const DefaultTimeout = 5 * time.Minute

// Config tunes a Runner.
type Config struct {
	// MaxFindings caps each run; zero takes collector.DefaultMax.
	MaxFindings int
	// Timeout bounds each scanner; zero takes DefaultTimeout.
	Timeout time.Duration
	// Options is snapshotted into every ScanRun.
	Options scanner.Options
	// Recorder observes finished runs when set.
	Recorder *metrics.Recorder
}

// Runner executes scanners against a target one after another.
type Runner struct {
	scanners []scanner.Scanner
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// New creates a Runner for the given scanners.
func New(scanners []scanner.Scanner, cfg Config) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{
		scanners: scanners,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run executes each scanner sequentially.
// Partial success: returns a run for every scanner even if some fail.
func (r *Runner) Run(ctx context.Context, t scanner.Target) []*models.ScanRun {
	runs := make([]*models.ScanRun, 0, len(r.scanners))
	for _, s := range r.scanners {
		run := r.runOne(ctx, s, t)
		if r.cfg.Recorder != nil {
			r.cfg.Recorder.ObserveRun(run)
		}
		runs = append(runs, run)
	}
	return runs
}

// runOne executes a single scanner inside its own span and collector.
func (r *Runner) runOne(ctx context.Context, s scanner.Scanner, t scanner.Target) *models.ScanRun {
	name := s.Name()
	run := &models.ScanRun{
		ID:      r.newID(),
		Scanner: name,
		Scope:   Scope(name, t),
		Config:  r.cfg.Options.Snapshot(name),
	}

	scanCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	scanCtx, span := telemetry.Tracer().Start(scanCtx, "scan."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("wpspectre.scanner", name),
		attribute.String("wpspectre.scope", run.Scope),
	)

	c := collector.New(name, r.cfg.MaxFindings)
	run.StartedAt = r.now().UTC()
	scanned, err := s.Scan(scanCtx, t, c)
	run.FinishedAt = r.now().UTC()
	run.Scanned = scanned

	if err == nil && scanCtx.Err() != nil {
		err = fmt.Errorf("scanner %s: %w", name, scanCtx.Err())
	}
	if err != nil {
		run.Status = models.RunStatusError
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.L().Warnw("scanner failed", "scanner", name, "error", err)
		return run
	}

	run.Status = models.RunStatusOK
	run.Findings = c.Findings()
	run.Truncated = c.Truncated()
	span.SetAttributes(
		attribute.Int("wpspectre.scanned", scanned),
		attribute.Int("wpspectre.findings", len(run.Findings)),
		attribute.Bool("wpspectre.truncated", run.Truncated),
	)
	logging.L().Infow("scanner finished",
		"scanner", name,
		"scanned", scanned,
		"findings", len(run.Findings),
		"truncated", run.Truncated,
		"duration", run.Duration(),
	)
	return run
}

// Scope names what a scanner run covers: the root path, or schema/prefix
// for the database scanner.
func Scope(name string, t scanner.Target) string {
	if name != scanner.NameDB {
		return t.Root
	}
	schema, prefix := t.Schema, t.Prefix
	if t.Layout != nil {
		if schema == "" {
			schema = t.Layout.DB.Name
		}
		if prefix == "" {
			prefix = t.Layout.DB.Prefix
		}
	}
	if prefix == "" {
		prefix = "wp_"
	}
	return schema + "/" + prefix
}

// AllFailed reports whether every run ended in error.
func AllFailed(runs []*models.ScanRun) bool {
	if len(runs) == 0 {
		return false
	}
	for _, run := range runs {
		if !run.Failed() {
			return false
		}
	}
	return true
}

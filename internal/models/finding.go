package models

import (
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
)

// Finding is one detected issue. It is the flat record every reporter consumes.
type Finding struct {
	Scanner     string            `json:"scanner"`
	Severity    Severity          `json:"severity"`
	Type        string            `json:"type"`
	Subject     string            `json:"subject"`
	Detail      string            `json:"detail"`
	Size        *int64            `json:"size,omitempty"`
	ModifiedAt  *time.Time        `json:"modified_at,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// ComputeFingerprint returns a stable identifier for the finding that does
// not depend on severity or detail text, so a finding keeps its identity
// across runs while its context changes.
func (f Finding) ComputeFingerprint() string {
	key := f.Scanner + "\x00" + f.Type + "\x00" + f.Subject
	if k, ok := f.Extra["key"]; ok {
		key += "\x00" + k
	}
	h1, h2 := murmur3.Sum128([]byte(key))
	return fmt.Sprintf("%016x%016x", h1, h2)
}

// WithFingerprint returns f with Fingerprint filled in.
func (f Finding) WithFingerprint() Finding {
	f.Fingerprint = f.ComputeFingerprint()
	return f
}

// SizePtr is a helper for optional size metadata.
func SizePtr(n int64) *int64 { return &n }

// TimePtr is a helper for optional timestamp metadata. The zero time maps to nil.
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// Run status values
const (
	RunStatusOK    = "ok"
	RunStatusError = "error"
)

// ScanRun is one execution of one scanner.
type ScanRun struct {
	ID         string            `json:"id"`
	Scanner    string            `json:"scanner"`
	Scope      string            `json:"scope"`
	Config     map[string]string `json:"config,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Scanned    int               `json:"scanned"`
	Findings   []Finding         `json:"findings,omitempty"`
	Truncated  bool              `json:"truncated"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
}

// Failed reports whether the run ended with a scan-level error.
func (r *ScanRun) Failed() bool { return r.Status == RunStatusError }

// Duration is the wall time of the run.
func (r *ScanRun) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

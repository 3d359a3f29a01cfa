package collector

import (
	"github.com/ppiankov/wpspectre/internal/models"
)

// DefaultMax is the findings cap of a run when none is configured.
const DefaultMax = 1500

// Collector accumulates the findings of one scan run up to a cap. It is
// threaded through a scanner instead of shared mutable state; it is not safe
// for concurrent use.
type Collector struct {
	scanner  string
	max      int
	findings []models.Finding
	dropped  int
}

// New creates a collector for the named scanner. A non-positive max takes DefaultMax.
func New(scanner string, max int) *Collector {
	if max <= 0 {
		max = DefaultMax
	}
	return &Collector{scanner: scanner, max: max}
}

// Add appends f and reports whether it was accepted. Once the cap is
// reached every further finding is rejected; accepted findings are never
// removed.
func (c *Collector) Add(f models.Finding) bool {
	if len(c.findings) >= c.max {
		c.dropped++
		return false
	}
	if f.Scanner == "" {
		f.Scanner = c.scanner
	}
	if f.Fingerprint == "" {
		f = f.WithFingerprint()
	}
	c.findings = append(c.findings, f)
	return true
}

// Full reports whether the cap has been reached.
func (c *Collector) Full() bool { return len(c.findings) >= c.max }

// Truncated reports whether at least one finding was rejected.
func (c *Collector) Truncated() bool { return c.dropped > 0 }

// Dropped returns the number of rejected findings.
func (c *Collector) Dropped() int { return c.dropped }

// Len returns the number of accepted findings.
func (c *Collector) Len() int { return len(c.findings) }

// Max returns the cap.
func (c *Collector) Max() int { return c.max }

// Findings returns a copy of the accepted findings in insertion order.
func (c *Collector) Findings() []models.Finding {
	out := make([]models.Finding, len(c.findings))
	copy(out, c.findings)
	return out
}

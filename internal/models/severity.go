package models

import (
	"fmt"
	"strings"
)

// Severity is the risk level of a finding.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityAlert    Severity = "ALERTE"
	SeverityCritical Severity = "CRITIQUE"
)

// Severities lists all levels in ascending risk order.
var Severities = []Severity{SeverityInfo, SeverityAlert, SeverityCritical}

// Rank returns 0 for INFO, 1 for ALERTE, 2 for CRITIQUE and -1 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityAlert:
		return 1
	case SeverityCritical:
		return 2
	}
	return -1
}

// Valid reports whether s is one of the known levels.
func (s Severity) Valid() bool { return s.Rank() >= 0 }

// Less reports whether s is lower risk than other.
func (s Severity) Less(other Severity) bool { return s.Rank() < other.Rank() }

// Downgrade lowers the severity by exactly one level. INFO stays INFO.
func (s Severity) Downgrade() Severity {
	switch s {
	case SeverityCritical:
		return SeverityAlert
	case SeverityAlert:
		return SeverityInfo
	}
	return SeverityInfo
}

// MaxSeverity returns the higher of a and b.
func MaxSeverity(a, b Severity) Severity {
	if a.Less(b) {
		return b
	}
	return a
}

// ParseSeverity accepts INFO/ALERTE/CRITIQUE case-insensitively, plus the
// English aliases warning/alert and critical.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return SeverityInfo, nil
	case "ALERTE", "ALERT", "WARNING":
		return SeverityAlert, nil
	case "CRITIQUE", "CRITICAL":
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q (expected INFO, ALERTE or CRITIQUE)", s)
}

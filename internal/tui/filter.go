package tui

import (
	"sort"
	"strings"

	"github.com/ppiankov/wpspectre/internal/models"
)

// filterState holds current active filters.
type filterState struct {
	Scanner    string
	Severity   models.Severity
	SearchText string
}

// sortField enumerates orderings of the findings table.
type sortField int

const (
	sortBySeverity sortField = iota
	sortByScanner
	sortBySubject
)

const sortFieldCount = 3

// applyFilters returns findings matching all active filters.
func applyFilters(findings []models.Finding, f filterState) []models.Finding {
	result := make([]models.Finding, 0, len(findings))
	searchLower := strings.ToLower(f.SearchText)

	for _, finding := range findings {
		if f.Scanner != "" && finding.Scanner != f.Scanner {
			continue
		}
		if f.Severity != "" && finding.Severity != f.Severity {
			continue
		}
		if searchLower != "" && !matchesSearch(finding, searchLower) {
			continue
		}
		result = append(result, finding)
	}
	return result
}

func matchesSearch(f models.Finding, searchLower string) bool {
	for _, field := range []string{f.Scanner, f.Type, string(f.Severity), f.Subject, f.Detail} {
		if strings.Contains(strings.ToLower(field), searchLower) {
			return true
		}
	}
	return false
}

// sortFindings sorts in place. Ties keep the previous order.
func sortFindings(findings []models.Finding, field sortField) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		switch field {
		case sortBySeverity:
			return a.Severity.Rank() > b.Severity.Rank()
		case sortByScanner:
			return a.Scanner < b.Scanner
		case sortBySubject:
			return a.Subject < b.Subject
		default:
			return false
		}
	})
}

// uniqueScanners returns deduplicated, sorted scanner names.
func uniqueScanners(findings []models.Finding) []string {
	seen := make(map[string]bool)
	var names []string
	for _, f := range findings {
		if !seen[f.Scanner] {
			seen[f.Scanner] = true
			names = append(names, f.Scanner)
		}
	}
	sort.Strings(names)
	return names
}

func sortFieldName(f sortField) string {
	switch f {
	case sortBySeverity:
		return "severity"
	case sortByScanner:
		return "scanner"
	case sortBySubject:
		return "subject"
	default:
		return "unknown"
	}
}

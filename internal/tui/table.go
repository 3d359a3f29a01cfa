package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/reporter"
)

var tableColumns = []table.Column{
	{Title: "Severity", Width: 10},
	{Title: "Scanner", Width: 8},
	{Title: "Type", Width: 22},
	{Title: "Subject", Width: 44},
}

func buildRows(findings []models.Finding) []table.Row {
	rows := make([]table.Row, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, table.Row{
			reporter.Glyph(f.Severity) + " " + string(f.Severity),
			f.Scanner,
			truncate(f.Type, tableColumns[2].Width),
			truncateLeft(f.Subject, tableColumns[3].Width),
		})
	}
	return rows
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-len(ellipsis)]) + ellipsis
}

// truncateLeft keeps the tail of a path, where the file name is.
func truncateLeft(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	const ellipsis = "..."
	if maxLen <= len(ellipsis) {
		return string(r[len(r)-maxLen:])
	}
	return ellipsis + string(r[len(r)-maxLen+len(ellipsis):])
}

const (
	// tableHeaderLines is the column header row plus its bottom border.
	tableHeaderLines = 2
	minTableRows     = 3
)

func newTable(rows []table.Row, height int) table.Model {
	t := table.New(
		table.WithColumns(tableColumns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(height),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorAccent).
		Bold(false)
	t.SetStyles(s)

	return t
}

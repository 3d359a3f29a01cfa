package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/reporter"
)

var (
	colorMuted  = lipgloss.Color("#888888")
	colorAccent = lipgloss.Color("#7B68EE")
	colorBorder = lipgloss.Color("#444444")
)

// Panel styles
var (
	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	styleDetailPanel = lipgloss.NewStyle().
				Padding(0, 1).
				BorderStyle(lipgloss.NormalBorder()).
				BorderTop(true).
				BorderForeground(colorBorder)

	styleFooter = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	styleSearchPrompt = lipgloss.NewStyle().
				Foreground(colorAccent).Bold(true)

	styleLabel = lipgloss.NewStyle().Foreground(colorMuted)
)

func severityStyle(s models.Severity) lipgloss.Style {
	return reporter.SeverityStyle(lipgloss.DefaultRenderer(), s)
}

func gradeStyle(g models.Grade) lipgloss.Style {
	return reporter.GradeStyle(lipgloss.DefaultRenderer(), g)
}

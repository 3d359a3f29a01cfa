package tui

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/wpspectre/internal/models"
)

// mode represents the current UI interaction mode.
type mode int

const (
	modeNormal mode = iota
	modeSearch
)

const defaultTableHeight = 15

// Model is the Bubble Tea model of the findings browser.
type Model struct {
	// Data (immutable after init)
	report      *models.Report
	trend       *models.TrendSummary
	allFindings []models.Finding

	// UI state
	table            table.Model
	searchInput      textinput.Model
	filteredFindings []models.Finding
	filters          filterState
	sortBy           sortField
	mode             mode
	scanners         []string
	scannerIdx       int // 0 is all scanners
	expanded         bool
	width            int
	height           int
	statusMsg        string

	// clipboard keeps the last copied text; osc receives the escape sequence.
	clipboard string
	osc       io.Writer
}

// New creates a browser over the findings of report. trend may be nil.
func New(report *models.Report, trend *models.TrendSummary) Model {
	findings := make([]models.Finding, len(report.Findings))
	copy(findings, report.Findings)

	sortFindings(findings, sortBySeverity)
	t := newTable(buildRows(findings), defaultTableHeight)

	ti := textinput.New()
	ti.Placeholder = "search..."
	ti.CharLimit = 64

	return Model{
		report:           report,
		trend:            trend,
		allFindings:      findings,
		filteredFindings: findings,
		table:            t,
		searchInput:      ti,
		sortBy:           sortBySeverity,
		mode:             modeNormal,
		scanners:         uniqueScanners(findings),
		width:            80,
		height:           24,
		osc:              os.Stdout,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.resizeTable()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	switch m.mode {
	case modeSearch:
		m.searchInput, cmd = m.searchInput.Update(msg)
	default:
		m.table, cmd = m.table.Update(msg)
	}
	return m, cmd
}

func (m *Model) resizeTable() {
	detail := detailHeight
	if m.expanded {
		detail *= 2
	}
	// SetHeight counts the column header, Height reports body rows only.
	tableH := m.height - headerHeight - detail - 3
	if tableH < minTableRows+tableHeaderLines {
		tableH = minTableRows + tableHeaderLines
	}
	m.table.SetHeight(tableH)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode == modeSearch {
		return m.handleSearchKey(msg)
	}
	return m.handleNormalKey(msg)
}

func (m Model) handleNormalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Search):
		m.mode = modeSearch
		m.searchInput.Focus()
		return m, textinput.Blink
	case key.Matches(msg, keys.FilterScanner):
		m.scannerIdx = (m.scannerIdx + 1) % (len(m.scanners) + 1)
		if m.scannerIdx == 0 {
			m.filters.Scanner = ""
			m.statusMsg = "Filter: all scanners"
		} else {
			m.filters.Scanner = m.scanners[m.scannerIdx-1]
			m.statusMsg = "Filter: " + m.filters.Scanner
		}
		m.rebuildTable()
		return m, nil
	case key.Matches(msg, keys.Sort):
		m.sortBy = (m.sortBy + 1) % sortField(sortFieldCount)
		m.rebuildTable()
		m.statusMsg = fmt.Sprintf("Sort: %s", sortFieldName(m.sortBy))
		return m, nil
	case key.Matches(msg, keys.Detail):
		m.expanded = !m.expanded
		m.resizeTable()
		return m, nil
	case key.Matches(msg, keys.Copy):
		m.copySelectedSubject()
		return m, nil
	case key.Matches(msg, keys.ClearFilter):
		m.filters = filterState{}
		m.scannerIdx = 0
		m.expanded = false
		m.statusMsg = ""
		m.searchInput.SetValue("")
		m.rebuildTable()
		m.resizeTable()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filters.SearchText = m.searchInput.Value()
		m.mode = modeNormal
		m.searchInput.Blur()
		m.rebuildTable()
		return m, nil
	case "esc":
		m.mode = modeNormal
		m.searchInput.Blur()
		m.searchInput.SetValue("")
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *Model) rebuildTable() {
	filtered := applyFilters(m.allFindings, m.filters)
	sortFindings(filtered, m.sortBy)
	m.filteredFindings = filtered
	m.table.SetRows(buildRows(filtered))
	if m.table.Cursor() >= len(filtered) {
		m.table.SetCursor(0)
	}
}

func (m *Model) selectedFinding() *models.Finding {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.filteredFindings) {
		return nil
	}
	return &m.filteredFindings[cursor]
}

// copySelectedSubject writes the selected subject to the clipboard via OSC 52.
func (m *Model) copySelectedSubject() {
	f := m.selectedFinding()
	if f == nil {
		m.statusMsg = "Nothing to copy"
		return
	}
	m.clipboard = f.Subject
	m.statusMsg = "Copied!"
	if m.osc != nil {
		fmt.Fprintf(m.osc, "\033]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(f.Subject)))
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	var sparkline []int
	if m.trend != nil {
		sparkline = m.trend.Sparkline
	}
	b.WriteString(renderHeader(m.report, sparkline, m.width))
	b.WriteString("\n")

	if m.mode == modeSearch {
		b.WriteString(styleSearchPrompt.Render("/ "))
		b.WriteString(m.searchInput.View())
		b.WriteString("\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	b.WriteString(renderDetail(m.selectedFinding(), m.expanded, m.width))
	b.WriteString("\n")

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) renderFooter() string {
	left := "q:quit  /:search  f:scanner  s:sort  enter:details  c:copy  esc:clear"
	right := fmt.Sprintf("%d/%d findings", len(m.filteredFindings), len(m.allFindings))

	if m.statusMsg != "" {
		right = m.statusMsg + "  " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return styleFooter.Render(left + strings.Repeat(" ", gap) + right)
}

// Run starts the browser in the alternate screen and blocks until quit.
func Run(report *models.Report, trend *models.TrendSummary) error {
	m := New(report, trend)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

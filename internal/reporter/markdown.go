package reporter

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ppiankov/wpspectre/internal/aggregator"
	"github.com/ppiankov/wpspectre/internal/models"
)

const markdownTemplate = `# wpspectre audit: {{ .Root | mdEscape }}

Generated {{ .Timestamp.UTC.Format "2006-01-02 15:04:05 MST" }}

| Grade | Findings | Critical | Alert | Info | Items scanned |
|---|---|---|---|---|---|
| **{{ .Summary.Grade }}** | {{ .Summary.Total }} | {{ .Summary.Critical }} | {{ .Summary.Alert }} | {{ .Summary.Info }} | {{ .Summary.Scanned }} |

> {{ gradeMessage .Summary.Grade }}
{{- if .Summary.Truncated }}
>
> Findings cap reached; some results were dropped.
{{- end }}
{{- with .Trend }}

**Trend:** {{ .Direction }} {{ trendIndicator .Direction }} ({{ .PreviousFindings }} → {{ .CurrentFindings }} findings, {{ .NewFindings }} new, {{ .ResolvedFindings }} resolved, previous grade {{ .PreviousGrade }})
{{- end }}

## Scanners

| Scanner | Status | Scanned | Findings | Notes |
|---|---|---|---|---|
{{- range .Runs }}
| {{ title .Scanner }} | {{ upper .Status }} | {{ .Scanned }} | {{ .Findings }} | {{ if .Error }}{{ .Error | mdEscape }}{{ else if .Truncated }}truncated{{ end }} |
{{- end }}
{{ range $sev := severities }}
{{- $group := bySeverity $.Findings $sev }}
{{- if $group }}
## {{ glyph $sev }} {{ $sev }} ({{ len $group }})

| Scanner | Type | Subject | Detail |
|---|---|---|---|
{{- range $group }}
| {{ .Scanner }} | ` + "`{{ .Type }}`" + ` | {{ .Subject | mdEscape }} | {{ .Detail | mdEscape | trunc 160 }}{{ with .Size }} ({{ humanBytes . }}){{ end }} |
{{- end }}
{{ end }}
{{- end }}
{{- if not .Findings }}
No findings.
{{ end -}}
`

// MarkdownReporter renders a report as a Markdown document.
type MarkdownReporter struct {
	writer io.Writer
	tmpl   *template.Template
}

// NewMarkdownReporter creates a Markdown reporter.
func NewMarkdownReporter(writer io.Writer) (*MarkdownReporter, error) {
	title := cases.Title(language.English)

	funcMap := sprig.TxtFuncMap()
	funcMap["mdEscape"] = mdEscape
	funcMap["glyph"] = Glyph
	funcMap["humanBytes"] = func(n *int64) string { return models.HumanBytes(*n) }
	funcMap["title"] = title.String
	funcMap["gradeMessage"] = models.GradeMessage
	funcMap["trendIndicator"] = aggregator.GetTrendIndicator
	funcMap["severities"] = func() []models.Severity {
		return []models.Severity{models.SeverityCritical, models.SeverityAlert, models.SeverityInfo}
	}
	funcMap["bySeverity"] = bySeverity

	tmpl, err := template.New("markdown").Funcs(funcMap).Parse(markdownTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse markdown template: %w", err)
	}
	return &MarkdownReporter{writer: writer, tmpl: tmpl}, nil
}

// Generate writes the report.
func (r *MarkdownReporter) Generate(report *models.Report) error {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, report); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err := r.writer.Write(buf.Bytes())
	return err
}

func bySeverity(findings []models.Finding, sev models.Severity) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.Severity == sev {
			out = append(out, f)
		}
	}
	return out
}

var mdReplacer = strings.NewReplacer("|", `\|`, "\n", " ", "\r", "")

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}

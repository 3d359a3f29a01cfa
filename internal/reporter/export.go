package reporter

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/ppiankov/wpspectre/internal/models"
)

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{
	"run_timestamp", "scanner", "severity", "type", "subject",
	"detail", "size", "modified_at", "fingerprint", "grade",
}

// WriteCSV writes one row per finding across reports.
func WriteCSV(w io.Writer, reports []*models.Report) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, report := range reports {
		ts := report.Timestamp.UTC().Format(time.RFC3339)
		for _, f := range report.Findings {
			size, modified := "", ""
			if f.Size != nil {
				size = strconv.FormatInt(*f.Size, 10)
			}
			if f.ModifiedAt != nil {
				modified = f.ModifiedAt.UTC().Format(time.RFC3339)
			}
			row := []string{
				ts, f.Scanner, string(f.Severity), f.Type, f.Subject,
				f.Detail, size, modified, f.Fingerprint, string(report.Summary.Grade),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// SARIF 2.1.0 output for code scanning integrations.
// Minimal structures, only what is needed for valid SARIF.

// SARIFSchema is the schema URI of emitted logs.
const SARIFSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

// typeDescriptions names the context finding types whose identifier alone is
// ambiguous to SARIF consumers.
var typeDescriptions = map[string]string{
	"user_input_to_exec":       "request input reaches a process execution sink (system, exec, shell_exec, passthru, proc_open, popen, pcntl_exec)",
	"user_input_to_eval":       "request input reaches a code evaluation or include sink (eval, assert, include, require, call_user_func); older tools report this as user_input_to_exec",
	"include_from_uploads":     "include or require of a file under wp-content/uploads",
	"base64_payload":           "large base64 literal passed to base64_decode()",
	"indirect_call_near_sink":  "variable variable right before a sink call",
	"indirect_call_from_input": "variable variable built from request input",
}

func ruleDescription(scanner, typ string) string {
	if d, ok := typeDescriptions[typ]; ok {
		return scanner + " " + typ + ": " + d
	}
	return scanner + " " + typ
}

// WriteSARIF writes findings of all reports as one SARIF run.
func WriteSARIF(w io.Writer, reports []*models.Report, version string) error {
	rulesMap := map[string]sarifRule{}
	results := []sarifResult{}

	for _, report := range reports {
		for _, f := range report.Findings {
			ruleID := f.Scanner + "/" + f.Type
			level := SARIFLevel(f.Severity)
			if existing, ok := rulesMap[ruleID]; !ok || levelRank(level) > levelRank(existing.DefaultConfig.Level) {
				rulesMap[ruleID] = sarifRule{
					ID:               ruleID,
					ShortDescription: sarifMessage{Text: ruleDescription(f.Scanner, f.Type)},
					DefaultConfig:    sarifDefaultConfig{Level: level},
				}
			}

			text := f.Type + ": " + f.Subject
			if f.Detail != "" {
				text += ". " + f.Detail
			}
			res := sarifResult{
				RuleID:  ruleID,
				Level:   level,
				Message: sarifMessage{Text: text},
				Locations: []sarifLocation{{
					PhysicalLocation: sarifPhysical{
						ArtifactLocation: sarifArtifact{URI: f.Subject},
					},
				}},
			}
			if f.Fingerprint != "" {
				res.PartialFingerprints = map[string]string{"wpspectre/v1": f.Fingerprint}
			}
			results = append(results, res)
		}
	}

	rules := make([]sarifRule, 0, len(rulesMap))
	for _, r := range rulesMap {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	log := sarifLog{
		Schema:  SARIFSchema,
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool: sarifTool{
				Driver: sarifDriver{
					Name:    "wpspectre",
					Version: version,
					Rules:   rules,
				},
			},
			Results: results,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

// SARIFLevel maps CRITIQUE to error, ALERTE to warning and INFO to note.
func SARIFLevel(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "error"
	case models.SeverityAlert:
		return "warning"
	default:
		return "note"
	}
}

func levelRank(level string) int {
	switch level {
	case "error":
		return 2
	case "warning":
		return 1
	}
	return 0
}

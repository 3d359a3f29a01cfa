// Package severity turns a rule's base severity and a subject's context
// flags into a final severity.
package severity

import (
	"fmt"
	"strings"

	"github.com/ppiankov/wpspectre/internal/analyzer"
	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/patterns"
)

// Context-derived finding types.
const (
	TypeIncludeFromUploads    = "include_from_uploads"
	TypeUserInputToExec       = "user_input_to_exec"
	TypeUserInputToEval       = "user_input_to_eval"
	TypeBase64Payload         = "base64_payload"
	TypeIndirectCallNearSink  = "indirect_call_near_sink"
	TypeIndirectCallFromInput = "indirect_call_from_input"
)

// Resolve applies the precedence rules in order, each later step
// overriding the earlier ones:
//
//  1. start at the rule's base severity
//  2. sink-presence rules without tainted input drop to INFO
//  3. inclusion from the uploads area forces CRITIQUE
//  4. tainted input forces CRITIQUE, or ALERTE when shell-escaped
//  5. vendor paths without a hard signal drop one level
//  6. the base64 payload rule is INFO below the large threshold, else ALERTE
func Resolve(r patterns.Rule, f analyzer.Flags, vendor bool) models.Severity {
	s := r.Base
	if r.SinkPresence && !f.TaintedInputReachesSink {
		s = models.SeverityInfo
	}
	if f.IncludesFromUploadArea {
		s = models.SeverityCritical
	}
	if f.TaintedInputReachesSink {
		s = models.SeverityCritical
		if f.SinkInputIsSanitized && !f.IncludesFromUploadArea {
			s = models.SeverityAlert
		}
	}
	if vendor && !f.Hard() {
		s = s.Downgrade()
	}
	if r.Payload {
		s = models.SeverityInfo
		if f.LargePayload {
			s = models.SeverityAlert
		}
	}
	return s
}

// Derived is a finding produced by context alone, emitted next to the
// pattern findings of the same subject.
type Derived struct {
	Type     string
	Severity models.Severity
	Detail   string
}

// Context returns the context-derived findings for one subject in a fixed
// order.
func Context(f analyzer.Flags, vendor bool) []Derived {
	var out []Derived
	if f.IncludesFromUploadArea {
		out = append(out, Derived{
			Type:     TypeIncludeFromUploads,
			Severity: models.SeverityCritical,
			Detail:   "static include of a file under the uploads directory",
		})
	}
	if f.ExecTaint {
		d := Derived{
			Type:     TypeUserInputToExec,
			Severity: models.SeverityCritical,
			Detail:   "request input reaches a process execution call (" + strings.Join(execNames(f.TaintedSinks), ", ") + ")",
		}
		if f.ExecSanitized {
			d.Severity = models.SeverityAlert
			d.Detail += ", shell-escaped"
		}
		out = append(out, d)
	}
	if f.CodeTaint {
		out = append(out, Derived{
			Type:     TypeUserInputToEval,
			Severity: models.SeverityCritical,
			Detail:   "request input reaches a code evaluation or include call (" + strings.Join(codeNames(f.TaintedSinks), ", ") + ")",
		})
	}
	if f.LargePayload {
		out = append(out, Derived{
			Type:     TypeBase64Payload,
			Severity: models.SeverityAlert,
			Detail:   fmt.Sprintf("base64 literal of %d characters", f.PayloadLength),
		})
	}

	var indirect *Derived
	switch {
	case f.IndirectVariableNearSink && f.IndirectVariableFromUserInput:
		indirect = &Derived{TypeIndirectCallFromInput, models.SeverityCritical, "variable variable built from request input right before a sink"}
	case f.IndirectVariableNearSink:
		indirect = &Derived{TypeIndirectCallNearSink, models.SeverityAlert, "variable variable right before a sink call"}
	case f.IndirectVariableFromUserInput:
		indirect = &Derived{TypeIndirectCallFromInput, models.SeverityAlert, "variable variable or dynamic call fed by request input"}
	}
	if indirect != nil {
		if vendor && !f.Hard() {
			indirect.Severity = indirect.Severity.Downgrade()
		}
		out = append(out, *indirect)
	}
	return out
}

func execNames(names []string) []string {
	return filterNames(names, patterns.ExecSinks)
}

func codeNames(names []string) []string {
	return filterNames(names, patterns.CodeSinks)
}

func filterNames(names, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	var out []string
	for _, n := range names {
		if set[n] {
			out = append(out, n)
		}
	}
	return out
}

// Package analyzer computes the contextual signals that move a rule's
// severity: tainted input reaching a sink, shell escaping, inclusion from
// the uploads area, variable indirection near sinks and payload size.
package analyzer

import (
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/wpspectre/internal/patterns"
	"github.com/ppiankov/wpspectre/internal/sanitize"
)

// Options tunes the heuristics. Zero values take the defaults.
type Options struct {
	IndirectWindow int      `mapstructure:"indirect_window" yaml:"indirect_window"`
	InputWindow    int      `mapstructure:"input_window" yaml:"input_window"`
	PayloadPresent int      `mapstructure:"payload_present" yaml:"payload_present"`
	PayloadLarge   int      `mapstructure:"payload_large" yaml:"payload_large"`
	Superglobals   []string `mapstructure:"superglobals" yaml:"superglobals"`
	UploadMarkers  []string `mapstructure:"upload_markers" yaml:"upload_markers"`
}

// DefaultOptions returns the stock tuning constants.
func DefaultOptions() Options {
	return Options{
		IndirectWindow: 180,
		InputWindow:    200,
		PayloadPresent: patterns.DefaultPayloadPresent,
		PayloadLarge:   patterns.DefaultPayloadLarge,
		Superglobals:   []string{"GET", "POST", "REQUEST", "COOKIE", "SERVER"},
		UploadMarkers:  []string{"wp-content/uploads/"},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.IndirectWindow <= 0 {
		o.IndirectWindow = d.IndirectWindow
	}
	if o.InputWindow <= 0 {
		o.InputWindow = d.InputWindow
	}
	if o.PayloadPresent <= 0 {
		o.PayloadPresent = d.PayloadPresent
	}
	if o.PayloadLarge <= 0 {
		o.PayloadLarge = d.PayloadLarge
	}
	if len(o.Superglobals) == 0 {
		o.Superglobals = d.Superglobals
	}
	if len(o.UploadMarkers) == 0 {
		o.UploadMarkers = d.UploadMarkers
	}
	return o
}

// Flags are the context signals of one subject. Each is computed
// independently.
type Flags struct {
	TaintedInputReachesSink bool
	SinkInputIsSanitized    bool

	// ExecTaint and CodeTaint split TaintedInputReachesSink by sink kind.
	// ExecSanitized holds when every tainted exec call escapes its input.
	ExecTaint     bool
	ExecSanitized bool
	CodeTaint     bool

	// TaintedSinks lists the sink names with tainted arguments, sorted.
	TaintedSinks []string

	IncludesFromUploadArea        bool
	IndirectVariableNearSink      bool
	IndirectVariableFromUserInput bool

	PayloadLength  int
	PayloadPresent bool
	LargePayload   bool
}

// Hard reports whether a signal of active exploitation is present. Hard
// signals disable vendor allowlisting.
func (f Flags) Hard() bool {
	return f.TaintedInputReachesSink || f.IncludesFromUploadArea || f.LargePayload
}

// Analyzer evaluates Flags with fixed options.
type Analyzer struct {
	opts       Options
	tainted    *regexp.Regexp
	uploadIncl *regexp.Regexp
	execSinks  map[string]bool
	codeSinks  map[string]bool
	allSinks   map[string]bool
	escapers   map[string]bool

	// headers enables $_SERVER['HTTP_*'] as a taint source.
	headers bool
}

var (
	headerRef   = regexp.MustCompile(`\$_SERVER\s*\[\s*['"]HTTP_\w*['"]\s*\]`)
	indirection = regexp.MustCompile(`\$\$[A-Za-z_]\w*|\$\{\s*\$`)
	dynamicCall = regexp.MustCompile(`(?:^|[^\w$>:])(\$[A-Za-z_]\w*)\s*\(`)
)

// New builds an analyzer.
func New(opts Options) *Analyzer {
	opts = opts.withDefaults()

	headers := false
	globals := make([]string, len(opts.Superglobals))
	for i, g := range opts.Superglobals {
		name := strings.ToUpper(strings.TrimPrefix(strings.TrimPrefix(g, "$"), "_"))
		if name == "SERVER" {
			// Only client-controlled request headers.
			headers = true
			globals[i] = `SERVER\s*\[\s*['"]HTTP_\w*['"]\s*\]`
			continue
		}
		globals[i] = regexp.QuoteMeta(name) + `\b`
	}
	markers := make([]string, len(opts.UploadMarkers))
	for i, m := range opts.UploadMarkers {
		markers[i] = regexp.QuoteMeta(m)
	}

	return &Analyzer{
		opts:       opts,
		tainted:    regexp.MustCompile(`\$_(?:` + strings.Join(globals, "|") + `)`),
		uploadIncl: regexp.MustCompile(`(?i)(?:^|[^\w$>:])(?:include|include_once|require|require_once)\b[^;]{0,160}?['"][^'"]*(?:` + strings.Join(markers, "|") + `)[^'"]+['"]`),
		execSinks:  nameSet(patterns.ExecSinks),
		codeSinks:  nameSet(patterns.CodeSinks),
		allSinks:   nameSet(patterns.ExecSinks, patterns.CodeSinks),
		escapers:   nameSet([]string{"escapeshellarg", "escapeshellcmd"}),
		headers:    headers,
	}
}

// Options returns the effective options.
func (a *Analyzer) Options() Options { return a.opts }

// Analyze computes all flags for one subject.
func (a *Analyzer) Analyze(v sanitize.Views) Flags {
	var f Flags
	text := v.Sanitized
	if a.headers {
		text = restoreHeaderKeys(text, v.Code)
	}

	calls := Calls(text, a.allSinks)
	execSanitized := true
	tainted := make(map[string]bool)
	for _, c := range calls {
		refs := a.tainted.FindAllIndex(c.Args, -1)
		if len(refs) == 0 {
			continue
		}
		tainted[c.Name] = true
		if a.execSinks[c.Name] {
			f.ExecTaint = true
			if !a.escaped(c.Args, refs) {
				execSanitized = false
			}
		} else {
			f.CodeTaint = true
		}
	}
	f.TaintedInputReachesSink = f.ExecTaint || f.CodeTaint
	f.ExecSanitized = f.ExecTaint && execSanitized
	f.SinkInputIsSanitized = f.ExecSanitized && !f.CodeTaint
	for name := range tainted {
		f.TaintedSinks = append(f.TaintedSinks, name)
	}
	sort.Strings(f.TaintedSinks)

	f.IncludesFromUploadArea = a.uploadIncl.Match(v.Code)

	indirect := indirection.FindAllIndex(text, -1)
	if len(indirect) > 0 {
		f.IndirectVariableNearSink = nearSink(indirect, calls, a.opts.IndirectWindow)
		f.IndirectVariableFromUserInput = withinWindow(indirect, a.tainted.FindAllIndex(text, -1), a.opts.InputWindow)
	}
	if !f.IndirectVariableFromUserInput {
		f.IndirectVariableFromUserInput = a.taintedDynamicCall(text)
	}

	f.PayloadLength = patterns.LongestDecodedBase64(v.Raw)
	f.PayloadPresent = f.PayloadLength >= a.opts.PayloadPresent
	f.LargePayload = f.PayloadLength >= a.opts.PayloadLarge
	return f
}

// restoreHeaderKeys copies request-header keys of $_SERVER lookups from the
// Code view back into the Sanitized view, which blanked them as strings.
// Both views share offsets.
func restoreHeaderKeys(sanitized, code []byte) []byte {
	refs := headerRef.FindAllIndex(code, -1)
	if len(refs) == 0 || len(code) != len(sanitized) {
		return sanitized
	}
	out := make([]byte, len(sanitized))
	copy(out, sanitized)
	for _, r := range refs {
		copy(out[r[0]:r[1]], code[r[0]:r[1]])
	}
	return out
}

// HasSink reports whether text holds any code or exec sink call.
func (a *Analyzer) HasSink(text []byte) bool {
	return len(Calls(text, a.allSinks)) > 0
}

// escaped reports whether every tainted reference in args sits inside the
// argument list of a shell-escaping call.
func (a *Analyzer) escaped(args []byte, refs [][]int) bool {
	esc := Calls(args, a.escapers)
	if len(esc) == 0 {
		return false
	}
	for _, r := range refs {
		covered := false
		for _, e := range esc {
			if r[0] >= e.ArgOff && r[1] <= e.ArgOff+len(e.Args) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// taintedDynamicCall finds $fn(...) calls whose arguments carry request input.
func (a *Analyzer) taintedDynamicCall(text []byte) bool {
	for _, m := range dynamicCall.FindAllSubmatchIndex(text, -1) {
		open := skipSpace(text, m[3])
		if open >= len(text) || text[open] != '(' {
			continue
		}
		end := closeParen(text, open)
		if a.tainted.Match(text[open+1 : end]) {
			return true
		}
	}
	return false
}

// nearSink reports whether an indirection ends within window bytes before
// the start of a sink call.
func nearSink(indirect [][]int, calls []Call, window int) bool {
	for _, c := range calls {
		for _, ind := range indirect {
			if ind[1] <= c.Start && c.Start-ind[1] <= window {
				return true
			}
		}
	}
	return false
}

// withinWindow reports whether any a-span and b-span lie within window
// bytes of each other.
func withinWindow(as, bs [][]int, window int) bool {
	for _, x := range as {
		for _, y := range bs {
			gap := y[0] - x[1]
			if y[1] <= x[0] {
				gap = x[0] - y[1]
			}
			if gap <= window {
				return true
			}
		}
	}
	return false
}

// Package patterns holds the data-driven detection rules. Every rule is a
// pure function of one text view plus metadata; adding a rule is adding a
// table row.
package patterns

import (
	"regexp"

	"github.com/ppiankov/wpspectre/internal/models"
	"github.com/ppiankov/wpspectre/internal/sanitize"
)

// View selects which text view a rule reads.
type View int

const (
	// ViewSanitized has comments and string literals blanked.
	ViewSanitized View = iota
	// ViewCode has only comments blanked.
	ViewCode
	// ViewRaw is the content as read.
	ViewRaw
)

func (v View) String() string {
	switch v {
	case ViewCode:
		return "code"
	case ViewRaw:
		return "raw"
	}
	return "sanitized"
}

// Category groups rules by what they detect.
type Category string

const (
	CategoryExec        Category = "exec"
	CategoryObfuscation Category = "obfuscation"
	CategoryServer      Category = "server-config"
	CategoryIni         Category = "php-ini"
	CategoryFilename    Category = "filename"
	CategoryMarkup      Category = "markup"
)

// Rule is one detector.
type Rule struct {
	Label    string
	Category Category
	Base     models.Severity
	View     View
	Match    func([]byte) bool
	Detail   string

	// SinkPresence marks rules whose hit only proves a sink exists. Without
	// tainted input they resolve to INFO.
	SinkPresence bool

	// Payload marks the base64 payload rule, whose severity depends on the
	// literal length only.
	Payload bool
}

// Matches evaluates the rule against the view it declares.
func (r Rule) Matches(v sanitize.Views) bool {
	return r.Match(pick(v, r.View))
}

func pick(v sanitize.Views, view View) []byte {
	switch view {
	case ViewRaw:
		return v.Raw
	case ViewCode:
		return v.Code
	}
	return v.Sanitized
}

// Library is an ordered rule table.
type Library []Rule

// Eval returns the rules that fire on v, in table order, one per label.
func (lib Library) Eval(v sanitize.Views) []Rule {
	var fired []Rule
	seen := make(map[string]bool)
	for _, r := range lib {
		if seen[r.Label] {
			continue
		}
		if r.Matches(v) {
			seen[r.Label] = true
			fired = append(fired, r)
		}
	}
	return fired
}

// Lookup returns the rule with the given label.
func (lib Library) Lookup(label string) (Rule, bool) {
	for _, r := range lib {
		if r.Label == label {
			return r, true
		}
	}
	return Rule{}, false
}

// re compiles expr once and returns its matcher.
func re(expr string) func([]byte) bool {
	return regexp.MustCompile(expr).Match
}

// anyOf returns a matcher that fires when one of ms fires.
func anyOf(ms ...func([]byte) bool) func([]byte) bool {
	return func(b []byte) bool {
		for _, m := range ms {
			if m(b) {
				return true
			}
		}
		return false
	}
}

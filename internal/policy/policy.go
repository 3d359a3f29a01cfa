package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/wpspectre/internal/models"
)

// FileNames are the policy file names looked up by FindPolicyFile.
var FileNames = []string{".wpspectre-policy.yaml", ".wpspectre-policy.yml"}

// Policy defines enforcement rules for audit results.
type Policy struct {
	Version string `yaml:"version"`
	Rules   Rules  `yaml:"rules"`

	compiled []compiledExpr
}

// Rules contains all configurable policy rules.
type Rules struct {
	MaxCritical     *int     `yaml:"max_critical,omitempty"`
	MaxAlert        *int     `yaml:"max_alert,omitempty"`
	MinGrade        string   `yaml:"min_grade,omitempty"`
	ForbidTypes     []string `yaml:"forbid_types,omitempty"`
	RequireScanners []string `yaml:"require_scanners,omitempty"`
	// FailWhen holds CEL expressions; any that evaluates true is a violation.
	FailWhen []string `yaml:"fail_when,omitempty"`
}

// Violation is a single policy failure.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result holds the outcome of a policy check.
type Result struct {
	Pass       bool        `json:"pass"`
	Violations []Violation `json:"violations"`
}

type compiledExpr struct {
	source  string
	program cel.Program
}

// LoadFromFile reads and compiles a policy file. A missing file yields a nil policy.
func LoadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes and compiles a policy document.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Compile checks static rules and compiles fail_when expressions.
func (p *Policy) Compile() error {
	if p.Rules.MinGrade != "" && models.Grade(p.Rules.MinGrade).Rank() < 0 {
		return fmt.Errorf("policy min_grade %q is not a grade", p.Rules.MinGrade)
	}
	if len(p.Rules.FailWhen) == 0 {
		p.compiled = nil
		return nil
	}

	env, err := newEnv()
	if err != nil {
		return fmt.Errorf("policy environment: %w", err)
	}
	p.compiled = make([]compiledExpr, 0, len(p.Rules.FailWhen))
	for _, src := range p.Rules.FailWhen {
		ast, iss := env.Compile(src)
		if iss != nil && iss.Err() != nil {
			return fmt.Errorf("policy fail_when %q: %w", src, iss.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return fmt.Errorf("policy fail_when %q: result must be bool, got %s", src, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return fmt.Errorf("policy fail_when %q: %w", src, err)
		}
		p.compiled = append(p.compiled, compiledExpr{source: src, program: prg})
	}
	return nil
}

// newEnv declares the variables fail_when expressions can use.
func newEnv() (*cel.Env, error) {
	counts := cel.MapType(cel.StringType, cel.IntType)
	return cel.NewEnv(
		cel.Variable("critical", cel.IntType),
		cel.Variable("alert", cel.IntType),
		cel.Variable("info", cel.IntType),
		cel.Variable("total", cel.IntType),
		cel.Variable("scanned", cel.IntType),
		cel.Variable("truncated", cel.BoolType),
		cel.Variable("grade", cel.StringType),
		cel.Variable("grade_rank", cel.IntType),
		cel.Variable("types", counts),
		cel.Variable("scanners", counts),
		cel.Variable("failed", cel.ListType(cel.StringType)),
	)
}

func activation(report *models.Report) map[string]any {
	s := report.Summary
	return map[string]any{
		"critical":   int64(s.Critical),
		"alert":      int64(s.Alert),
		"info":       int64(s.Info),
		"total":      int64(s.Total),
		"scanned":    int64(s.Scanned),
		"truncated":  s.Truncated,
		"grade":      string(s.Grade),
		"grade_rank": int64(s.Grade.Rank()),
		"types":      int64Map(s.ByType),
		"scanners":   int64Map(s.ByScanner),
		"failed":     append([]string{}, s.FailedScanners...),
	}
}

func int64Map(m map[string]int) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = int64(v)
	}
	return out
}

// FindPolicyFile searches for a policy file in the current directory
// and parent directories up to the filesystem root.
func FindPolicyFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	return findFrom(dir)
}

func findFrom(dir string) string {
	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Evaluate checks a report against the policy rules.
func (p *Policy) Evaluate(report *models.Report) *Result {
	if p == nil {
		return &Result{Pass: true}
	}

	var violations []Violation
	s := report.Summary

	if p.Rules.MaxCritical != nil && s.Critical > *p.Rules.MaxCritical {
		violations = append(violations, Violation{
			Rule:    "max_critical",
			Message: fmt.Sprintf("critical findings %d exceeds limit %d", s.Critical, *p.Rules.MaxCritical),
		})
	}

	if p.Rules.MaxAlert != nil && s.Alert > *p.Rules.MaxAlert {
		violations = append(violations, Violation{
			Rule:    "max_alert",
			Message: fmt.Sprintf("alert findings %d exceeds limit %d", s.Alert, *p.Rules.MaxAlert),
		})
	}

	if p.Rules.MinGrade != "" && s.Grade.Rank() < models.Grade(p.Rules.MinGrade).Rank() {
		violations = append(violations, Violation{
			Rule:    "min_grade",
			Message: fmt.Sprintf("grade %s below minimum %s", s.Grade, p.Rules.MinGrade),
		})
	}

	types := append([]string{}, p.Rules.ForbidTypes...)
	sort.Strings(types)
	for _, typ := range types {
		if count := s.ByType[typ]; count > 0 {
			violations = append(violations, Violation{
				Rule:    "forbid_types",
				Message: fmt.Sprintf("forbidden finding type %q has %d findings", typ, count),
			})
		}
	}

	for _, name := range p.Rules.RequireScanners {
		if !ranOK(report, name) {
			violations = append(violations, Violation{
				Rule:    "require_scanners",
				Message: fmt.Sprintf("required scanner %q did not complete", name),
			})
		}
	}

	if len(p.Rules.FailWhen) > 0 && p.compiled == nil {
		if err := p.Compile(); err != nil {
			violations = append(violations, Violation{Rule: "fail_when", Message: err.Error()})
		}
	}
	if len(p.compiled) > 0 {
		vars := activation(report)
		for _, expr := range p.compiled {
			violations = append(violations, evalExpr(expr, vars)...)
		}
	}

	return &Result{
		Pass:       len(violations) == 0,
		Violations: violations,
	}
}

func evalExpr(expr compiledExpr, vars map[string]any) []Violation {
	out, _, err := expr.program.Eval(vars)
	if err != nil {
		return []Violation{{
			Rule:    "fail_when",
			Message: fmt.Sprintf("expression %q failed: %v", expr.source, err),
		}}
	}
	if hit, ok := out.Value().(bool); ok && hit {
		return []Violation{{
			Rule:    "fail_when",
			Message: fmt.Sprintf("expression %q matched", expr.source),
		}}
	}
	return nil
}

func ranOK(report *models.Report, scanner string) bool {
	for _, run := range report.Runs {
		if run.Scanner == scanner && run.Status == models.RunStatusOK {
			return true
		}
	}
	return false
}

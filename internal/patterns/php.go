package patterns

import (
	"bytes"
	"regexp"

	"github.com/ppiankov/wpspectre/internal/models"
)

// Sink names, lower-case. Code sinks evaluate or load PHP; exec sinks spawn
// processes.
var (
	CodeSinks = []string{
		"eval", "assert", "include", "include_once", "require", "require_once",
		"call_user_func", "call_user_func_array", "create_function",
	}
	ExecSinks = []string{
		"system", "exec", "shell_exec", "passthru", "proc_open", "popen", "pcntl_exec",
	}
)

// Default payload thresholds in characters.
const (
	DefaultPayloadPresent = 300
	DefaultPayloadLarge   = 600
)

// Labels shared with the severity resolver and scanners.
const (
	LabelBase64Decode = "base64_decode"
	LabelSystemExec   = "system_exec"
	LabelProcOpen     = "proc_open"
)

// callPrefix rejects method calls, static calls, variables and longer identifiers.
const callPrefix = `(?:^|[^\w$>:])`

var (
	includeKeyword = regexp.MustCompile(`(?i)\b(?:include|include_once|require|require_once)\b`)
	includeAnchor  = regexp.MustCompile(`(?i)__DIR__|__FILE__|dirname\s*\(|ABSPATH|WPINC|WP_PLUGIN_DIR|WP_CONTENT_DIR|plugin_dir_path\s*\(|get_template_directory\s*\(|get_stylesheet_directory\s*\(|trailingslashit\s*\(`)
	base64Literal  = regexp.MustCompile(`['"]([A-Za-z0-9+/=]{64,})['"]`)
	decodedLiteral = regexp.MustCompile(`(?i)base64_decode\s*\(\s*['"]([A-Za-z0-9+/=]{64,})['"]\s*\)`)
	codeOpenTag    = regexp.MustCompile(`(?i)<\?(?:php\b|=)`)
)

var phpLibrary = Library{
	{
		Label:    "eval_obfuscated",
		Category: CategoryObfuscation,
		Base:     models.SeverityCritical,
		Match:    re(`(?i)` + callPrefix + `(?:eval|assert)\s*\(\s*(?:base64_decode|gzinflate|gzuncompress|gzdecode|str_rot13)\s*\(`),
		Detail:   "eval() of a decoded or decompressed payload",
	},
	{
		Label:    "eval",
		Category: CategoryExec,
		Base:     models.SeverityAlert,
		Match:    re(`(?i)` + callPrefix + `eval\s*\(`),
		Detail:   "eval() executes a string as PHP code",
	},
	{
		Label:    "assert",
		Category: CategoryExec,
		Base:     models.SeverityAlert,
		Match:    re(`(?i)` + callPrefix + `assert\s*\(`),
		Detail:   "assert() can evaluate string arguments as code",
	},
	{
		Label:        LabelSystemExec,
		Category:     CategoryExec,
		Base:         models.SeverityAlert,
		Match:        re(`(?i)` + callPrefix + `(?:system|exec|shell_exec|passthru)\s*\(`),
		Detail:       "process execution call present",
		SinkPresence: true,
	},
	{
		Label:        LabelProcOpen,
		Category:     CategoryExec,
		Base:         models.SeverityAlert,
		Match:        re(`(?i)` + callPrefix + `(?:proc_open|popen|pcntl_exec)\s*\(`),
		Detail:       "process spawning call present",
		SinkPresence: true,
	},
	{
		Label:        "dynamic_include",
		Category:     CategoryExec,
		Base:         models.SeverityAlert,
		Match:        dynamicInclude,
		Detail:       "include/require of a variable path without a directory anchor",
		SinkPresence: true,
	},
	{
		Label:    "dynamic_call",
		Category: CategoryExec,
		Base:     models.SeverityCritical,
		Match:    re(`\$_(?:GET|POST|REQUEST|COOKIE)\s*\[[^\]]*\]\s*\(`),
		Detail:   "function name taken directly from request input",
	},
	{
		Label:    "preg_replace_eval",
		Category: CategoryExec,
		Base:     models.SeverityAlert,
		View:     ViewCode,
		Match:    re(`(?i)preg_replace\s*\(\s*['"][^'"]*/[a-z]*e[a-z]*['"]`),
		Detail:   "preg_replace with the /e modifier evaluates the replacement",
	},
	{
		Label:    LabelBase64Decode,
		Category: CategoryObfuscation,
		Base:     models.SeverityInfo,
		Match:    re(`(?i)` + callPrefix + `base64_decode\s*\(`),
		Detail:   "base64_decode() call",
		Payload:  true,
	},
	{
		Label:    "runtime_decompression",
		Category: CategoryObfuscation,
		Base:     models.SeverityInfo,
		Match:    re(`(?i)` + callPrefix + `(?:gzinflate|gzuncompress|gzdecode|str_rot13)\s*\(`),
		Detail:   "runtime decompression or rot13 decoding",
	},
}

// PHP returns the PHP source rule table.
func PHP() Library { return phpLibrary }

// dynamicInclude fires on include/require statements whose path expression
// starts with a variable and carries no directory anchor.
func dynamicInclude(b []byte) bool {
	for _, loc := range includeKeyword.FindAllIndex(b, -1) {
		if loc[0] > 0 {
			switch b[loc[0]-1] {
			case '$', '>', ':':
				continue
			}
		}
		rest := b[loc[1]:]
		end := bytes.IndexByte(rest, ';')
		if end < 0 {
			end = len(rest)
		}
		stmt := rest[:end]
		expr := bytes.TrimLeft(stmt, " \t\r\n(")
		if len(expr) > 0 && expr[0] == '$' && !includeAnchor.Match(stmt) {
			return true
		}
	}
	return false
}

// LongestBase64Literal returns the length of the longest quoted base64
// literal in raw, or 0.
func LongestBase64Literal(raw []byte) int {
	longest := 0
	for _, m := range base64Literal.FindAllSubmatchIndex(raw, -1) {
		if n := m[3] - m[2]; n > longest {
			longest = n
		}
	}
	return longest
}

// LongestDecodedBase64 is LongestBase64Literal restricted to literals passed
// directly to base64_decode().
func LongestDecodedBase64(raw []byte) int {
	longest := 0
	for _, m := range decodedLiteral.FindAllSubmatchIndex(raw, -1) {
		if n := m[3] - m[2]; n > longest {
			longest = n
		}
	}
	return longest
}

// HasCodeOpenTag reports whether b contains a PHP open tag.
func HasCodeOpenTag(b []byte) bool {
	return codeOpenTag.Match(b)
}

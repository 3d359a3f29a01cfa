package analyzer

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ppiankov/wpspectre/internal/sanitize"
)

// DefaultPlaceholderMaxSize is the largest file still treated as a guard placeholder.
const DefaultPlaceholderMaxSize = 2048

var (
	placeholderNames = map[string]bool{"index.php": true, "index.html": true, "index.htm": true}
	benignGuard      = regexp.MustCompile(`(?i)silence\s+is\s+golden|\b(?:die|exit)\s*(?:\(|;)|defined\s*\(\s*['"](?:ABSPATH|WPINC)['"]\s*\)\s*(?:or|\|\|)\s*(?:die|exit)`)
)

// IsPlaceholderIndex reports whether a file is a conventional anti-listing
// guard: an index file no larger than maxSize whose head holds a benign
// guard idiom and no sink call.
func (a *Analyzer) IsPlaceholderIndex(name string, size int64, head []byte, maxSize int64) bool {
	if maxSize <= 0 {
		maxSize = DefaultPlaceholderMaxSize
	}
	if !placeholderNames[strings.ToLower(path.Base(filepath.ToSlash(name)))] || size > maxSize {
		return false
	}
	if !benignGuard.Match(head) {
		return false
	}
	return !a.HasSink(sanitize.PHP(head))
}

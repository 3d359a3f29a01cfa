package scanner

import (
	"bytes"
	"regexp"
	"strings"
)

var (
	commentBlock   = regexp.MustCompile(`(?s)/\*.*?\*/`)
	headerLine     = regexp.MustCompile(`^([A-Za-z \-]+)\s*:\s*(.+)$`)
	linePrefix     = regexp.MustCompile(`^\s*\*?\s?`)
	pluginNameMark = regexp.MustCompile(`(?i)Plugin\s+Name\s*:`)
	themeNameMark  = regexp.MustCompile(`(?i)Theme\s+Name\s*:`)
	executableCode = regexp.MustCompile(`(?i)\b(?:require|include|include_once|require_once|eval|return|echo|print|function|class|trait|interface|new|foreach|for|while|do|switch)\b|\bif\s*\(`)
)

// preamble matches the constructs allowed between the open tag and the
// plugin header block.
var preamble = []*regexp.Regexp{
	regexp.MustCompile(`^\s+`),
	regexp.MustCompile(`(?s)^/\*.*?\*/`),
	regexp.MustCompile(`^(?://|#)[^\n]*\n?`),
	regexp.MustCompile(`(?i)^declare\s*\(\s*strict_types\s*=\s*[01]\s*\)\s*;`),
	regexp.MustCompile(`^namespace\s+[A-Za-z_\x80-\xff][A-Za-z0-9_\\\x80-\xff]*\s*;`),
	regexp.MustCompile(`(?i)^use\s+(?:function\s+|const\s+)?[A-Za-z_\\\x80-\xff][A-Za-z0-9_\\,\s\x80-\xff]*(?:\s+as\s+[A-Za-z_\x80-\xff][A-Za-z0-9_\x80-\xff]*)?\s*;`),
	regexp.MustCompile(`(?i)^if\s*\(\s*!\s*defined\s*\(\s*['"](?:ABSPATH|WPINC)['"]\s*\)\s*\)\s*\{?\s*(?:exit|die)\s*(?:\(\s*[^)]*\))?\s*;\s*\}?`),
	regexp.MustCompile(`(?i)^defined\s*\(\s*['"](?:ABSPATH|WPINC)['"]\s*\)\s*(?:\|\||or)\s*(?:exit|die)\s*(?:\(\s*[^)]*\))?\s*;`),
}

// Header is a parsed file header: "Key: value" lines of a comment block.
type Header map[string]string

// Missing returns the keys absent or empty in h, in the given order.
func (h Header) Missing(keys ...string) []string {
	var out []string
	for _, k := range keys {
		if strings.TrimSpace(h[k]) == "" {
			out = append(out, k)
		}
	}
	return out
}

// ParseHeaderBlock reads "Key: value" pairs from one comment block. The
// first occurrence of a key wins.
func ParseHeaderBlock(block []byte) Header {
	h := Header{}
	text := strings.ReplaceAll(string(block), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(linePrefix.ReplaceAllString(line, ""))
		line = strings.TrimSpace(strings.TrimSuffix(line, "*/"))
		line = strings.TrimSpace(strings.TrimPrefix(line, "/*"))
		if line == "" || line[0] == '*' || line[0] == '/' {
			continue
		}
		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.TrimSpace(m[1])
		if _, seen := h[key]; !seen {
			h[key] = strings.TrimSpace(m[2])
		}
	}
	return h
}

// markedBlock returns the bounds of the first comment block at or after
// from that matches mark, or of the first block when mark never matches
// and fallback is set.
func markedBlock(buf []byte, from int, mark *regexp.Regexp, fallback bool) (int, int, bool) {
	blocks := commentBlock.FindAllIndex(buf[from:], -1)
	for _, b := range blocks {
		if mark.Match(buf[from+b[0] : from+b[1]]) {
			return from + b[0], from + b[1], true
		}
	}
	if fallback && len(blocks) > 0 {
		return from + blocks[0][0], from + blocks[0][1], true
	}
	return 0, 0, false
}

// ThemeHeader parses the header of a theme style.css.
func ThemeHeader(buf []byte) Header {
	start, end, ok := markedBlock(buf, 0, themeNameMark, true)
	if !ok {
		return Header{}
	}
	return ParseHeaderBlock(buf[start:end])
}

// HasPluginHeader reports whether buf holds a comment block naming a plugin.
func HasPluginHeader(buf []byte) bool {
	_, _, ok := markedBlock(buf, 0, pluginNameMark, false)
	return ok
}

// PluginHeader parses the header of a plugin main file: the comment block
// after the open tag that carries "Plugin Name:", else the first one.
func PluginHeader(buf []byte) Header {
	open := bytes.Index(buf, []byte("<?php"))
	if open < 0 {
		return Header{}
	}
	start, end, ok := markedBlock(buf, open, pluginNameMark, true)
	if !ok {
		return Header{}
	}
	return ParseHeaderBlock(buf[start:end])
}

// CodeBeforeHeader reports whether executable code precedes the plugin
// header block. Whitespace, comments, declare, namespace, use and ABSPATH
// guards are allowed before it. Files without a header are not judged.
func CodeBeforeHeader(buf []byte) bool {
	open := bytes.Index(buf, []byte("<?php"))
	if open < 0 {
		return false
	}
	win := buf[open:]
	headerAt, _, ok := markedBlock(win, 0, pluginNameMark, false)
	if !ok {
		return false
	}

	i := len("<?php")
	for i < headerAt {
		consumed := false
		for _, re := range preamble {
			if loc := re.FindIndex(win[i:headerAt]); loc != nil && loc[0] == 0 && loc[1] > 0 {
				i += loc[1]
				consumed = true
				break
			}
		}
		if !consumed {
			return executableCode.Match(win[i:headerAt])
		}
	}
	return false
}

// Package sanitize blanks PHP comments and string literals so that pattern
// matching only sees executable code. Output always has the input's length;
// blanked bytes become spaces and newlines are kept.
package sanitize

import "bytes"

// Views holds the three text views computed once per scanned item.
type Views struct {
	// Raw is the content as read.
	Raw []byte
	// Code has comments blanked but string literals kept.
	Code []byte
	// Sanitized has comments and string literals blanked.
	Sanitized []byte
}

// NewViews computes every view of src.
func NewViews(src []byte) Views {
	return Views{
		Raw:       src,
		Code:      Comments(src),
		Sanitized: PHP(src),
	}
}

// PHP blanks comment and string-literal bodies. Simple $name interpolations
// inside double-quoted, backtick and heredoc strings are kept because PHP
// evaluates them. Input without a PHP open tag is returned unchanged.
func PHP(src []byte) []byte {
	return lex(src, true)
}

// Comments blanks comments only.
func Comments(src []byte) []byte {
	return lex(src, false)
}

type lexer struct {
	src          []byte
	out          []byte
	i            int
	blankStrings bool
}

func lex(src []byte, blankStrings bool) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	if openTag(src, 0) < 0 {
		return out
	}
	l := &lexer{src: src, out: out, blankStrings: blankStrings}
	l.run()
	return l.out
}

// openTag returns the index just past the next PHP open tag at or after
// from, or -1.
func openTag(src []byte, from int) int {
	for i := from; i+1 < len(src); i++ {
		if src[i] != '<' || src[i+1] != '?' {
			continue
		}
		rest := src[i+2:]
		switch {
		case len(rest) >= 3 && bytes.EqualFold(rest[:3], []byte("php")):
			if len(rest) == 3 || isSpace(rest[3]) {
				return i + 5
			}
		case len(rest) >= 1 && rest[0] == '=':
			return i + 3
		case len(rest) == 0 || isSpace(rest[0]):
			return i + 2
		}
	}
	return -1
}

func (l *lexer) run() {
	n := len(l.src)
	for l.i < n {
		next := openTag(l.src, l.i)
		if next < 0 {
			return
		}
		l.i = next
		l.code()
	}
}

// code consumes PHP code until a close tag or end of input.
func (l *lexer) code() {
	src := l.src
	n := len(src)
	for l.i < n {
		c := src[l.i]
		switch {
		case c == '?' && l.i+1 < n && src[l.i+1] == '>':
			l.i += 2
			return
		case c == '#' && l.i+1 < n && src[l.i+1] == '[':
			l.i += 2
		case c == '#':
			l.lineComment(l.i + 1)
		case c == '/' && l.i+1 < n && src[l.i+1] == '/':
			l.lineComment(l.i + 2)
		case c == '/' && l.i+1 < n && src[l.i+1] == '*':
			l.blockComment()
		case c == '\'':
			l.quoted('\'', false)
		case c == '"':
			l.quoted('"', true)
		case c == '`':
			l.quoted('`', true)
		case c == '<' && bytes.HasPrefix(src[l.i:], []byte("<<<")):
			if !l.heredoc() {
				l.i++
			}
		default:
			l.i++
		}
	}
}

// lineComment blanks from the comment marker to the end of line or a close tag.
func (l *lexer) lineComment(body int) {
	start := l.i
	j := body
	for j < len(l.src) {
		if l.src[j] == '\n' {
			break
		}
		if l.src[j] == '?' && j+1 < len(l.src) && l.src[j+1] == '>' {
			break
		}
		j++
	}
	l.blank(start, j, false)
	l.i = j
}

func (l *lexer) blockComment() {
	start := l.i
	end := bytes.Index(l.src[l.i+2:], []byte("*/"))
	if end < 0 {
		l.blank(start, len(l.src), false)
		l.i = len(l.src)
		return
	}
	stop := l.i + 2 + end + 2
	l.blank(start, stop, false)
	l.i = stop
}

// quoted handles a string delimited by q. Delimiters are kept; the body is
// blanked when string blanking is on.
func (l *lexer) quoted(q byte, interpolates bool) {
	bodyStart := l.i + 1
	j := bodyStart
	for j < len(l.src) {
		c := l.src[j]
		if c == '\\' {
			j += 2
			continue
		}
		if c == q {
			break
		}
		j++
	}
	if j >= len(l.src) {
		if l.blankStrings {
			l.blank(bodyStart, len(l.src), interpolates)
		}
		l.i = len(l.src)
		return
	}
	if l.blankStrings {
		l.blank(bodyStart, j, interpolates)
	}
	l.i = j + 1
}

// heredoc handles <<<ID, <<<"ID" and nowdoc <<<'ID'. It returns false when
// the text at l.i is not a valid heredoc opener.
func (l *lexer) heredoc() bool {
	src := l.src
	j := l.i + 3
	for j < len(src) && (src[j] == ' ' || src[j] == '\t') {
		j++
	}
	nowdoc := false
	quote := byte(0)
	if j < len(src) && (src[j] == '\'' || src[j] == '"') {
		quote = src[j]
		nowdoc = quote == '\''
		j++
	}
	idStart := j
	for j < len(src) && isIdent(src[j], j == idStart) {
		j++
	}
	if j == idStart {
		return false
	}
	id := src[idStart:j]
	if quote != 0 {
		if j >= len(src) || src[j] != quote {
			return false
		}
		j++
	}
	if j < len(src) && src[j] == '\r' {
		j++
	}
	if j >= len(src) || src[j] != '\n' {
		return false
	}
	bodyStart := j + 1

	// The closing identifier sits at the start of a line, optionally indented,
	// and is not followed by another identifier character.
	k := bodyStart
	for k < len(src) {
		lineStart := k
		p := k
		for p < len(src) && (src[p] == ' ' || src[p] == '\t') {
			p++
		}
		if bytes.HasPrefix(src[p:], id) {
			after := p + len(id)
			if after >= len(src) || !isIdent(src[after], false) {
				if l.blankStrings {
					l.blank(bodyStart, lineStart, !nowdoc)
				}
				l.i = after
				return true
			}
		}
		nl := bytes.IndexByte(src[k:], '\n')
		if nl < 0 {
			break
		}
		k += nl + 1
	}
	if l.blankStrings {
		l.blank(bodyStart, len(src), !nowdoc)
	}
	l.i = len(src)
	return true
}

// blank replaces out[from:to] with spaces, keeping line breaks and, when
// keepVars is set, simple $name variable references.
func (l *lexer) blank(from, to int, keepVars bool) {
	if to > len(l.out) {
		to = len(l.out)
	}
	for k := from; k < to; k++ {
		c := l.src[k]
		if keepVars && c == '$' && k+1 < to && isIdent(l.src[k+1], true) {
			k++
			for k+1 < to && isIdent(l.src[k+1], false) {
				k++
			}
			continue
		}
		if c == '\n' || c == '\r' {
			continue
		}
		l.out[k] = ' '
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdent(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= 0x80:
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

package analyzer

import "strings"

// Call is one captured call expression. Args is the text between the
// parentheses, or up to the statement end for paren-less language
// constructs such as include.
type Call struct {
	Name   string
	Start  int
	Args   []byte
	ArgOff int
}

var parenless = map[string]bool{
	"include": true, "include_once": true, "require": true, "require_once": true,
}

// Calls returns every call in text whose lower-cased name is in names, in
// source order. Method and static calls are ignored. Argument lists are
// captured by tracking parenthesis depth, so text should be the sanitized
// view where string literals cannot unbalance the count.
func Calls(text []byte, names map[string]bool) []Call {
	var calls []Call
	n := len(text)
	for i := 0; i < n; {
		if !identStart(text[i]) || (i > 0 && blocksCall(text[i-1])) {
			i++
			continue
		}
		j := i + 1
		for j < n && identPart(text[j]) {
			j++
		}
		name := strings.ToLower(string(text[i:j]))
		if !names[name] {
			i = j
			continue
		}
		k := skipSpace(text, j)
		switch {
		case k < n && text[k] == '(':
			end := closeParen(text, k)
			calls = append(calls, Call{Name: name, Start: i, Args: text[k+1 : end], ArgOff: k + 1})
		case parenless[name]:
			end := statementEnd(text, k)
			calls = append(calls, Call{Name: name, Start: i, Args: text[k:end], ArgOff: k})
		}
		i = j
	}
	return calls
}

// closeParen returns the index of the parenthesis matching text[open], or
// len(text) when the call is unterminated.
func closeParen(text []byte, open int) int {
	depth := 0
	for k := open; k < len(text); k++ {
		switch text[k] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return len(text)
}

func statementEnd(text []byte, from int) int {
	for k := from; k < len(text); k++ {
		if text[k] == ';' || text[k] == '?' && k+1 < len(text) && text[k+1] == '>' {
			return k
		}
	}
	return len(text)
}

func skipSpace(text []byte, k int) int {
	for k < len(text) && (text[k] == ' ' || text[k] == '\t' || text[k] == '\n' || text[k] == '\r') {
		k++
	}
	return k
}

// blocksCall reports whether a byte before an identifier makes it something
// other than a plain function call: part of a longer name, a variable, or a
// method/static call.
func blocksCall(c byte) bool {
	return identPart(c) || c == '$' || c == '>' || c == ':'
}

func identStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func identPart(c byte) bool {
	return identStart(c) || c >= '0' && c <= '9'
}

func nameSet(lists ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, l := range lists {
		for _, n := range l {
			set[strings.ToLower(n)] = true
		}
	}
	return set
}

package patterns

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// DangerousSVG reports whether head holds an SVG document carrying script
// content: a script element, an inline event handler, or a data:/javascript:
// URI in a link or source attribute.
func DangerousSVG(head []byte) bool {
	if !bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return false
	}
	z := html.NewTokenizer(bytes.NewReader(head))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			if t.Data == "script" {
				return true
			}
			for _, a := range t.Attr {
				if dangerousAttr(a.Key, a.Val) {
					return true
				}
			}
		}
	}
}

func dangerousAttr(key, val string) bool {
	key = strings.ToLower(key)
	if len(key) > 2 && strings.HasPrefix(key, "on") {
		return true
	}
	v := strings.ToLower(strings.TrimSpace(val))
	switch key {
	case "href", "xlink:href":
		return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "data:")
	case "src":
		return strings.HasPrefix(v, "javascript:")
	}
	return false
}

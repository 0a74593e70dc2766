package fetcher

import (
	"bytes"
	"unicode"

	"golang.org/x/net/html"
)

// spaRoots are mount points that frameworks leave empty in the served HTML.
var spaRoots = map[string]bool{"root": true, "app": true, "__next": true, "__nuxt": true}

// IsSufficient reports whether server-rendered HTML carries enough visible
// text that the browser path would add nothing. A page needs at least 200
// visible characters, at least 10% text against markup, and no empty SPA
// mount point.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	text, markup, shell := scan(body)
	if shell || text < 200 {
		return false
	}
	return float64(text)/float64(text+markup) >= 0.10
}

// scan tokenises body and counts non-space text runes outside script and
// style against the bytes of every other token. shell is set when an
// element with an SPA mount id is immediately closed.
func scan(body []byte) (text, markup int, shell bool) {
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	pendingRoot := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return text, markup, shell
		}
		raw := len(z.Raw())
		switch tt {
		case html.TextToken:
			if skip > 0 {
				markup += raw
				break
			}
			for _, r := range string(z.Text()) {
				if !unicode.IsSpace(r) {
					text++
				}
			}
		case html.StartTagToken:
			markup += raw
			name, hasAttr := z.TagName()
			pendingRoot = false
			switch string(name) {
			case "script", "style", "noscript", "template":
				skip++
			}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				if string(k) == "id" && spaRoots[string(v)] {
					pendingRoot = true
				}
			}
			continue
		case html.EndTagToken:
			markup += raw
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript", "template":
				if skip > 0 {
					skip--
				}
			}
			if pendingRoot {
				shell = true
			}
		default:
			markup += raw
		}
		pendingRoot = false
	}
}

package cascade

import (
	"strings"

	"golang.org/x/net/html"
)

type combinator int

const (
	descendant combinator = iota
	child
)

// compound is one simple-selector sequence: tag, #id, .class, [attr=val].
type compound struct {
	tag     string // "" or "*" matches any element
	id      string
	classes []string
	attrs   []attrMatch
}

type attrMatch struct {
	key    string
	val    string
	hasVal bool
}

// selector is a chain of compounds; parts[len-1] is the subject.
// combs[i] joins parts[i-1] and parts[i]; combs[0] is unused.
type selector struct {
	raw   string
	parts []compound
	combs []combinator
}

type specificity [3]int

func (a specificity) less(b specificity) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// parseSelector parses "div.card > p", ".hero h1", "#main", "[data-x=1]".
// Sibling combinators and pseudo-classes are not supported.
func parseSelector(raw string) (selector, bool) {
	raw = strings.TrimSpace(raw)
	sel := selector{raw: raw}
	if raw == "" || strings.ContainsAny(raw, "+~:") {
		return sel, false
	}

	fields := strings.Fields(strings.ReplaceAll(raw, ">", " > "))
	next := descendant
	for _, f := range fields {
		if f == ">" {
			if len(sel.parts) == 0 {
				return sel, false
			}
			next = child
			continue
		}
		c, ok := parseCompound(f)
		if !ok {
			return sel, false
		}
		sel.parts = append(sel.parts, c)
		sel.combs = append(sel.combs, next)
		next = descendant
	}
	if len(sel.parts) == 0 || next == child {
		return sel, false
	}
	return sel, true
}

func parseCompound(s string) (compound, bool) {
	var c compound
	i := 0
	for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
		i++
	}
	c.tag = strings.ToLower(s[:i])

	for i < len(s) {
		switch s[i] {
		case '#', '.':
			kind := s[i]
			j := i + 1
			for j < len(s) && s[j] != '#' && s[j] != '.' && s[j] != '[' {
				j++
			}
			name := s[i+1 : j]
			if name == "" {
				return c, false
			}
			if kind == '#' {
				c.id = name
			} else {
				c.classes = append(c.classes, name)
			}
			i = j
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return c, false
			}
			body := s[i+1 : i+end]
			var a attrMatch
			if eq := strings.IndexByte(body, '='); eq >= 0 {
				a.key = strings.ToLower(strings.TrimSpace(body[:eq]))
				a.val = strings.Trim(strings.TrimSpace(body[eq+1:]), `"'`)
				a.hasVal = true
			} else {
				a.key = strings.ToLower(strings.TrimSpace(body))
			}
			if a.key == "" {
				return c, false
			}
			c.attrs = append(c.attrs, a)
			i += end + 1
		default:
			return c, false
		}
	}
	return c, true
}

func (s selector) specificity() specificity {
	var sp specificity
	for _, c := range s.parts {
		if c.id != "" {
			sp[0]++
		}
		sp[1] += len(c.classes) + len(c.attrs)
		if c.tag != "" && c.tag != "*" {
			sp[2]++
		}
	}
	return sp
}

func (s selector) matches(n *html.Node) bool {
	return s.matchAt(n, len(s.parts)-1)
}

func (s selector) matchAt(n *html.Node, i int) bool {
	if !s.parts[i].matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	if s.combs[i] == child {
		p := parentElement(n)
		return p != nil && s.matchAt(p, i-1)
	}
	for p := parentElement(n); p != nil; p = parentElement(p) {
		if s.matchAt(p, i-1) {
			return true
		}
	}
	return false
}

func (c compound) matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && getAttr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(getAttr(n, "class"))
		for _, want := range c.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		if !hasAttr(n, a.key) {
			return false
		}
		if a.hasVal && getAttr(n, a.key) != a.val {
			return false
		}
	}
	return true
}

func parentElement(n *html.Node) *html.Node {
	p := n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return p
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

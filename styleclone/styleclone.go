// Package styleclone produces detached copies of HTML documents whose
// elements carry, as inline styles, selected computed style properties of
// the corresponding source elements. The copy renders like the original
// once it is cut off from the original stylesheets.
//
// Source and clone are paired by position only: the walk descends both
// trees in lock-step from <body>, matching element children by index.
package styleclone

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoDocumentElement is returned when the input has no <html> element to
// serialise.
var ErrNoDocumentElement = errors.New("styleclone: no document element")

// Rule names one computed style property to copy. When Exclude is set and
// matches the computed value, the property is not copied.
type Rule struct {
	Property string
	Exclude  *regexp.Regexp
}

// DefaultRules copies background-image unless it resolves to "none".
func DefaultRules() []Rule {
	return []Rule{
		{Property: "background-image", Exclude: regexp.MustCompile(`^none$`)},
	}
}

// Properties returns the property names of rules, in order.
func Properties(rules []Rule) []string {
	props := make([]string, len(rules))
	for i, r := range rules {
		props[i] = r.Property
	}
	return props
}

// Resolver reports the computed value of a style property on a source node.
// An empty string means "no value" and the property is skipped.
type Resolver interface {
	ComputedStyle(n *html.Node, property string) string
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(n *html.Node, property string) string

func (f ResolverFunc) ComputedStyle(n *html.Node, property string) string {
	return f(n, property)
}

// Report counts the work done by one clone.
type Report struct {
	Visited int // (source, clone) element pairs walked
	Styled  int // clone elements that received at least one inline value
}

// Clone deep-copies doc and inlines the computed styles named by rules on
// every element reachable in lock-step from <body>. A nil rules slice means
// DefaultRules. doc is never modified.
//
// A document without <body> is still copied; there is simply nothing to
// walk.
func Clone(doc *html.Node, res Resolver, rules []Rule) (*html.Node, error) {
	clone, _, err := CloneReport(doc, res, rules)
	return clone, err
}

// CloneReport is Clone with a count of visited and styled elements.
func CloneReport(doc *html.Node, res Resolver, rules []Rule) (*html.Node, Report, error) {
	var rep Report
	if doc == nil {
		return nil, rep, fmt.Errorf("styleclone: nil document")
	}
	if rules == nil {
		rules = DefaultRules()
	}

	clone := DeepCopy(doc)

	srcBody := FindBody(doc)
	dstBody := FindBody(clone)
	if srcBody == nil || dstBody == nil || res == nil {
		return clone, rep, nil
	}

	copyStyles(srcBody, dstBody, res, rules, &rep)
	return clone, rep, nil
}

// CloneHTML runs Clone and returns the outer HTML of the clone's document
// element.
func CloneHTML(doc *html.Node, res Resolver, rules []Rule) (string, error) {
	clone, err := Clone(doc, res, rules)
	if err != nil {
		return "", err
	}
	return OuterHTML(clone)
}

// OuterHTML renders the <html> element of doc.
func OuterHTML(doc *html.Node) (string, error) {
	root := DocumentElement(doc)
	if root == nil {
		return "", ErrNoDocumentElement
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("styleclone: render: %w", err)
	}
	return buf.String(), nil
}

// copyStyles applies rules to one (source, clone) pair and recurses into
// element children present at the same index in both trees.
func copyStyles(src, dst *html.Node, res Resolver, rules []Rule, rep *Report) {
	rep.Visited++
	styled := false
	for _, r := range rules {
		val := res.ComputedStyle(src, r.Property)
		if val == "" {
			continue
		}
		if r.Exclude != nil && r.Exclude.MatchString(val) {
			continue
		}
		SetInlineStyle(dst, r.Property, val)
		styled = true
	}
	if styled {
		rep.Styled++
	}

	s, d := firstElementChild(src), firstElementChild(dst)
	for s != nil && d != nil {
		copyStyles(s, d, res, rules, rep)
		s, d = nextElementSibling(s), nextElementSibling(d)
	}
}

// DeepCopy returns a detached copy of the subtree rooted at n: every node,
// attribute and text value.
func DeepCopy(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
	}
	if len(n.Attr) > 0 {
		c.Attr = make([]html.Attribute, len(n.Attr))
		copy(c.Attr, n.Attr)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(DeepCopy(child))
	}
	return c
}

// DocumentElement returns the <html> element of a parsed document, or n
// itself when n already is that element.
func DocumentElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == atom.Html {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return c
		}
	}
	return nil
}

// FindBody returns the <body> element of a parsed document.
func FindBody(doc *html.Node) *html.Node {
	root := DocumentElement(doc)
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Body {
			return c
		}
	}
	return nil
}

func firstElementChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func nextElementSibling(n *html.Node) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

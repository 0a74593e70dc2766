// Package cascade computes style values for a parsed HTML document without a
// browser. It reads <style> elements, linked stylesheets supplied by the
// caller and style attributes, applies the cascade (importance, inline,
// specificity, source order) and inheritance, and answers lookups through
// the styleclone.Resolver interface. The background shorthand is read as a
// source of background-image.
//
// Only what can be decided statically is supported: simple, descendant and
// child selectors. @media and other at-rule blocks are ignored, so the
// result approximates a desktop browser with no matching media queries.
package cascade

import (
	"bytes"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/sidekick/styleclone"
)

// DefaultInherited lists the properties that inherit from the parent
// element when no rule sets them.
var DefaultInherited = []string{
	"color", "cursor", "direction", "font", "font-family", "font-size",
	"font-style", "font-variant", "font-weight", "letter-spacing",
	"line-height", "list-style", "list-style-image", "list-style-position",
	"list-style-type", "text-align", "text-indent", "text-transform",
	"visibility", "white-space", "word-spacing",
}

// SheetLoader returns the CSS text of a linked stylesheet, or false when it
// is unavailable.
type SheetLoader func(href string) (string, bool)

type rule struct {
	sel   selector
	spec  specificity
	order int
	decls []styleclone.Declaration
}

// Resolver answers computed-style lookups for one document. It is safe for
// concurrent use.
type Resolver struct {
	rules     []rule
	inherited map[string]bool
	base      *url.URL
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[*html.Node]map[string]string
}

// Option configures a Resolver.
type Option func(*config)

type config struct {
	loader    SheetLoader
	inherited []string
	base      *url.URL
	logger    *slog.Logger
	extra     []string
}

// WithSheetLoader resolves <link rel="stylesheet"> elements through fn.
func WithSheetLoader(fn SheetLoader) Option {
	return func(c *config) { c.loader = fn }
}

// WithInherited replaces the inherited property list.
func WithInherited(props ...string) Option {
	return func(c *config) { c.inherited = props }
}

// WithBaseURL makes url() references in computed values absolute.
func WithBaseURL(u *url.URL) Option {
	return func(c *config) { c.base = u }
}

// WithStylesheet appends CSS text after every sheet found in the document.
func WithStylesheet(cssText string) Option {
	return func(c *config) { c.extra = append(c.extra, cssText) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// New collects the stylesheets of doc in document order and returns a
// Resolver for it.
func New(doc *html.Node, opts ...Option) *Resolver {
	cfg := config{inherited: DefaultInherited, logger: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}

	r := &Resolver{
		inherited: make(map[string]bool, len(cfg.inherited)),
		base:      cfg.base,
		logger:    cfg.logger,
		cache:     make(map[*html.Node]map[string]string),
	}
	for _, p := range cfg.inherited {
		r.inherited[p] = true
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Style:
				r.addSheet(textContent(n), r.base)
			case atom.Link:
				if isStylesheetLink(n) && cfg.loader != nil {
					href := getAttr(n, "href")
					if text, ok := cfg.loader(href); ok {
						r.addSheet(text, r.sheetBase(href))
					} else {
						r.logger.Debug("cascade: stylesheet unavailable", "href", href)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if doc != nil {
		walk(doc)
	}
	for _, text := range cfg.extra {
		r.addSheet(text, r.base)
	}
	return r
}

// Rules returns the number of style rules collected.
func (r *Resolver) Rules() int {
	return len(r.rules)
}

// ComputedStyle implements styleclone.Resolver.
func (r *Resolver) ComputedStyle(n *html.Node, property string) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	property = strings.ToLower(property)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.computeLocked(n, property)
}

func (r *Resolver) computeLocked(n *html.Node, property string) string {
	if vals, ok := r.cache[n]; ok {
		if v, ok := vals[property]; ok {
			return v
		}
	}

	val, found := r.cascaded(n, property)
	switch {
	case found && strings.EqualFold(val, "inherit"):
		val = r.parentValue(n, property)
	case found && strings.EqualFold(val, "unset"):
		val = ""
		if r.inherited[property] {
			val = r.parentValue(n, property)
		}
	case found && strings.EqualFold(val, "initial"):
		val = ""
	case !found && r.inherited[property]:
		val = r.parentValue(n, property)
	}
	val = absolutize(r.base, val)

	if r.cache[n] == nil {
		r.cache[n] = make(map[string]string)
	}
	r.cache[n][property] = val
	return val
}

func (r *Resolver) parentValue(n *html.Node, property string) string {
	p := parentElement(n)
	if p == nil {
		return ""
	}
	return r.computeLocked(p, property)
}

// cascaded returns the winning declared value of property on n.
func (r *Resolver) cascaded(n *html.Node, property string) (string, bool) {
	type candidate struct {
		important bool
		inline    bool
		spec      specificity
		order     int
		value     string
	}
	var best *candidate
	better := func(c candidate) bool {
		if best == nil {
			return true
		}
		if c.important != best.important {
			return c.important
		}
		if c.inline != best.inline {
			return c.inline
		}
		if c.spec != best.spec {
			return best.spec.less(c.spec)
		}
		return c.order >= best.order
	}

	for _, rl := range r.rules {
		if !rl.sel.matches(n) {
			continue
		}
		for _, d := range rl.decls {
			if d.Property != property {
				continue
			}
			c := candidate{important: d.Important, spec: rl.spec, order: rl.order, value: d.Value}
			if better(c) {
				best = &c
			}
		}
	}

	for i, d := range expandShorthands(styleclone.ParseDeclarations(getAttr(n, "style"))) {
		if d.Property != property {
			continue
		}
		c := candidate{important: d.Important, inline: true, order: len(r.rules) + i, value: d.Value}
		if better(c) {
			best = &c
		}
	}

	if best == nil {
		return "", false
	}
	return best.value, true
}

// sheetBase is the URL relative references inside a linked sheet resolve
// against: the sheet's own location.
func (r *Resolver) sheetBase(href string) *url.URL {
	if r.base == nil {
		return nil
	}
	u, err := r.base.Parse(href)
	if err != nil {
		return r.base
	}
	return u
}

// addSheet parses CSS text and appends its rules, with url() references
// resolved against base. At-rule blocks are skipped.
func (r *Resolver) addSheet(text string, base *url.URL) {
	p := css.NewParser(parse.NewInput(bytes.NewReader([]byte(text))), false)
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if p.Err() != nil {
				return
			}
		case css.BeginAtRuleGrammar:
			skipAtRuleBlock(p)
		case css.BeginRulesetGrammar:
			selectors := splitSelectors(data, p.Values())
			decls := expandShorthands(collectDeclarations(p))
			if len(decls) == 0 {
				continue
			}
			for i := range decls {
				decls[i].Value = absolutize(base, decls[i].Value)
			}
			for _, raw := range selectors {
				sel, ok := parseSelector(raw)
				if !ok {
					r.logger.Debug("cascade: unsupported selector", "selector", raw)
					continue
				}
				r.rules = append(r.rules, rule{
					sel:   sel,
					spec:  sel.specificity(),
					order: len(r.rules),
					decls: decls,
				})
			}
		}
	}
}

func skipAtRuleBlock(p *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if p.Err() != nil {
				return
			}
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}

func collectDeclarations(p *css.Parser) []styleclone.Declaration {
	var decls []styleclone.Declaration
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if p.Err() != nil {
				return decls
			}
		case css.EndRulesetGrammar:
			return decls
		case css.DeclarationGrammar:
			raw := styleclone.RawValue(p.Values())
			d := styleclone.Declaration{Property: strings.ToLower(string(data)), Value: raw}
			if i := strings.LastIndexByte(raw, '!'); i >= 0 && strings.EqualFold(strings.TrimSpace(raw[i+1:]), "important") {
				d.Value = strings.TrimSpace(raw[:i])
				d.Important = true
			}
			if d.Value != "" {
				decls = append(decls, d)
			}
		}
	}
}

func splitSelectors(data []byte, values []css.Token) []string {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
	}
	var out []string
	for _, s := range strings.Split(sb.String(), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var urlRef = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s]*))\s*\)`)

// absolutize rewrites url() references against base, quoting them the way
// browsers report computed values. Absolute references are kept as is.
func absolutize(base *url.URL, val string) string {
	if base == nil || !strings.Contains(val, "url(") {
		return val
	}
	return urlRef.ReplaceAllStringFunc(val, func(m string) string {
		sub := urlRef.FindStringSubmatch(m)
		ref := sub[1] + sub[2] + sub[3]
		if ref == "" || strings.HasPrefix(ref, "data:") {
			return m
		}
		u, err := base.Parse(ref)
		if err != nil {
			return m
		}
		return `url("` + u.String() + `")`
	})
}

func isStylesheetLink(n *html.Node) bool {
	for _, rel := range strings.Fields(strings.ToLower(getAttr(n, "rel"))) {
		if rel == "stylesheet" {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

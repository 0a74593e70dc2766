package styleclone

import (
	"bytes"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"golang.org/x/net/html"
)

// Declaration is one "property: value" pair of a style attribute or rule.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

func (d Declaration) String() string {
	if d.Important {
		return d.Property + ": " + d.Value + " !important;"
	}
	return d.Property + ": " + d.Value + ";"
}

// ParseDeclarations parses the body of a style attribute. Property names are
// lowercased (custom properties keep their case). Malformed declarations are
// skipped.
func ParseDeclarations(style string) []Declaration {
	if strings.TrimSpace(style) == "" {
		return nil
	}
	p := css.NewParser(parse.NewInput(bytes.NewReader([]byte(style))), true)
	return collectDeclarations(p, false)
}

// collectDeclarations reads declarations until the input ends or, when
// inRuleset is set, until the closing brace of the current ruleset.
func collectDeclarations(p *css.Parser, inRuleset bool) []Declaration {
	var decls []Declaration
	for {
		gt, _, data := p.Next()
		switch gt {
		case css.ErrorGrammar:
			if p.Err() != nil {
				return decls
			}
		case css.EndRulesetGrammar:
			if inRuleset {
				return decls
			}
		case css.DeclarationGrammar:
			if d, ok := newDeclaration(strings.ToLower(string(data)), p.Values()); ok {
				decls = append(decls, d)
			}
		case css.CustomPropertyGrammar:
			if d, ok := newDeclaration(string(data), p.Values()); ok {
				decls = append(decls, d)
			}
		}
	}
}

func newDeclaration(prop string, tokens []css.Token) (Declaration, bool) {
	raw := RawValue(tokens)
	important := false
	if i := strings.LastIndexByte(raw, '!'); i >= 0 {
		if strings.EqualFold(strings.TrimSpace(raw[i+1:]), "important") {
			important = true
			raw = strings.TrimSpace(raw[:i])
		}
	}
	if prop == "" || raw == "" {
		return Declaration{}, false
	}
	return Declaration{Property: prop, Value: raw, Important: important}, true
}

// RawValue rebuilds a declaration value from its tokens, collapsing runs of
// whitespace into one space.
func RawValue(tokens []css.Token) string {
	var parts []string
	for _, t := range tokens {
		if t.TokenType != css.WhitespaceToken {
			parts = append(parts, string(t.Data))
		} else if len(parts) > 0 {
			parts = append(parts, " ")
		}
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}

// InlineStyle returns the inline value of property on n, or "".
func InlineStyle(n *html.Node, property string) string {
	property = strings.ToLower(property)
	val := ""
	for _, d := range ParseDeclarations(attr(n, "style")) {
		if d.Property == property {
			val = d.Value
		}
	}
	return val
}

// SetInlineStyle sets property on n's style attribute. The first
// declaration of property is replaced in place and later ones are removed.
// Every other declaration keeps its original text, including ones the CSS
// parser rejects; only the separators between declarations are rewritten
// as "; ".
func SetInlineStyle(n *html.Node, property, value string) {
	property = strings.ToLower(property)
	set := Declaration{Property: property, Value: value}.String()

	var out []string
	replaced := false
	for _, seg := range splitDeclarations(attr(n, "style")) {
		decls := ParseDeclarations(seg)
		if len(decls) != 1 || decls[0].Property != property {
			out = append(out, seg)
			continue
		}
		if !replaced {
			out = append(out, strings.TrimSuffix(set, ";"))
			replaced = true
		}
	}
	if !replaced {
		out = append(out, strings.TrimSuffix(set, ";"))
	}
	setAttr(n, "style", strings.Join(out, "; ")+";")
}

// splitDeclarations cuts a style attribute at top-level semicolons and
// returns the trimmed, non-empty pieces verbatim. Semicolons inside
// strings, url() and other functions do not split.
func splitDeclarations(style string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
	)
	flush := func() {
		if seg := strings.TrimSpace(cur.String()); seg != "" {
			out = append(out, seg)
		}
		cur.Reset()
	}
	l := css.NewLexer(parse.NewInputString(style))
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		switch tt {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken, css.LeftBraceToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken, css.RightBraceToken:
			if depth > 0 {
				depth--
			}
		case css.SemicolonToken:
			if depth == 0 {
				flush()
				continue
			}
		}
		cur.Write(data)
	}
	flush()
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key && a.Namespace == "" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

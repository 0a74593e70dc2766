package cascade

import (
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/hazyhaar/sidekick/styleclone"
)

// imageFuncs are the functional notations that produce a background image.
// url() references arrive as URL tokens.
var imageFuncs = map[string]bool{
	"image":                     true,
	"image-set":                 true,
	"-webkit-image-set":         true,
	"cross-fade":                true,
	"element":                   true,
	"-moz-element":              true,
	"linear-gradient":           true,
	"radial-gradient":           true,
	"conic-gradient":            true,
	"repeating-linear-gradient": true,
	"repeating-radial-gradient": true,
	"repeating-conic-gradient":  true,
	"-webkit-linear-gradient":   true,
	"-webkit-radial-gradient":   true,
}

// expandShorthands inserts the background-image longhand right after each
// background shorthand, with the same importance. Position in the list is
// the source order, so a later longhand still overrides the shorthand and
// the other way round.
func expandShorthands(decls []styleclone.Declaration) []styleclone.Declaration {
	n := 0
	for _, d := range decls {
		if d.Property == "background" {
			n++
		}
	}
	if n == 0 {
		return decls
	}
	out := make([]styleclone.Declaration, 0, len(decls)+n)
	for _, d := range decls {
		out = append(out, d)
		if d.Property == "background" {
			out = append(out, styleclone.Declaration{
				Property:  "background-image",
				Value:     backgroundImage(d.Value),
				Important: d.Important,
			})
		}
	}
	return out
}

// backgroundImage extracts the image layers of a background shorthand
// value. Layers without an image are "none", as browsers report them.
//
//	backgroundImage("#fff url(x.png) no-repeat") == "url(x.png)"
//	backgroundImage("url(a.png), linear-gradient(red, blue)") == "url(a.png), linear-gradient(red, blue)"
func backgroundImage(value string) string {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "inherit", "initial", "unset", "revert":
		return v
	}

	var (
		layers  []string
		current string
		fn      strings.Builder
		depth   int
		capture bool
	)
	l := css.NewLexer(parse.NewInputString(value))
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		if capture {
			fn.Write(data)
		}
		switch tt {
		case css.FunctionToken:
			name := strings.ToLower(strings.TrimSuffix(string(data), "("))
			if depth == 0 && current == "" && imageFuncs[name] {
				capture = true
				fn.Reset()
				fn.Write(data)
			}
			depth++
		case css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
			if capture && depth == 0 {
				current = fn.String()
				capture = false
			}
		case css.URLToken:
			if depth == 0 && current == "" {
				current = string(data)
			}
		case css.CommaToken:
			if depth == 0 {
				layers = append(layers, layerImage(current))
				current = ""
			}
		}
	}
	layers = append(layers, layerImage(current))
	return strings.Join(layers, ", ")
}

func layerImage(img string) string {
	if img == "" {
		return "none"
	}
	return img
}

package pagecopy

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/sidekick/styleclone"
)

// newSanitizer returns the UGC policy widened to keep the attributes a
// style-preserving copy depends on.
func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("style", "class", "id").Globally()
	return p
}

func newMarkdown() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// sanitize rewrites the body of doc through policy and drops scripts from
// the head. The document element, head and body survive so the output is
// still a full document.
func sanitize(policy *bluemonday.Policy, doc *html.Node) error {
	if root := styleclone.DocumentElement(doc); root != nil {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Head {
				dropElements(c, atom.Script, atom.Noscript, atom.Base)
			}
		}
	}

	body := styleclone.FindBody(doc)
	if body == nil {
		return nil
	}
	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return err
		}
	}
	clean := policy.Sanitize(buf.String())

	nodes, err := html.ParseFragment(strings.NewReader(clean), body)
	if err != nil {
		return err
	}
	for c := body.FirstChild; c != nil; {
		next := c.NextSibling
		body.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return nil
}

func dropElements(n *html.Node, atoms ...atom.Atom) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			for _, a := range atoms {
				if c.DataAtom == a {
					n.RemoveChild(c)
					break
				}
			}
		}
		c = next
	}
}

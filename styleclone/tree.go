package styleclone

import (
	"golang.org/x/net/html"
)

// StyleTree holds computed style values captured from a live document,
// shaped like its element tree from <body> down. Values[i] is the value of
// the i-th requested property; Children are the element children in order.
type StyleTree struct {
	Values   []string     `json:"s"`
	Children []*StyleTree `json:"c,omitempty"`
}

// Count returns the number of elements in the tree.
func (t *StyleTree) Count() int {
	if t == nil {
		return 0
	}
	n := 1
	for _, c := range t.Children {
		n += c.Count()
	}
	return n
}

// TreeResolver answers computed-style lookups from a StyleTree paired with a
// parsed document. Elements outside the pairing resolve to "".
type TreeResolver struct {
	props  map[string]int
	values map[*html.Node][]string
}

// NewTreeResolver pairs tree with the <body> of doc by child index, the same
// way Clone walks. props gives the property order used in tree.Values.
func NewTreeResolver(doc *html.Node, props []string, tree *StyleTree) *TreeResolver {
	r := &TreeResolver{
		props:  make(map[string]int, len(props)),
		values: make(map[*html.Node][]string),
	}
	for i, p := range props {
		r.props[p] = i
	}
	if body := FindBody(doc); body != nil && tree != nil {
		r.pair(body, tree)
	}
	return r
}

func (r *TreeResolver) pair(n *html.Node, t *StyleTree) {
	r.values[n] = t.Values
	c := firstElementChild(n)
	for _, child := range t.Children {
		if c == nil {
			return
		}
		if child != nil {
			r.pair(c, child)
		}
		c = nextElementSibling(c)
	}
}

// ComputedStyle implements Resolver.
func (r *TreeResolver) ComputedStyle(n *html.Node, property string) string {
	i, ok := r.props[property]
	if !ok {
		return ""
	}
	vals := r.values[n]
	if i >= len(vals) {
		return ""
	}
	return vals[i]
}

// Paired reports how many document elements received captured values.
func (r *TreeResolver) Paired() int {
	return len(r.values)
}

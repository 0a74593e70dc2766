package styleclone

import (
	"encoding/json"
	"testing"
)

func TestTreeResolver_PairsByIndex(t *testing.T) {
	doc := parseDoc(t, `<html><body><div id="a"><span id="a1"></span></div><p id="b"></p></body></html>`)

	var tree StyleTree
	raw := `{"s":["none"],"c":[{"s":["url(a.png)"],"c":[{"s":["url(a1.png)"]}]},{"s":["none"]}]}`
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatal(err)
	}
	if tree.Count() != 4 {
		t.Fatalf("Count = %d, want 4", tree.Count())
	}

	res := NewTreeResolver(doc, []string{"background-image"}, &tree)
	if res.Paired() != 4 {
		t.Fatalf("Paired = %d, want 4", res.Paired())
	}

	clone, err := Clone(doc, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := InlineStyle(findByID(clone, "a"), "background-image"); got != "url(a.png)" {
		t.Errorf("a = %q", got)
	}
	if got := InlineStyle(findByID(clone, "a1"), "background-image"); got != "url(a1.png)" {
		t.Errorf("a1 = %q", got)
	}
	if got := attr(findByID(clone, "b"), "style"); got != "" {
		t.Errorf("b style = %q, want empty", got)
	}
}

func TestTreeResolver_ShapeMismatchStopsQuietly(t *testing.T) {
	doc := parseDoc(t, `<html><body><div id="a"></div></body></html>`)
	tree := &StyleTree{
		Values: []string{""},
		Children: []*StyleTree{
			{Values: []string{"url(a.png)"}, Children: []*StyleTree{{Values: []string{"url(ghost.png)"}}}},
			{Values: []string{"url(extra.png)"}},
		},
	}

	res := NewTreeResolver(doc, []string{"background-image"}, tree)
	if res.Paired() != 2 {
		t.Fatalf("Paired = %d, want 2 (body and a)", res.Paired())
	}
	if got := res.ComputedStyle(findByID(doc, "a"), "background-image"); got != "url(a.png)" {
		t.Errorf("a = %q", got)
	}
	if got := res.ComputedStyle(findByID(doc, "a"), "color"); got != "" {
		t.Errorf("unknown property resolved to %q", got)
	}
}

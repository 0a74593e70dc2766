package cascade

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/sidekick/styleclone"
)

func parseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func byID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && getAttr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := byID(c, id); f != nil {
			return f
		}
	}
	return nil
}

const sheetPage = `<html><head><style>
div { background-image: none; color: black }
.hero { background-image: url(hero.png) }
#main .hero { background-image: url(main-hero.png) }
section > p { color: green }
.loud { color: red !important }
@media (max-width: 600px) { .hero { background-image: url(mobile.png) } }
</style></head><body>
<div id="main"><div id="h1" class="hero">a</div></div>
<div id="h2" class="hero">b</div>
<div id="plain"><span id="child">c</span></div>
<section><p id="p1">d</p><div><p id="p2">e</p></div></section>
<p id="shout" class="loud" style="color: blue">f</p>
<p id="inl" style="background-image: url(inline.png)">g</p>
</body></html>`

func TestComputedStyle_Cascade(t *testing.T) {
	doc := parseDoc(t, sheetPage)
	r := New(doc)

	tests := []struct {
		id, prop, want string
	}{
		{"h1", "background-image", "url(main-hero.png)"},
		{"h2", "background-image", "url(hero.png)"},
		{"plain", "background-image", "none"},
		{"child", "background-image", ""},
		{"child", "color", "black"},
		{"p1", "color", "green"},
		{"p2", "color", "black"},
		{"shout", "color", "red"},
		{"inl", "background-image", "url(inline.png)"},
	}
	for _, tt := range tests {
		n := byID(doc, tt.id)
		if n == nil {
			t.Fatalf("no element %q", tt.id)
		}
		if got := r.ComputedStyle(n, tt.prop); got != tt.want {
			t.Errorf("%s %s = %q, want %q", tt.id, tt.prop, got, tt.want)
		}
	}
}

func TestComputedStyle_InheritKeywords(t *testing.T) {
	doc := parseDoc(t, `<html><head><style>
#outer { background-image: url(o.png); color: teal }
#inner { background-image: inherit; color: initial }
</style></head><body><div id="outer"><div id="inner"></div></div></body></html>`)
	r := New(doc)

	inner := byID(doc, "inner")
	if got := r.ComputedStyle(inner, "background-image"); got != "url(o.png)" {
		t.Errorf("background-image = %q", got)
	}
	if got := r.ComputedStyle(inner, "color"); got != "" {
		t.Errorf("color = %q, want empty for initial", got)
	}
}

func TestNew_LinkedSheetsAndBaseURL(t *testing.T) {
	doc := parseDoc(t, `<html><head><link rel="stylesheet" href="/site.css"><link rel="icon" href="/favicon.ico"></head>
<body><div id="a" class="banner"></div></body></html>`)

	var asked []string
	loader := func(href string) (string, bool) {
		asked = append(asked, href)
		return `.banner { background-image: url('img/banner.jpg') }`, true
	}
	base, _ := url.Parse("https://example.com/blog/post")
	r := New(doc, WithSheetLoader(loader), WithBaseURL(base))

	if len(asked) != 1 || asked[0] != "/site.css" {
		t.Fatalf("loader calls = %v", asked)
	}
	got := r.ComputedStyle(byID(doc, "a"), "background-image")
	// relative to the sheet, not the page
	if got != `url("https://example.com/img/banner.jpg")` {
		t.Errorf("background-image = %q", got)
	}
}

func TestNew_ExtraStylesheet(t *testing.T) {
	doc := parseDoc(t, `<html><body><div id="a"></div></body></html>`)
	r := New(doc, WithStylesheet(`div { background-image: url(extra.png) }`))
	if r.Rules() != 1 {
		t.Fatalf("Rules = %d", r.Rules())
	}
	if got := r.ComputedStyle(byID(doc, "a"), "background-image"); got != "url(extra.png)" {
		t.Errorf("got %q", got)
	}
}

// The resolver drives styleclone without a browser.
func TestResolver_WithStyleClone(t *testing.T) {
	doc := parseDoc(t, sheetPage)
	out, err := styleclone.CloneHTML(doc, New(doc), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `id="h2" class="hero" style="background-image: url(hero.png);"`) {
		t.Errorf("h2 not inlined:\n%s", out)
	}
	if strings.Contains(out, `id="plain" style=`) {
		t.Errorf("none must not be inlined:\n%s", out)
	}
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		spec specificity
	}{
		{"div", true, specificity{0, 0, 1}},
		{".a.b", true, specificity{0, 2, 0}},
		{"#x div.y", true, specificity{1, 1, 1}},
		{"ul > li[data-x=1]", true, specificity{0, 1, 2}},
		{"*", true, specificity{0, 0, 0}},
		{"a:hover", false, specificity{}},
		{"h1 + p", false, specificity{}},
		{"> p", false, specificity{}},
		{"div >", false, specificity{}},
		{"div[", false, specificity{}},
	}
	for _, tt := range tests {
		sel, ok := parseSelector(tt.in)
		if ok != tt.ok {
			t.Errorf("parseSelector(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && sel.specificity() != tt.spec {
			t.Errorf("specificity(%q) = %v, want %v", tt.in, sel.specificity(), tt.spec)
		}
	}
}

func TestComputedStyle_BackgroundShorthand(t *testing.T) {
	doc := parseDoc(t, `<html><head><style>
.a { background: #fff url(x.png) no-repeat }
.b { background: url(x.png); background-image: url(y.png) }
.c { background-image: url(y.png); background: red }
.d { background: url(a.png) top left, linear-gradient(red, blue) }
.e { background: url(imp.png) !important }
#e { background-image: url(id.png) }
</style></head><body>
<div id="a" class="a"></div>
<div id="b" class="b"></div>
<div id="c" class="c"></div>
<div id="d" class="d"></div>
<div id="e" class="e" style="background-image: url(inline.png)"></div>
<div id="f" style="background: url('inl.png') center / cover"></div>
</body></html>`)
	r := New(doc)

	tests := []struct {
		id, want string
	}{
		{"a", "url(x.png)"},
		{"b", "url(y.png)"},
		{"c", "none"},
		// the parser drops whitespace after commas inside values
		{"d", "url(a.png), linear-gradient(red,blue)"},
		{"e", "url(imp.png)"},
		{"f", "url('inl.png')"},
	}
	for _, tt := range tests {
		if got := r.ComputedStyle(byID(doc, tt.id), "background-image"); got != tt.want {
			t.Errorf("%s background-image = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestBackgroundImage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"#fff url(x.png) no-repeat", "url(x.png)"},
		{"red", "none"},
		{"none", "none"},
		{"INHERIT", "inherit"},
		{`url("a b.png") 0 0 / 10px repeat-x, #000`, `url("a b.png"), none`},
		{"radial-gradient(circle at 50% 50%, rgba(0, 0, 0, .5), transparent) fixed", "radial-gradient(circle at 50% 50%, rgba(0, 0, 0, .5), transparent)"},
	}
	for _, tt := range tests {
		if got := backgroundImage(tt.in); got != tt.want {
			t.Errorf("backgroundImage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package blockname

import (
	"reflect"
	"strings"
	"testing"
)

func TestMetaToDisplay(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"title", "Title"},
		{"publication-date", "Publication Date"},
		{"og-image-alt", "Og Image Alt"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MetaToDisplay(tt.in); got != tt.want {
			t.Errorf("MetaToDisplay(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassNameToBlockName(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"section-metadata"}, "Section Metadata"},
		{[]string{"app-download", "orange"}, "App Download (orange)"},
		{[]string{"app-download", "content-stacked", "blue"}, "App Download (content stacked, blue)"},
		{[]string{"cards"}, "Cards"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := ClassNameToBlockName(tt.in); got != tt.want {
			t.Errorf("ClassNameToBlockName(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassNameToBlockName_DoesNotMutateInput(t *testing.T) {
	in := []string{"app-download", "content-stacked"}
	ClassNameToBlockName(in)
	if in[0] != "app-download" || in[1] != "content-stacked" || len(in) != 2 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestClassNameToBlockName_SingleTokenHasNoParens(t *testing.T) {
	for _, tok := range []string{"hero", "section-metadata", "a-b-c-d"} {
		got := ClassNameToBlockName([]string{tok})
		if strings.ContainsAny(got, "()") {
			t.Errorf("ClassNameToBlockName([%q]) = %q, contains parentheses", tok, got)
		}
	}
}

func TestToBlockCSSClassNames(t *testing.T) {
	want := []string{"app-download", "content-stacked", "blue"}

	for _, in := range []string{
		"App Download (content-stacked, blue)",
		"App Download (content stacked, blue)",
		"App Download (Content Stacked,Blue)",
		"  App   Download  ( content stacked ,  blue )",
	} {
		got := ToBlockCSSClassNames(in)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("ToBlockCSSClassNames(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestToBlockCSSClassNames_NoVariants(t *testing.T) {
	got := ToBlockCSSClassNames("Section Metadata")
	want := []string{"section-metadata"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// Malformed input follows one policy: the group opens at the last "(",
// a missing ")" is tolerated, empty pieces are dropped.
func TestToBlockCSSClassNames_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"missing close paren", "Cards (wide", []string{"cards", "wide"}},
		{"empty group", "Cards ()", []string{"cards"}},
		{"empty variant", "Cards (wide, , dark)", []string{"cards", "wide", "dark"}},
		{"leading and trailing commas", "Cards (, wide,)", []string{"cards", "wide"}},
		{"stray close paren", "Cards )", []string{"cards"}},
		{"empty base", "(wide)", []string{"wide"}},
		{"nested opens use the last", "Cards (a (b, c)", []string{"cards-a", "b", "c"}},
		{"empty string", "", []string{}},
		{"only punctuation", "(,)", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToBlockCSSClassNames(tt.in)
			if got == nil {
				t.Fatal("result must not be nil")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ToBlockCSSClassNames(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	lists := [][]string{
		{"section-metadata"},
		{"app-download", "orange"},
		{"app-download", "content-stacked", "blue"},
		{"Hero", "Dark-Mode"},
		{"cards", "two-col", "no-images", "x"},
		{"café", "bleu"},
		{"cards", "a&b"},
		{"Ünïcode", "x_y", "10px"},
	}
	for _, l := range lists {
		display := ClassNameToBlockName(l)
		got := ToBlockCSSClassNames(display)

		want := make([]string, len(l))
		for i, tok := range l {
			want[i] = strings.ToLower(tok)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round trip %v -> %q -> %v, want %v", l, display, got, want)
		}

		// The canonical form is stable.
		again := ToBlockCSSClassNames(ClassNameToBlockName(got))
		if !reflect.DeepEqual(again, got) {
			t.Errorf("second round trip %v -> %v", got, again)
		}
	}
}

func TestToClassName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Content Stacked", "content-stacked"},
		{"  content -- stacked  ", "content-stacked"},
		{"Café", "café"},
		{"A&B", "a&b"},
		{"x_y", "x_y"},
		{" - ", ""},
	}
	for _, tt := range tests {
		if got := ToClassName(tt.in); got != tt.want {
			t.Errorf("ToClassName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCapitalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"app", "App"},
		{"App", "App"},
		{"iPhone", "IPhone"},
		{"été", "Été"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Capitalize(tt.in); got != tt.want {
			t.Errorf("Capitalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package blockname converts between block/metadata class-name tokens and
// the human-readable names shown to content authors.
//
// A block is written in markup as an ordered list of lowercase, hyphenated
// class tokens: the first is the block's base name, the rest are variants.
// Authors see the same block as a display name:
//
//	[app-download content-stacked blue]  <->  App Download (content stacked, blue)
//
// Round-trip: ToBlockCSSClassNames(ClassNameToBlockName(tokens)) returns the
// tokens lowercased, for tokens free of whitespace, "(", ")" and ",".
// Non-ASCII letters and other punctuation are kept as written. Multi-word
// variants written with spaces come back hyphenated, so the canonical form
// is stable under repeated conversion.
package blockname

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Capitalize upper-cases the first letter of word and leaves the rest alone:
// "app" becomes "App", "iPhone" becomes "IPhone".
func Capitalize(word string) string {
	_, size := utf8.DecodeRuneInString(word)
	if size == 0 {
		return ""
	}
	// A Caser carries state; one per call keeps concurrent callers apart.
	return cases.Upper(language.Und).String(word[:size]) + word[size:]
}

// ClassNameToBlockName renders block class tokens as a display name.
// The first token becomes the capitalized base; remaining tokens are listed
// as variants in parentheses with their hyphens replaced by spaces.
// An empty token list yields "".
func ClassNameToBlockName(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(hyphenatedToTitle(tokens[0]))

	if variants := tokens[1:]; len(variants) > 0 {
		words := make([]string, len(variants))
		for i, v := range variants {
			words[i] = strings.ReplaceAll(v, "-", " ")
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(words, ", "))
		b.WriteString(")")
	}
	return b.String()
}

// MetaToDisplay renders a metadata key such as "publication-date" as
// "Publication Date".
func MetaToDisplay(key string) string {
	return hyphenatedToTitle(key)
}

// ToBlockCSSClassNames parses a display name back into class tokens.
//
// The variant group opens at the last "(" in the text; a missing ")" is
// tolerated. Every piece is normalized with ToClassName and empty pieces are
// dropped, so "Cards (, wide,)" yields [cards wide] and "Cards (wide" yields
// [cards wide]. Any other parenthesis separates words like a space. The
// result is never nil.
func ToBlockCSSClassNames(display string) []string {
	pieces := []string{display}
	if idx := strings.LastIndex(display, "("); idx >= 0 {
		pieces = []string{display[:idx]}
		pieces = append(pieces, strings.Split(display[idx+1:], ",")...)
	}

	names := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if name := ToClassName(parens.Replace(p)); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ToClassName normalizes one piece of a display name into a class token:
// lowercased, runs of whitespace and hyphens collapsed into one hyphen,
// hyphens trimmed from both ends. "Content  Stacked" and "content-stacked"
// both give "content-stacked"; "Café" gives "café".
func ToClassName(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return ""
	}
	return cases.Lower(language.Und).String(strings.Join(words, "-"))
}

var parens = strings.NewReplacer("(", " ", ")", " ")

func hyphenatedToTitle(s string) string {
	words := strings.Split(s, "-")
	for i, w := range words {
		words[i] = Capitalize(w)
	}
	return strings.Join(words, " ")
}

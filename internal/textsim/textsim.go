// Package textsim scores how alike two pieces of extracted text are.
package textsim

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds compatibility forms (full-width digits and letters, ligatures)
// with NFKC and strips all whitespace. OCR of CJK text inserts spaces between
// glyphs unpredictably, so whitespace carries no signal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKC, runes.Remove(runes.In(unicode.White_Space)))
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// Ratio returns the Ratcliff/Obershelp similarity of a and b after
// normalization, compared glyph by glyph: 2*M / T where M is the number of
// matched runes and T the total rune count of both strings. Matching uses
// difflib's default junk heuristic, so in texts of 200 or more runes the
// glyphs making up more than 1% of b never anchor a match. The result is in
// [0, 1]; two empty strings are identical and score 1.
func Ratio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" && nb == "" {
		return 1
	}
	return difflib.NewMatcher(glyphs(na), glyphs(nb)).Ratio()
}

// glyphs splits s into one element per rune.
func glyphs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "")
}

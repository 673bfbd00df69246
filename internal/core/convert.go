package core

// convert.go provides the text cleanup shared by the resolver and the
// normalizer.
//
// Spreadsheet exports carry a lot of noise:
//   - Excel formula prefixes (="value")
//   - Stray quotes and non-breaking spaces
//   - Accented and unaccented spellings of the same header
//
// FoldText reduces a string to a comparison key. CleanCell strips export
// artifacts but keeps the user's spelling.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldText lower-cases s, removes diacritics, maps underscores and dashes to
// spaces and collapses whitespace. "Téléphone_Mobile" folds to
// "telephone mobile".
func FoldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return ' '
		}
		return unicode.ToLower(r)
	}, folded)
	return CollapseSpaces(strings.Trim(folded, " *:."))
}

// CollapseSpaces trims s and replaces every run of whitespace with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanCell removes common export artifacts from a cell value:
// - Trims whitespace and non-breaking spaces
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

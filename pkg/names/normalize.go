package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Honorific tokens stripped during normalization. These titles attach freely
// to the same person's name across sources and would otherwise drag down
// edit-distance scores.
var honorifics = map[string]bool{
	"rinpoche": true,
	"lama":     true,
	"je":       true,
	"lotsawa":  true,
	"khenpo":   true,
	"geshe":    true,
	"tulku":    true,
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize canonicalizes a raw name for comparison: Unicode-fold, strip
// diacritics, lower-case, drop honorific tokens, collapse punctuation and
// whitespace to single spaces.
func Normalize(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-' || r == '\'' || r == '’' || r == '‐' || r == '‑':
			// Hyphens and the Wylie a-chung apostrophe join syllables of a
			// single name ("Mar-pa", "ja 'bri"); dropping them keeps the
			// joined and unjoined spellings identical after normalization.
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	kept := tokens[:0]
	for _, tok := range tokens {
		if honorifics[tok] {
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}

// Tokens returns the normalized name split into its word set.
func Tokens(name string) []string {
	return strings.Fields(Normalize(name))
}

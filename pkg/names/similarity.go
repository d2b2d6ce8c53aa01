package names

import (
	"fmt"
	"strings"
	"unicode"
)

// Component weights for the blended score.
const (
	weightLevenshtein = 0.5
	weightPhonetic    = 0.2
	weightWordLevel   = 0.2
	weightTranslit    = 0.1
)

// Match types, named for the dominant component.
const (
	MatchExact       = "exact"
	MatchLevenshtein = "levenshtein"
	MatchPhonetic    = "phonetic"
	MatchWordLevel   = "word_level"
	MatchTranslit    = "transliteration"
)

// Similarity is the outcome of comparing two names.
type Similarity struct {
	Score     float64 `json:"score"`
	MatchType string  `json:"match_type"`
	Reason    string  `json:"reason"`
}

// Scorer compares historical names across scripts and romanization schemes.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Compare scores two raw names. Symmetric: Compare(a, b) == Compare(b, a).
func (s *Scorer) Compare(a, b string) Similarity {
	na := Normalize(a)
	nb := Normalize(b)

	if na == "" || nb == "" {
		return Similarity{Score: 0, MatchType: MatchLevenshtein, Reason: "one or both names empty after normalization"}
	}

	if na == nb {
		return Similarity{Score: 1.0, MatchType: MatchExact, Reason: fmt.Sprintf("normalized forms identical: %q", na)}
	}

	lev := s.Levenshtein(na, nb)
	phonetic := s.SoundexMatch(na, nb)
	wordLevel := s.Jaccard(na, nb)
	translit := s.TranslitMatch(na, nb)

	score := weightLevenshtein*lev + weightPhonetic*phonetic + weightWordLevel*wordLevel + weightTranslit*translit
	penalty := lengthPenalty(len(na), len(nb))
	score *= penalty

	matchType, reason := dominant(lev, phonetic, wordLevel, translit)
	if penalty < 1.0 {
		reason += fmt.Sprintf("; length penalty %.2f", penalty)
	}

	return Similarity{Score: score, MatchType: matchType, Reason: reason}
}

func dominant(lev, phonetic, wordLevel, translit float64) (string, string) {
	matchType := MatchLevenshtein
	best := weightLevenshtein * lev
	if w := weightPhonetic * phonetic; w > best {
		matchType, best = MatchPhonetic, w
	}
	if w := weightWordLevel * wordLevel; w > best {
		matchType, best = MatchWordLevel, w
	}
	if w := weightTranslit * translit; w > best {
		matchType = MatchTranslit
	}

	reason := fmt.Sprintf("levenshtein %.2f, phonetic %.0f, word-level %.2f, transliteration %.0f", lev, phonetic, wordLevel, translit)
	return matchType, reason
}

// lengthPenalty dampens scores between names of very different lengths,
// which edit distance alone rewards too generously.
func lengthPenalty(len1, len2 int) float64 {
	shorter, longer := len1, len2
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	if longer == 0 {
		return 1.0
	}
	ratio := float64(shorter) / float64(longer)
	switch {
	case ratio >= 0.7:
		return 1.0
	case ratio >= 0.5:
		return 0.95
	case ratio >= 0.3:
		return 0.85
	default:
		return 0.7
	}
}

// Levenshtein returns 1 - editDistance/maxLen.
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// Jaccard computes the Jaccard index over the two names' token sets.
func (s *Scorer) Jaccard(a, b string) float64 {
	setA := map[string]bool{}
	for _, tok := range strings.Fields(a) {
		setA[tok] = true
	}
	setB := map[string]bool{}
	for _, tok := range strings.Fields(b) {
		setB[tok] = true
	}

	if len(setA) == 0 && len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// Soundex calculates the Soundex encoding of a string
func (s *Scorer) Soundex(str string) string {
	if len(str) == 0 {
		return ""
	}

	str = strings.ToUpper(str)

	result := string(str[0])
	prevCode := soundexCode(rune(str[0]))

	for i := 1; i < len(str) && len(result) < 4; i++ {
		char := rune(str[i])
		if !unicode.IsLetter(char) {
			continue
		}

		code := soundexCode(char)
		if code != "0" && code != prevCode {
			result += code
		}
		prevCode = code
	}

	for len(result) < 4 {
		result += "0"
	}

	return result
}

// SoundexMatch returns 1.0 if Soundex codes match, 0.0 otherwise
func (s *Scorer) SoundexMatch(a, b string) float64 {
	if s.Soundex(a) == s.Soundex(b) {
		return 1.0
	}
	return 0.0
}

// soundexCode returns the Soundex code for a character
func soundexCode(char rune) string {
	switch char {
	case 'B', 'F', 'P', 'V':
		return "1"
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return "2"
	case 'D', 'T':
		return "3"
	case 'L':
		return "4"
	case 'M', 'N':
		return "5"
	case 'R':
		return "6"
	default:
		return "0"
	}
}

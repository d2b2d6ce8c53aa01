package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Tsongkhapa", "tsongkhapa"},
		{"strips diacritics", "Mílarëpa", "milarepa"},
		{"joins hyphenated syllables", "Mar-pa", "marpa"},
		{"drops wylie apostrophe", "bka' brgyud", "bka brgyud"},
		{"collapses punctuation to spaces", "sa.skya,pandita", "sa skya pandita"},
		{"collapses repeated whitespace", "  mi la   ras pa ", "mi la ras pa"},
		{"strips leading honorific", "Je Tsongkhapa", "tsongkhapa"},
		{"strips trailing honorific", "Marpa Lotsawa", "marpa"},
		{"strips multiple honorifics", "Khenpo Tulku Tenzin", "tenzin"},
		{"honorific-only name empties", "Rinpoche", ""},
		{"keeps digits", "Karmapa 17", "karmapa 17"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_HyphenAndSpacedFormsConverge(t *testing.T) {
	// The same person is written "Mar-pa", "Marpa", and "marpa" across
	// catalogs; all three must normalize to one form.
	assert.Equal(t, Normalize("Marpa"), Normalize("Mar-pa"))
	assert.Equal(t, Normalize("Marpa"), Normalize("MARPA"))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"mi", "la", "ras", "pa"}, Tokens("Mi La Ras Pa"))
	assert.Equal(t, []string{"mila", "raspa"}, Tokens("Mi-la ras-pa"))
	assert.Empty(t, Tokens("Lama Rinpoche"))
}

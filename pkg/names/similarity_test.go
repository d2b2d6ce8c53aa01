package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScorer_Compare(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical names score 1.0 exact", func(t *testing.T) {
		sim := scorer.Compare("Tsongkhapa", "Tsongkhapa")
		assert.Equal(t, 1.0, sim.Score)
		assert.Equal(t, MatchExact, sim.MatchType)
	})

	t.Run("hyphenated variant is exact after normalization", func(t *testing.T) {
		sim := scorer.Compare("Marpa", "Mar-pa")
		assert.Equal(t, 1.0, sim.Score)
		assert.Equal(t, MatchExact, sim.MatchType)
	})

	t.Run("honorifics do not lower the score", func(t *testing.T) {
		sim := scorer.Compare("Je Tsongkhapa", "Tsongkhapa Rinpoche")
		assert.Equal(t, 1.0, sim.Score)
	})

	t.Run("empty name scores zero", func(t *testing.T) {
		assert.Zero(t, scorer.Compare("", "Marpa").Score)
		assert.Zero(t, scorer.Compare("Rinpoche", "Marpa").Score)
	})

	t.Run("close spelling variants score high", func(t *testing.T) {
		sim := scorer.Compare("Milarepa", "Milarapa")
		assert.GreaterOrEqual(t, sim.Score, 0.6)
		assert.Less(t, sim.Score, 1.0)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		sim := scorer.Compare("Padmasambhava", "Atisha")
		assert.Less(t, sim.Score, 0.5)
	})

	t.Run("wylie and phonetic forms get the transliteration component", func(t *testing.T) {
		withTable := scorer.Compare("mi la ras pa", "Milarepa")
		assert.Equal(t, 1.0, scorer.TranslitMatch(Normalize("mi la ras pa"), Normalize("Milarepa")))
		// An equally distant pair outside the table scores lower.
		outside := scorer.Compare("mi la ras pa", "Milaretta")
		assert.Greater(t, withTable.Score, outside.Score)
	})

	t.Run("score stays within unit interval", func(t *testing.T) {
		pairs := [][2]string{
			{"Marpa", "Mar-pa"},
			{"sa skya", "Sakya"},
			{"Lhasa", "lha sa"},
			{"Gampopa", "sgam po pa"},
			{"x", "a very long unrelated monastery name"},
		}
		for _, p := range pairs {
			sim := scorer.Compare(p[0], p[1])
			assert.GreaterOrEqual(t, sim.Score, 0.0, "pair %v", p)
			assert.LessOrEqual(t, sim.Score, 1.0, "pair %v", p)
		}
	})
}

func TestScorer_Compare_Symmetric(t *testing.T) {
	scorer := NewScorer()

	pairs := [][2]string{
		{"Marpa", "Mar-pa"},
		{"Milarepa", "mi la ras pa"},
		{"Tsongkhapa", "tsong kha pa"},
		{"Padmasambhava", "Pema Jungne"},
		{"Samye", "Drepung"},
		{"", "Tashi"},
		{"Khenpo Jamyang", "jam dbyangs"},
	}

	for _, p := range pairs {
		forward := scorer.Compare(p[0], p[1])
		backward := scorer.Compare(p[1], p[0])
		assert.Equal(t, forward.Score, backward.Score, "pair %v", p)
		assert.Equal(t, forward.MatchType, backward.MatchType, "pair %v", p)
	}
}

func TestScorer_LevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"marpa", "", 5},
		{"marpa", "marpa", 0},
		{"marpa", "marba", 1},
		{"tashi", "tachi", 1},
		{"sera", "sakya", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
		assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.b, tt.a), "%q vs %q reversed", tt.a, tt.b)
	}
}

func TestScorer_Jaccard(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, 1.0, scorer.Jaccard("sa skya pandita", "pandita skya sa"))
	assert.Equal(t, 0.5, scorer.Jaccard("sakya pandita", "sakya trizin pandita x"))
	assert.Zero(t, scorer.Jaccard("marpa", "mar pa"))
	assert.Zero(t, scorer.Jaccard("", ""))
}

func TestScorer_Soundex(t *testing.T) {
	scorer := NewScorer()

	assert.Equal(t, scorer.Soundex("marpa"), scorer.Soundex("marba"))
	assert.Equal(t, 1.0, scorer.SoundexMatch("tashi", "tachi"))
	assert.Equal(t, 0.0, scorer.SoundexMatch("marpa", "atisha"))
}

func TestScorer_TranslitMatch(t *testing.T) {
	scorer := NewScorer()

	t.Run("members of one class match", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.TranslitMatch("bka brgyud", "kagyu"))
		assert.Equal(t, 1.0, scorer.TranslitMatch("rdo rje", "dorje"))
	})

	t.Run("members of different classes do not", func(t *testing.T) {
		assert.Zero(t, scorer.TranslitMatch("rdo rje", "tashi"))
	})

	t.Run("unlisted names do not", func(t *testing.T) {
		assert.Zero(t, scorer.TranslitMatch("gter ma", "terma"))
	})
}

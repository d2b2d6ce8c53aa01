package graphmap

// inversePairs lists predicate inverses in one direction; the lookup table
// is built with both orientations.
var inversePairs = [][2]string{
	{"teacher_of", "student_of"},
	{"wrote", "written_by"},
	{"founded", "founded_by"},
	{"parent_of", "child_of"},
	{"incarnation_of", "preincarnation_of"},
	{"abbot_of", "led_by"},
	{"born_in", "birthplace_of"},
	{"died_in", "deathplace_of"},
	{"commentary_on", "commented_on_by"},
	{"translated", "translated_by"},
	{"ordained", "ordained_by"},
	{"located_in", "contains"},
	{"member_of", "has_member"},
	{"patron_of", "patronized_by"},
}

// symmetricPredicates are their own inverse.
var symmetricPredicates = map[string]bool{
	"sibling_of":        true,
	"spouse_of":         true,
	"near":              true,
	"contemporary_with": true,
	"debated_with":      true,
}

var inverseTable = buildInverseTable()

func buildInverseTable() map[string]string {
	table := make(map[string]string, 2*len(inversePairs))
	for _, pair := range inversePairs {
		table[pair[0]] = pair[1]
		table[pair[1]] = pair[0]
	}
	return table
}

// InversePredicate returns the inverse of a predicate, if one is defined.
// Symmetric predicates invert to themselves.
func InversePredicate(predicate string) (string, bool) {
	if symmetricPredicates[predicate] {
		return predicate, true
	}
	inverse, ok := inverseTable[predicate]
	return inverse, ok
}

// IsSymmetric reports whether a predicate is its own inverse.
func IsSymmetric(predicate string) bool {
	return symmetricPredicates[predicate]
}

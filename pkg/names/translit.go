package names

// Wylie transliterations and common phonetic renderings of the same Tibetan
// name. Each row is one equivalence class; membership is checked on
// normalized forms. The table is closed: unlisted pairs score 0 on the
// transliteration component even when they are in fact the same name.
var translitClasses = [][]string{
	{"mar pa", "marpa"},
	{"mi la ras pa", "milarepa", "mila repa"},
	{"sgam po pa", "gampopa"},
	{"tsong kha pa", "tsongkhapa"},
	{"karma pa", "karmapa"},
	{"sa skya", "sakya"},
	{"bka brgyud", "kagyu", "kagyud"},
	{"rnying ma", "nyingma"},
	{"dge lugs", "gelug", "geluk"},
	{"jo nang", "jonang"},
	{"padma byung gnas", "padmasambhava", "pema jungne"},
	{"klong chen pa", "longchenpa"},
	{"jam dbyangs", "jamyang"},
	{"blo bzang", "lobsang", "lobzang"},
	{"bstan dzin", "tenzin", "tendzin"},
	{"bkra shis", "tashi"},
	{"rdo rje", "dorje", "dorjee"},
	{"ye shes", "yeshe", "yeshi"},
	{"chos kyi", "chokyi", "choekyi"},
	{"lha sa", "lhasa"},
	{"bsam yas", "samye"},
	{"dga ldan", "ganden"},
	{"bras spungs", "drepung"},
	{"se ra", "sera"},
}

var translitIndex = buildTranslitIndex()

func buildTranslitIndex() map[string]int {
	index := make(map[string]int)
	for class, members := range translitClasses {
		for _, member := range members {
			index[Normalize(member)] = class
		}
	}
	return index
}

// TranslitMatch returns 1.0 when the two normalized names belong to the same
// transliteration equivalence class, else 0.0.
func (s *Scorer) TranslitMatch(a, b string) float64 {
	classA, okA := translitIndex[a]
	classB, okB := translitIndex[b]
	if okA && okB && classA == classB {
		return 1.0
	}
	return 0.0
}

package merging

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/khandro-archive/namthar/pkg/models"
)

// Confidence blend weights for the merged record. The primary is the better
// attested entity, so it carries more weight.
const (
	primaryConfidenceWeight   = 0.6
	duplicateConfidenceWeight = 0.4
)

// categoricalKeys are closed-vocabulary attributes; a disagreement here is a
// factual dispute, not a spelling variant.
var categoricalKeys = map[string]bool{
	"gender":    true,
	"tradition": true,
	"role":      true,
	"school":    true,
	"status":    true,
	"category":  true,
	"language":  true,
}

// combineEntities runs the pure half of a merge: name union, attribute
// merge, date merge, confidence and verification blending. It never touches
// storage; the caller decides whether the result is persisted or previewed.
func combineEntities(primary, duplicate *models.Entity, opts models.MergeOptions) (models.Entity, []models.MergeConflict, error) {
	merged := *primary

	merged.Names = unionNames(primary, duplicate)

	attributes, conflicts, err := mergeAttributes(primary, duplicate, opts)
	if err != nil {
		return models.Entity{}, nil, err
	}
	merged.Attributes = attributes

	merged.Dates = mergeDates(primary.Dates, duplicate.Dates)

	merged.Confidence = primaryConfidenceWeight*primary.Confidence + duplicateConfidenceWeight*duplicate.Confidence
	merged.Verified = primary.Verified || duplicate.Verified
	if !primary.Verified && duplicate.Verified {
		merged.VerifiedBy = duplicate.VerifiedBy
		merged.VerifiedAt = duplicate.VerifiedAt
	}

	return merged, conflicts, nil
}

// unionNames merges every name-variant list of both entities, deduplicated
// with order preserved. The duplicate's canonical name survives as a
// phonetic variant unless it already appears somewhere.
func unionNames(primary, duplicate *models.Entity) models.NameVariants {
	union := models.NameVariants{
		Tibetan:   unionList(primary.Names.Tibetan, duplicate.Names.Tibetan),
		English:   unionList(primary.Names.English, duplicate.Names.English),
		Wylie:     unionList(primary.Names.Wylie, duplicate.Names.Wylie),
		Phonetic:  unionList(primary.Names.Phonetic, duplicate.Names.Phonetic),
		Sanskrit:  unionList(primary.Names.Sanskrit, duplicate.Names.Sanskrit),
		Chinese:   unionList(primary.Names.Chinese, duplicate.Names.Chinese),
		Mongolian: unionList(primary.Names.Mongolian, duplicate.Names.Mongolian),
	}

	if duplicate.CanonicalName != "" && duplicate.CanonicalName != primary.CanonicalName {
		if !contains(union.All(), duplicate.CanonicalName) {
			union.Phonetic = append(union.Phonetic, duplicate.CanonicalName)
		}
	}
	return union
}

func unionList(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// mergeAttributes merges key by key. One-sided values pass through, arrays
// union silently, equal scalars pass through, unequal scalars become a
// recorded conflict resolved per the configured strategy.
func mergeAttributes(primary, duplicate *models.Entity, opts models.MergeOptions) (map[string]any, []models.MergeConflict, error) {
	if len(primary.Attributes) == 0 && len(duplicate.Attributes) == 0 {
		return nil, nil, nil
	}

	merged := make(map[string]any, len(primary.Attributes)+len(duplicate.Attributes))
	var conflicts []models.MergeConflict

	for _, key := range attributeKeyUnion(primary.Attributes, duplicate.Attributes) {
		pVal, pOK := primary.Attributes[key]
		dVal, dOK := duplicate.Attributes[key]

		switch {
		case pOK && !dOK:
			merged[key] = pVal
		case dOK && !pOK:
			merged[key] = dVal
		default:
			value, conflict, err := mergeAttributeValue(key, pVal, dVal, primary, duplicate, opts)
			if err != nil {
				return nil, nil, err
			}
			merged[key] = value
			if conflict != nil {
				conflicts = append(conflicts, *conflict)
			}
		}
	}
	return merged, conflicts, nil
}

func attributeKeyUnion(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for key := range a {
		seen[key] = true
		keys = append(keys, key)
	}
	for key := range b {
		if !seen[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func mergeAttributeValue(key string, pVal, dVal any, primary, duplicate *models.Entity, opts models.MergeOptions) (any, *models.MergeConflict, error) {
	pList, pIsList := asAnySlice(pVal)
	dList, dIsList := asAnySlice(dVal)
	if pIsList && dIsList {
		return unionAnyList(pList, dList), nil, nil
	}

	if reflect.DeepEqual(pVal, dVal) {
		return pVal, nil, nil
	}

	conflict := &models.MergeConflict{
		Field:          key,
		PrimaryValue:   pVal,
		DuplicateValue: dVal,
		Severity:       conflictSeverity(key),
	}

	switch opts.Strategy {
	case models.StrategyMostRecent:
		if duplicate.UpdatedAt.After(primary.UpdatedAt) {
			conflict.Resolution = "duplicate"
			conflict.ResolvedValue = dVal
		} else {
			conflict.Resolution = "primary"
			conflict.ResolvedValue = pVal
		}
	case models.StrategyManual:
		resolved, ok := opts.Resolutions[key]
		if !ok {
			return nil, nil, models.NewValidationError("resolutions", "manual strategy has no resolution for conflicting attribute %q", key)
		}
		conflict.Resolution = "manual"
		conflict.ResolvedValue = resolved
	default: // highest_confidence
		if duplicate.Confidence > primary.Confidence {
			conflict.Resolution = "duplicate"
			conflict.ResolvedValue = dVal
		} else {
			conflict.Resolution = "primary"
			conflict.ResolvedValue = pVal
		}
	}
	return conflict.ResolvedValue, conflict, nil
}

// conflictSeverity classifies a contested attribute: temporal keys are high,
// closed categorical keys medium, everything else low.
func conflictSeverity(key string) string {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "date") || strings.Contains(lower, "year") || strings.Contains(lower, "era") {
		return models.ConflictSeverityHigh
	}
	if categoricalKeys[lower] {
		return models.ConflictSeverityMedium
	}
	return models.ConflictSeverityLow
}

func asAnySlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func unionAnyList(a, b []any) []any {
	seen := make(map[string]bool, len(a)+len(b))
	var out []any
	for _, v := range append(append([]any{}, a...), b...) {
		key := fmt.Sprintf("%v", v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

// mergeDates keeps, per role, the more precise date; ties go to the higher
// recorded confidence, then to the primary.
func mergeDates(primary, duplicate map[string]models.DateInfo) map[string]models.DateInfo {
	if len(primary) == 0 && len(duplicate) == 0 {
		return nil
	}

	merged := make(map[string]models.DateInfo, len(primary)+len(duplicate))
	for role, info := range primary {
		merged[role] = info
	}
	for role, dInfo := range duplicate {
		pInfo, ok := merged[role]
		if !ok {
			merged[role] = dInfo
			continue
		}
		if betterDate(dInfo, pInfo) {
			merged[role] = dInfo
		}
	}
	return merged
}

// betterDate reports whether a beats b.
func betterDate(a, b models.DateInfo) bool {
	if a.Precision.Rank() != b.Precision.Rank() {
		return a.Precision.Rank() > b.Precision.Rank()
	}
	return a.Confidence > b.Confidence
}

// assessQuality summarizes a combined record for preview callers.
func assessQuality(merged *models.Entity, conflictCount int) models.MergeQuality {
	consistency := 1.0 - 0.1*float64(conflictCount)
	if consistency < 0 {
		consistency = 0
	}
	return models.MergeQuality{
		Completeness:      completenessScore(merged),
		Consistency:       consistency,
		SourceReliability: merged.Confidence,
	}
}

// completenessScore is the filled fraction of the record's core fields.
func completenessScore(e *models.Entity) float64 {
	filled := 0
	if e.CanonicalName != "" {
		filled++
	}
	if len(e.Names.All()) > 0 {
		filled++
	}
	if len(e.Attributes) > 0 {
		filled++
	}
	if len(e.Dates) > 0 {
		filled++
	}
	if e.Provenance.SourceDocumentID != "" {
		filled++
	}
	if e.Verified {
		filled++
	}
	return float64(filled) / 6.0
}

// Package dedupe scores entity pairs for duplication and groups scored
// pairs into mergeable clusters.
package dedupe

import (
	"context"
	"fmt"
	"math"

	"github.com/khandro-archive/namthar/pkg/models"
	"github.com/khandro-archive/namthar/pkg/names"
)

// Signal weights. Signals with no data on either entity drop out and the
// remaining weights are renormalized, so a pair known only by name is judged
// on its name alone rather than dragged toward the middle by absent data.
const (
	weightName         = 0.50
	weightDate         = 0.20
	weightLocation     = 0.15
	weightRelationship = 0.10
	weightAttribute    = 0.05
)

// neutralScore is used when one side has data for a signal and the other
// does not. Missing data is never treated as disagreement.
const neutralScore = 0.5

// Warning messages attached to scores, never folded into them.
const (
	WarnReincarnation    = "high name similarity with distant dates: possible reincarnation lineage"
	WarnHomonym          = "high name similarity with disjoint locations: possible homonym"
	WarnInsufficientData = "insufficient data to verify: only name evidence available"
)

const highNameSimilarity = 0.85

// dateRoles lists, per entity type, the date keys worth comparing and the
// order to try them in.
var dateRoles = map[models.EntityType][]string{
	models.EntityTypePerson:      {"birth", "death"},
	models.EntityTypeInstitution: {"founded", "dissolved"},
	models.EntityTypeLineage:     {"founded"},
	models.EntityTypeText:        {"composed", "translated"},
	models.EntityTypeEvent:       {"occurred", "started"},
	models.EntityTypePlace:       {"founded"},
}

// attributeKeys are the per-type attributes compared by the attribute signal.
var attributeKeys = map[models.EntityType][]string{
	models.EntityTypePerson:      {"gender", "tradition", "role", "school"},
	models.EntityTypePlace:       {"region", "country", "category"},
	models.EntityTypeText:        {"language", "genre", "tradition"},
	models.EntityTypeEvent:       {"category"},
	models.EntityTypeLineage:     {"tradition", "school"},
	models.EntityTypeConcept:     {"tradition", "category"},
	models.EntityTypeInstitution: {"tradition", "school", "region"},
	models.EntityTypeDeity:       {"tradition", "category"},
}

// ConnectionLister supplies the ids an entity is connected to in the
// relationship graph. Optional: a nil lister leaves the relationship signal
// out of scoring.
type ConnectionLister interface {
	ListConnectionIDs(ctx context.Context, entityID string) ([]string, error)
}

// Scorer computes duplicate likelihood for same-type entity pairs.
type Scorer struct {
	names       *names.Scorer
	connections ConnectionLister
}

// NewScorer creates a Scorer. connections may be nil.
func NewScorer(connections ConnectionLister) *Scorer {
	return &Scorer{
		names:       names.NewScorer(),
		connections: connections,
	}
}

// signal is one scored dimension plus whether either side had data for it.
type signal struct {
	score     float64
	available bool
	partial   bool // data on exactly one side
}

// Score compares two entities of the same type. Cross-type pairs are
// rejected with a ValidationError before any scoring.
func (s *Scorer) Score(ctx context.Context, a, b *models.Entity) (*models.DuplicateScore, error) {
	if a.Type != b.Type {
		return nil, models.NewValidationError("entity_type", "cannot score %s against %s: duplicate detection is same-type only", a.Type, b.Type)
	}
	if a.ID == b.ID {
		return nil, models.NewValidationError("entity_id", "cannot score an entity against itself")
	}

	name := s.nameSignal(a, b)
	date := s.dateSignal(a, b)
	location := s.locationSignal(a, b)
	relationship := s.relationshipSignal(ctx, a, b)
	attribute := s.attributeSignal(a, b)

	overall := blend([]weighted{
		{weightName, name},
		{weightDate, date},
		{weightLocation, location},
		{weightRelationship, relationship},
		{weightAttribute, attribute},
	})

	score := &models.DuplicateScore{
		EntityID1: a.ID,
		EntityID2: b.ID,
		Overall:   overall,
		Signals: models.SignalScores{
			Name:         displayed(name),
			Date:         displayed(date),
			Location:     displayed(location),
			Relationship: displayed(relationship),
			Attribute:    displayed(attribute),
		},
		Confidence: models.ConfidenceLabel(overall),
	}
	score.Recommendation = recommendationFor(score.Confidence)
	score.Warnings = warningsFor(name, date, location, relationship, attribute)

	return score, nil
}

type weighted struct {
	weight float64
	signal signal
}

// blend computes the weighted sum over available signals, renormalizing the
// weights so absent signals neither help nor hurt.
func blend(parts []weighted) float64 {
	var sum, totalWeight float64
	for _, p := range parts {
		if !p.signal.available {
			continue
		}
		sum += p.weight * p.signal.score
		totalWeight += p.weight
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp01(sum / totalWeight)
}

// displayed reports the signal value recorded on the score breakdown.
// Unavailable signals show as neutral so readers see "no evidence" rather
// than "evidence of difference".
func displayed(sig signal) float64 {
	if !sig.available {
		return neutralScore
	}
	return sig.score
}

func recommendationFor(confidence string) string {
	switch confidence {
	case models.ConfidenceVeryHigh:
		return models.RecommendationAutoMerge
	case models.ConfidenceHigh:
		return models.RecommendationReview
	case models.ConfidenceMedium:
		return models.RecommendationManual
	default:
		return models.RecommendationNone
	}
}

func warningsFor(name, date, location, relationship, attribute signal) []string {
	var warnings []string
	if name.score >= highNameSimilarity && date.available && !date.partial && date.score == 0 {
		warnings = append(warnings, WarnReincarnation)
	}
	if name.score >= highNameSimilarity && location.available && !location.partial && location.score < 0.3 {
		warnings = append(warnings, WarnHomonym)
	}
	if !date.available && !location.available && !relationship.available && !attribute.available {
		warnings = append(warnings, WarnInsufficientData)
	}
	return warnings
}

// nameSignal takes the best pairwise similarity across every name variant of
// both entities, canonical names included.
func (s *Scorer) nameSignal(a, b *models.Entity) signal {
	variantsA := append([]string{a.CanonicalName}, a.Names.All()...)
	variantsB := append([]string{b.CanonicalName}, b.Names.All()...)

	best := 0.0
	for _, na := range variantsA {
		if na == "" {
			continue
		}
		for _, nb := range variantsB {
			if nb == "" {
				continue
			}
			if sim := s.names.Compare(na, nb); sim.Score > best {
				best = sim.Score
			}
		}
	}
	return signal{score: best, available: true}
}

// dateSignal buckets the year difference for the first date role both
// entities carry.
func (s *Scorer) dateSignal(a, b *models.Entity) signal {
	roles, ok := dateRoles[a.Type]
	if !ok {
		return signal{}
	}

	var oneSided bool
	for _, role := range roles {
		yearA, okA := yearFor(a, role)
		yearB, okB := yearFor(b, role)
		switch {
		case okA && okB:
			return signal{score: yearDiffScore(yearA, yearB), available: true}
		case okA || okB:
			oneSided = true
		}
	}
	if oneSided {
		return signal{score: neutralScore, available: true, partial: true}
	}
	return signal{}
}

func yearFor(e *models.Entity, role string) (int, bool) {
	info, ok := e.Dates[role]
	if !ok || info.Year == nil {
		return 0, false
	}
	return *info.Year, true
}

// yearDiffScore buckets an absolute year difference. Lifetimes in this
// corpus are often known only to within a few years, so small gaps barely
// count against a pair.
func yearDiffScore(a, b int) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return 1.0
	case diff <= 5:
		return 0.85
	case diff <= 10:
		return 0.70
	case diff <= 20:
		return 0.50
	default:
		return 0.0
	}
}

// locationSignal compares affiliation sets, or the region/country hierarchy
// for places.
func (s *Scorer) locationSignal(a, b *models.Entity) signal {
	if a.Type == models.EntityTypePlace {
		return placeHierarchySignal(a, b)
	}

	affA := stringSlice(a.Attributes["affiliations"])
	affB := stringSlice(b.Attributes["affiliations"])
	switch {
	case len(affA) > 0 && len(affB) > 0:
		return signal{score: jaccard(affA, affB), available: true}
	case len(affA) > 0 || len(affB) > 0:
		return signal{score: neutralScore, available: true, partial: true}
	default:
		return signal{}
	}
}

func placeHierarchySignal(a, b *models.Entity) signal {
	regionA, _ := a.Attributes["region"].(string)
	regionB, _ := b.Attributes["region"].(string)
	countryA, _ := a.Attributes["country"].(string)
	countryB, _ := b.Attributes["country"].(string)

	if regionA == "" && regionB == "" && countryA == "" && countryB == "" {
		return signal{}
	}
	if (regionA == "" && countryA == "") || (regionB == "" && countryB == "") {
		return signal{score: neutralScore, available: true, partial: true}
	}
	if regionA != "" && regionA == regionB {
		return signal{score: 0.8, available: true}
	}
	if countryA != "" && countryA == countryB {
		return signal{score: 0.6, available: true}
	}
	return signal{score: 0, available: true}
}

// relationshipSignal compares shared-connection sets when a lister is wired.
func (s *Scorer) relationshipSignal(ctx context.Context, a, b *models.Entity) signal {
	if s.connections == nil {
		return signal{}
	}

	connA, err := s.connections.ListConnectionIDs(ctx, a.ID)
	if err != nil {
		return signal{score: neutralScore, available: true, partial: true}
	}
	connB, err := s.connections.ListConnectionIDs(ctx, b.ID)
	if err != nil {
		return signal{score: neutralScore, available: true, partial: true}
	}

	switch {
	case len(connA) > 0 && len(connB) > 0:
		return signal{score: jaccard(connA, connB), available: true}
	case len(connA) > 0 || len(connB) > 0:
		return signal{score: neutralScore, available: true, partial: true}
	default:
		return signal{}
	}
}

// attributeSignal averages agreement over the type's comparable attribute
// keys that both entities carry.
func (s *Scorer) attributeSignal(a, b *models.Entity) signal {
	keys := attributeKeys[a.Type]

	var sum float64
	shared := 0
	oneSided := false
	for _, key := range keys {
		valA, okA := a.Attributes[key]
		valB, okB := b.Attributes[key]
		switch {
		case okA && okB:
			sum += attributeAgreement(valA, valB)
			shared++
		case okA || okB:
			oneSided = true
		}
	}

	if shared > 0 {
		return signal{score: sum / float64(shared), available: true}
	}
	if oneSided {
		return signal{score: neutralScore, available: true, partial: true}
	}
	return signal{}
}

func attributeAgreement(a, b any) float64 {
	listA := stringSlice(a)
	listB := stringSlice(b)
	if len(listA) > 0 && len(listB) > 0 {
		return jaccard(listA, listB)
	}
	if fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) {
		return 1.0
	}
	return 0.0
}

// stringSlice coerces a JSON-decoded attribute into a string slice.
// Scalars and non-string lists yield nil.
func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, str)
		}
		return out
	default:
		return nil
	}
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

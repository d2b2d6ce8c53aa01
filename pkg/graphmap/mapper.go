// Package graphmap converts relational records to graph-store shapes and
// back. Every conversion is pure and lossless: a value mapped into the graph
// and back is identical to the original.
package graphmap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/khandro-archive/namthar/pkg/models"
)

// EntityLabel is the common label every synced node carries, alongside its
// type-specific label.
const EntityLabel = "Entity"

// Labels returns the graph labels for an entity type: ["Entity", "Person"].
func Labels(entityType models.EntityType) []string {
	return []string{EntityLabel, TypeLabel(entityType)}
}

// TypeLabel title-cases an entity type for use as a node label.
func TypeLabel(entityType models.EntityType) string {
	t := string(entityType)
	if t == "" {
		return ""
	}
	return strings.ToUpper(t[:1]) + strings.ToLower(t[1:])
}

// TypeFromLabels recovers the entity type from a node's label set.
func TypeFromLabels(labels []string) (models.EntityType, error) {
	for _, label := range labels {
		if label == EntityLabel {
			continue
		}
		entityType := models.EntityType(strings.ToLower(label))
		if models.ValidEntityTypes[entityType] {
			return entityType, nil
		}
	}
	return "", fmt.Errorf("no entity type label in %v", labels)
}

// PredicateToRelType converts a predicate to its graph relationship type:
// teacher_of -> TEACHER_OF.
func PredicateToRelType(predicate string) string {
	return strings.ToUpper(predicate)
}

// RelTypeToPredicate converts a graph relationship type back to a predicate.
func RelTypeToPredicate(relType string) string {
	return strings.ToLower(relType)
}

// EntityToNode flattens an entity into graph node properties. Structured
// fields become JSON text, booleans become 0/1 integers, confidence becomes
// a decimal string and timestamps become RFC 3339.
func EntityToNode(e *models.Entity) (map[string]any, error) {
	names, err := toJSONText(e.Names)
	if err != nil {
		return nil, fmt.Errorf("encode names: %w", err)
	}
	attributes, err := toJSONText(e.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	dates, err := toJSONText(e.Dates)
	if err != nil {
		return nil, fmt.Errorf("encode dates: %w", err)
	}
	provenance, err := toJSONText(e.Provenance)
	if err != nil {
		return nil, fmt.Errorf("encode provenance: %w", err)
	}

	props := map[string]any{
		"id":             e.ID,
		"type":           string(e.Type),
		"canonical_name": e.CanonicalName,
		"names":          names,
		"attributes":     attributes,
		"dates":          dates,
		"confidence":     floatToString(e.Confidence),
		"verified":       boolToInt(e.Verified),
		"merge_status":   e.MergeStatus,
		"provenance":     provenance,
		"created_by":     e.CreatedBy,
		"created_at":     timeToString(e.CreatedAt),
		"updated_at":     timeToString(e.UpdatedAt),
	}
	if e.MergedInto != nil {
		props["merged_into"] = *e.MergedInto
	}
	if e.VerifiedBy != nil {
		props["verified_by"] = *e.VerifiedBy
	}
	if e.VerifiedAt != nil {
		props["verified_at"] = timeToString(*e.VerifiedAt)
	}
	return props, nil
}

// NodeToEntity rebuilds an entity from graph node properties.
func NodeToEntity(props map[string]any) (*models.Entity, error) {
	e := &models.Entity{
		ID:            stringProp(props, "id"),
		Type:          models.EntityType(stringProp(props, "type")),
		CanonicalName: stringProp(props, "canonical_name"),
		MergeStatus:   stringProp(props, "merge_status"),
		CreatedBy:     stringProp(props, "created_by"),
	}

	if err := fromJSONText(stringProp(props, "names"), &e.Names); err != nil {
		return nil, fmt.Errorf("decode names: %w", err)
	}
	if err := fromJSONText(stringProp(props, "attributes"), &e.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if err := fromJSONText(stringProp(props, "dates"), &e.Dates); err != nil {
		return nil, fmt.Errorf("decode dates: %w", err)
	}
	if err := fromJSONText(stringProp(props, "provenance"), &e.Provenance); err != nil {
		return nil, fmt.Errorf("decode provenance: %w", err)
	}

	confidence, err := stringToFloat(stringProp(props, "confidence"))
	if err != nil {
		return nil, fmt.Errorf("decode confidence: %w", err)
	}
	e.Confidence = confidence
	e.Verified = intToBool(props["verified"])

	if e.CreatedAt, err = stringToTime(stringProp(props, "created_at")); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if e.UpdatedAt, err = stringToTime(stringProp(props, "updated_at")); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}

	if v, ok := props["merged_into"].(string); ok {
		e.MergedInto = &v
	}
	if v, ok := props["verified_by"].(string); ok {
		e.VerifiedBy = &v
	}
	if v, ok := props["verified_at"].(string); ok {
		t, err := stringToTime(v)
		if err != nil {
			return nil, fmt.Errorf("decode verified_at: %w", err)
		}
		e.VerifiedAt = &t
	}
	return e, nil
}

// RelationshipToEdge flattens a relationship into edge properties. Endpoint
// ids ride along on the edge so orphans can be detected without walking
// node identity.
func RelationshipToEdge(rel *models.Relationship) (map[string]any, error) {
	properties, err := toJSONText(rel.Properties)
	if err != nil {
		return nil, fmt.Errorf("encode properties: %w", err)
	}
	provenance, err := toJSONText(rel.Provenance)
	if err != nil {
		return nil, fmt.Errorf("encode provenance: %w", err)
	}

	return map[string]any{
		"id":         rel.ID,
		"subject_id": rel.SubjectID,
		"object_id":  rel.ObjectID,
		"properties": properties,
		"confidence": floatToString(rel.Confidence),
		"verified":   boolToInt(rel.Verified),
		"provenance": provenance,
		"created_at": timeToString(rel.CreatedAt),
		"updated_at": timeToString(rel.UpdatedAt),
	}, nil
}

// EdgeToRelationship rebuilds a relationship from its graph type and edge
// properties.
func EdgeToRelationship(relType string, props map[string]any) (*models.Relationship, error) {
	rel := &models.Relationship{
		ID:        stringProp(props, "id"),
		SubjectID: stringProp(props, "subject_id"),
		Predicate: RelTypeToPredicate(relType),
		ObjectID:  stringProp(props, "object_id"),
	}

	if err := fromJSONText(stringProp(props, "properties"), &rel.Properties); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	if err := fromJSONText(stringProp(props, "provenance"), &rel.Provenance); err != nil {
		return nil, fmt.Errorf("decode provenance: %w", err)
	}

	confidence, err := stringToFloat(stringProp(props, "confidence"))
	if err != nil {
		return nil, fmt.Errorf("decode confidence: %w", err)
	}
	rel.Confidence = confidence
	rel.Verified = intToBool(props["verified"])

	if rel.CreatedAt, err = stringToTime(stringProp(props, "created_at")); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if rel.UpdatedAt, err = stringToTime(stringProp(props, "updated_at")); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return rel, nil
}

func toJSONText(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func fromJSONText(text string, target any) error {
	if text == "" {
		return nil
	}
	return json.Unmarshal([]byte(text), target)
}

// floatToString keeps full float precision through the graph store, which
// would otherwise coerce numeric properties.
func floatToString(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func stringToFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func boolToInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// intToBool accepts the integer shapes the graph driver may hand back.
func intToBool(v any) bool {
	switch val := v.(type) {
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case bool:
		return val
	default:
		return false
	}
}

func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func stringToTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func stringProp(props map[string]any, key string) string {
	v, _ := props[key].(string)
	return v
}

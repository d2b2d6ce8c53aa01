package dedupe

import (
	"sort"

	"github.com/khandro-archive/namthar/pkg/models"
)

// DefaultClusterThreshold is the minimum pairwise score for two entities to
// land in the same cluster.
const DefaultClusterThreshold = 0.70

// ClusterBuilder groups scored pairs into connected components.
type ClusterBuilder struct {
	threshold float64
}

// NewClusterBuilder creates a ClusterBuilder. A non-positive threshold
// falls back to the default.
func NewClusterBuilder(threshold float64) *ClusterBuilder {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	return &ClusterBuilder{threshold: threshold}
}

// Build returns the connected components of the pair graph, one cluster per
// component with two or more members. Each cluster elects a canonical
// member: highest confidence, then most complete record, then lowest id.
// Output order and membership order are deterministic for a given input set.
func (c *ClusterBuilder) Build(scores []models.DuplicateScore, entities map[string]*models.Entity) []models.EntityCluster {
	adjacency := map[string][]string{}
	for _, score := range scores {
		if score.Overall < c.threshold {
			continue
		}
		adjacency[score.EntityID1] = append(adjacency[score.EntityID1], score.EntityID2)
		adjacency[score.EntityID2] = append(adjacency[score.EntityID2], score.EntityID1)
	}

	ids := make([]string, 0, len(adjacency))
	for id := range adjacency {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sort.Strings(adjacency[id])
	}

	visited := map[string]bool{}
	var clusters []models.EntityCluster

	for _, start := range ids {
		if visited[start] {
			continue
		}

		members := collectComponent(start, adjacency, visited)
		if len(members) < 2 {
			continue
		}

		sort.Strings(members)
		clusters = append(clusters, models.EntityCluster{
			MemberIDs:   members,
			CanonicalID: electCanonical(members, entities),
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].MemberIDs[0] < clusters[j].MemberIDs[0]
	})
	return clusters
}

// collectComponent walks the component containing start depth-first.
func collectComponent(start string, adjacency map[string][]string, visited map[string]bool) []string {
	var members []string
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		members = append(members, id)
		for _, neighbor := range adjacency[id] {
			if !visited[neighbor] {
				stack = append(stack, neighbor)
			}
		}
	}
	return members
}

func electCanonical(members []string, entities map[string]*models.Entity) string {
	canonical := members[0]
	for _, id := range members[1:] {
		if better(entities[id], entities[canonical]) {
			canonical = id
		}
	}
	return canonical
}

// better reports whether a should be canonical over b. Members is sorted, so
// ties resolve to the lowest id by iteration order.
func better(a, b *models.Entity) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Completeness() > b.Completeness()
}

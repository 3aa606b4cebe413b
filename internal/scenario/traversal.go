package scenario

import (
	"sort"

	"marketintel/pkg/types"
)

// neighborEdge is one side of a relationship as seen from a specific node:
// the neighbor's key plus the relationship row, oriented so callers don't
// need to re-check which side is "this" node.
type neighborEdge struct {
	neighbor string
	rel      types.Relationship
}

// buildAdjacency indexes every relationship by both endpoints, so each
// node's neighbor list can be walked in one map lookup.
func buildAdjacency(relationships []types.Relationship) map[string][]neighborEdge {
	adjacency := make(map[string][]neighborEdge)
	for _, rel := range relationships {
		adjacency[rel.MarketKeyA] = append(adjacency[rel.MarketKeyA], neighborEdge{neighbor: rel.MarketKeyB, rel: rel})
		adjacency[rel.MarketKeyB] = append(adjacency[rel.MarketKeyB], neighborEdge{neighbor: rel.MarketKeyA, rel: rel})
	}
	for key := range adjacency {
		edges := adjacency[key]
		sort.Slice(edges, func(i, j int) bool { return edges[i].neighbor < edges[j].neighbor })
	}
	return adjacency
}

// propagate implements spec §4.5(d)'s direction propagation algebra.
func propagate(direction string, rel types.Relationship) string {
	switch {
	case rel.RelationshipType == types.RelationshipEquivalent:
		return direction
	case isImplied(rel.RelationshipType):
		return direction
	case rel.RelationshipType == types.RelationshipMutuallyExclusive:
		return flip(direction)
	case rel.RelationshipType == types.RelationshipCorrelated:
		if rel.ImpactDirection == types.ImpactNegative {
			return flip(direction)
		}
		return direction
	default:
		return direction
	}
}

// isImplied recognizes "implied" and source-language synonyms like
// "implied_conditional" (spec §4.5(d) parenthetical).
func isImplied(t types.RelationshipType) bool {
	return t == types.RelationshipImplied || string(t) == "implied_conditional"
}

func flip(direction string) string {
	if direction == "UP" {
		return "DOWN"
	}
	return "UP"
}

type queueEntry struct {
	marketKey  string
	direction  string
	depth      int
	path       []string
	cumulative float64
}

// traverse runs the bounded BFS from origin (spec §4.5(d)): each market_key
// is expanded at most once, cumulative confidence is the product of edge
// confidences along the path, and any path whose cumulative confidence
// drops below minConfidence is pruned without expansion. Returns the
// impacts sorted by cumulative confidence descending, and the deduplicated
// directed tree edges used to reach them.
func traverse(origin, direction string, adjacency map[string][]neighborEdge, maxDepth int, minConfidence float64) ([]types.CausalStep, []types.AffectedEdge) {
	visited := map[string]bool{origin: true}
	queue := []queueEntry{{marketKey: origin, direction: direction, depth: 0, path: []string{origin}, cumulative: 1.0}}

	impacts := make([]types.CausalStep, 0)
	edges := make([]types.AffectedEdge, 0)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= maxDepth {
			continue
		}

		for _, edge := range adjacency[current.marketKey] {
			if visited[edge.neighbor] {
				continue
			}

			cumulative := current.cumulative * edge.rel.ConfidenceScore
			if cumulative < minConfidence {
				continue
			}

			visited[edge.neighbor] = true
			propagatedDirection := propagate(current.direction, edge.rel)
			path := append(append([]string{}, current.path...), edge.neighbor)

			impacts = append(impacts, types.CausalStep{
				MarketKey:            edge.neighbor,
				PropagationOrder:     current.depth + 1,
				RelationshipType:     edge.rel.RelationshipType,
				Direction:            propagatedDirection,
				CumulativeConfidence: cumulative,
				EdgeConfidence:       edge.rel.ConfidenceScore,
				Path:                 path,
				Justification:        edge.rel.LogicJustification,
				Insight:              edge.rel.VantageInsight,
				CorrelationStrength:  edge.rel.CorrelationStrength,
				LogicalLayer:         edge.rel.LogicalLayer,
				ProbabilityA:         edge.rel.ProbabilityA,
				ProbabilityB:         edge.rel.ProbabilityB,
			})

			edges = append(edges, types.AffectedEdge{
				Source:           current.marketKey,
				Target:           edge.neighbor,
				RelationshipType: edge.rel.RelationshipType,
				Direction:        propagatedDirection,
				EdgeConfidence:   edge.rel.ConfidenceScore,
			})

			queue = append(queue, queueEntry{
				marketKey:  edge.neighbor,
				direction:  propagatedDirection,
				depth:      current.depth + 1,
				path:       path,
				cumulative: cumulative,
			})
		}
	}

	sort.SliceStable(impacts, func(i, j int) bool {
		return impacts[i].CumulativeConfidence > impacts[j].CumulativeConfidence
	})

	return impacts, edges
}

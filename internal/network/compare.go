package network

import (
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// CompareOptions controls how edges are matched between two networks.
type CompareOptions struct {
	// Directed keeps (a,b) and (b,a) distinct. The default treats edges as
	// unordered pairs.
	Directed bool
}

type edgeKey struct {
	a, b string
}

func keyOf(e models.Edge, directed bool) edgeKey {
	if !directed && e.Target < e.Source {
		return edgeKey{a: e.Target, b: e.Source}
	}
	return edgeKey{a: e.Source, b: e.Target}
}

func edgeSet(edges []models.Edge, directed bool) map[edgeKey]struct{} {
	set := make(map[edgeKey]struct{}, len(edges))
	for _, e := range edges {
		set[keyOf(e, directed)] = struct{}{}
	}
	return set
}

// Compare computes set overlap statistics between two edge lists. Weights
// are ignored and duplicate edges collapse. Jaccard is 0 when both sets are
// empty.
func Compare(a, b []models.Edge, opts CompareOptions) models.NetworkComparison {
	setA := edgeSet(a, opts.Directed)
	setB := edgeSet(b, opts.Directed)

	overlap := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			overlap++
		}
	}

	c := models.NetworkComparison{
		Directed: opts.Directed,
		Overlap:  overlap,
		OnlyInA:  len(setA) - overlap,
		OnlyInB:  len(setB) - overlap,
		TotalA:   len(setA),
		TotalB:   len(setB),
	}
	if union := len(setA) + len(setB) - overlap; union > 0 {
		c.Jaccard = float64(overlap) / float64(union)
	}
	return c
}

package network

import (
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// Summarize computes topology statistics. Degree is undirected: each edge
// adds one to its source and one to its target, so a self-loop adds two.
// Density is 2E / (N(N-1)) and is 0 when there are fewer than two nodes.
func Summarize(edges []models.Edge) models.NetworkSummary {
	degree := make(map[string]int)
	for _, e := range edges {
		degree[e.Source]++
		degree[e.Target]++
	}

	s := models.NetworkSummary{
		NumEdges:           len(edges),
		NumNodes:           len(degree),
		DegreeDistribution: make(map[int]int),
	}

	if s.NumNodes > 1 {
		n := float64(s.NumNodes)
		s.Density = 2 * float64(s.NumEdges) / (n * (n - 1))
	}

	total := 0
	for _, d := range degree {
		total += d
		if d > s.MaxDegree {
			s.MaxDegree = d
		}
		s.DegreeDistribution[d]++
	}
	if len(degree) > 0 {
		s.AvgDegree = float64(total) / float64(len(degree))
	}
	return s
}

// Stats condenses a parse result into the figures stored on a job record.
func Stats(res *ParseResult, outputFile string) models.NetworkStats {
	nodes := make(map[string]struct{})
	for _, e := range res.Edges {
		nodes[e.Source] = struct{}{}
		nodes[e.Target] = struct{}{}
	}
	return models.NetworkStats{
		NumEdges:    len(res.Edges),
		NumNodes:    len(nodes),
		SkippedRows: res.Skipped,
		OutputFile:  outputFile,
	}
}

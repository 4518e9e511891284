package models

// Edge is a single inferred regulatory relationship.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// NetworkSummary holds topology statistics for one network.
type NetworkSummary struct {
	NumEdges           int         `json:"num_edges"`
	NumNodes           int         `json:"num_nodes"`
	Density            float64     `json:"density"`
	AvgDegree          float64     `json:"avg_degree"`
	MaxDegree          int         `json:"max_degree"`
	DegreeDistribution map[int]int `json:"degree_distribution"`
	SkippedRows        int         `json:"skipped_rows"`
}

// NetworkComparison is the edge-set overlap of two networks.
type NetworkComparison struct {
	JobA     string  `json:"job_a,omitempty"`
	JobB     string  `json:"job_b,omitempty"`
	Directed bool    `json:"directed"`
	Jaccard  float64 `json:"jaccard"`
	Overlap  int     `json:"overlap"`
	OnlyInA  int     `json:"only_in_a"`
	OnlyInB  int     `json:"only_in_b"`
	TotalA   int     `json:"total_a"`
	TotalB   int     `json:"total_b"`
}

package registry

import (
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

func intParam(def int64, desc string) models.ParamSpec {
	return models.ParamSpec{Type: models.ParamInteger, Default: def, Description: desc}
}

func numParam(def float64, desc string) models.ParamSpec {
	return models.ParamSpec{Type: models.ParamNumber, Default: def, Description: desc}
}

func floatPtr(f float64) *float64 {
	return &f
}

// builtin is the BEELINE algorithm set published under the given registry.
func builtin(dockerRegistry string) []models.Algorithm {
	algs := []models.Algorithm{
		{
			Name:        "scode",
			DisplayName: "SCODE",
			Description: "SCODE - Single-Cell Optimal Experimental Design",
			Parameters: map[string]models.ParamSpec{
				"num_runs": {Type: models.ParamInteger, Default: int64(10), Description: "Number of runs", Min: floatPtr(1)},
				"seed":     intParam(42, "Random seed"),
			},
		},
		{
			Name:        "scns",
			DisplayName: "SCNS",
			Description: "SCNS - Single-Cell Network Synthesis",
			Parameters: map[string]models.ParamSpec{
				"alpha": numParam(0.1, "Regularization parameter"),
			},
		},
		{
			Name:        "sincerities",
			DisplayName: "SINCERITIES",
			Description: "SINCERITIES - Single-Cell Network Inference",
			Parameters: map[string]models.ParamSpec{
				"delta_t": numParam(1.0, "Time step"),
			},
		},
		{
			Name:        "pidc",
			DisplayName: "PIDC",
			Description: "PIDC - Partial Information Decomposition and Context",
		},
		{
			Name:        "grnvbem",
			DisplayName: "GRNVBEM",
			Description: "GRNVBEM - Gene Regulatory Network Variational Bayes EM",
			Parameters: map[string]models.ParamSpec{
				"max_iter": {Type: models.ParamInteger, Default: int64(100), Description: "Maximum iterations", Min: floatPtr(1)},
			},
		},
		{
			Name:        "genie3",
			DisplayName: "GENIE3",
			Description: "GENIE3 - GRN Inference using Ensemble Regression Trees",
			Parameters: map[string]models.ParamSpec{
				"n_trees": {Type: models.ParamInteger, Default: int64(1000), Description: "Number of trees", Min: floatPtr(1)},
			},
		},
		{
			Name:        "grnboost2",
			DisplayName: "GRNBOOST2",
			Description: "GRNBOOST2 - GRN Inference using Gradient Boosting",
			Parameters: map[string]models.ParamSpec{
				"n_jobs": intParam(-1, "Number of parallel jobs"),
			},
		},
		{
			Name:        "leap",
			DisplayName: "LEAP",
			Description: "LEAP - Linear Equation Assumption Propagation",
			Parameters: map[string]models.ParamSpec{
				"lambda": numParam(0.01, "Regularization parameter"),
			},
		},
		{
			Name:        "jump3",
			DisplayName: "JUMP3",
			Description: "JUMP3 - Jump3 GRN inference",
		},
		{
			Name:        "ppcor",
			DisplayName: "PPCOR",
			Description: "PPCOR - Partial Pearson Correlation",
			Parameters: map[string]models.ParamSpec{
				"method": {
					Type:        models.ParamString,
					Default:     "pearson",
					Description: "Correlation method",
					Enum:        []string{"pearson", "spearman"},
				},
			},
		},
		{
			Name:        "grisli",
			DisplayName: "GRISLI",
			Description: "GRISLI - GRN using Sparse Linear Model",
			Parameters: map[string]models.ParamSpec{
				"alpha": numParam(1.0, "Elastic net alpha"),
			},
		},
		{
			Name:        "singe",
			DisplayName: "SINGE",
			Description: "SINGE - Sparse Inverse covariance estimation for Network Generation",
		},
	}

	for i := range algs {
		algs[i].Image = dockerRegistry + "/" + algs[i].Name + ":latest"
		algs[i].Command = []string{"python", "-m", "runners." + algs[i].Name + "_runner"}
		if algs[i].Parameters == nil {
			algs[i].Parameters = map[string]models.ParamSpec{}
		}
	}
	return algs
}

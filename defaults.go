package ensemble

import "github.com/hupe1980/ensemble/params"

// Algorithm names accepted by Run and listed by Available.
const (
	AlgorithmKMeans        = "kmeans"
	AlgorithmSpectral      = "spectral"
	AlgorithmAgglomerative = "agglomerative"
	AlgorithmDBSCAN        = "DBSCAN"
)

// defaults holds the recognized options of every algorithm. Callers only
// ever see copies.
var defaults = map[string]params.Params{
	AlgorithmKMeans: {
		"init":                 "k-means++",
		"n_init":               10,
		"max_iter":             300,
		"tol":                  0.0001,
		"precompute_distances": "auto",
		"verbose":              0,
		"random_state":         nil,
		"copy_x":               true,
		"n_jobs":               1,
	},
	AlgorithmSpectral: {
		"eigen_solver":  nil,
		"random_state":  nil,
		"n_init":        10,
		"gamma":         1.0,
		"affinity":      "rbf",
		"n_neighbors":   10,
		"eigen_tol":     "0.0",
		"assign_labels": "kmeans",
		"degree":        3,
		"coef0":         1,
		"kernel_params": nil,
	},
	AlgorithmAgglomerative: {
		"affinity":          "euclidean",
		"connectivity":      nil,
		"n_components":      nil,
		"compute_full_tree": "auto",
		"linkage":           "ward",
		"pooling_func":      "mean",
	},
	AlgorithmDBSCAN: {
		"eps":          0.5,
		"min_samples":  5,
		"metric":       "euclidean",
		"algorithm":    "auto",
		"leaf_size":    30,
		"p":            nil,
		"random_state": nil,
	},
}

// Defaults returns a fresh copy of the default options of the named
// algorithm. The second result is false for unknown names.
func Defaults(name string) (params.Params, bool) {
	d, ok := defaults[name]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

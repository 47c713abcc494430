package ensemble

import (
	"maps"
	"slices"

	"github.com/hupe1980/ensemble/cluster"
)

// routineFactory builds the routine for one algorithm, wired to the
// facade's logger and resource controller.
type routineFactory func(o *options) cluster.Routine

// registry is the static table of invocable algorithms.
var registry = map[string]routineFactory{
	AlgorithmKMeans: func(o *options) cluster.Routine {
		return &cluster.KMeans{Logger: o.logger.Logger, Resources: o.resources}
	},
	AlgorithmSpectral: func(o *options) cluster.Routine {
		return &cluster.Spectral{Logger: o.logger.Logger, Resources: o.resources}
	},
	AlgorithmAgglomerative: func(o *options) cluster.Routine {
		return &cluster.Agglomerative{Logger: o.logger.Logger, Resources: o.resources}
	},
	AlgorithmDBSCAN: func(o *options) cluster.Routine {
		return &cluster.DBSCAN{Logger: o.logger.Logger}
	},
}

// Algorithms returns the registered algorithm names in sorted order.
func Algorithms() []string {
	return slices.Sorted(maps.Keys(registry))
}

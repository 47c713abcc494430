// Package ensemble provides a uniform facade over several clustering
// algorithms.
//
// A Facade holds a dataset, a requested cluster count and an option
// overlay. Every algorithm has a fixed set of recognized options with
// defaults; when it runs, the overlay values for recognized keys replace
// the defaults and every other overlay key is ignored. The same overlay can
// therefore configure several algorithms at once.
//
// # Quick Start
//
//	data := mat.NewDense(10, 3, values)
//	f := ensemble.New(data, params.Params{"max_iter": 50}, ensemble.WithK(2))
//
//	res, _ := f.KMeans(ctx)
//	fmt.Println(res.Assignment, res.Params["max_iter"])
//
//	res, _ = f.Run(ctx, "DBSCAN") // labels may include cluster.Noise
//
// # Algorithms
//
//   - kmeans: Lloyd's algorithm with k-means++ seeding and restarts
//   - spectral: normalized spectral embedding, then k-means or discretization
//   - agglomerative: ward, complete, average or single linkage
//   - DBSCAN: density-based clustering with brute force or kd-tree neighbours
//
// Available lists the names; Defaults returns the recognized options and
// their default values for one algorithm.
//
// # Results
//
// Every invocation returns a fresh *Result carrying the labels and the
// effective options. Nothing is stored on the facade, so results from
// different algorithms never mix. Use the archive package to keep a history
// of runs.
//
// # Errors
//
// The facade does not validate options. Errors from the clustering routines
// (see package cluster) are returned unchanged; use errors.Is and errors.As
// to inspect them.
package ensemble

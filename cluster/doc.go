// Package cluster implements the clustering routines behind the ensemble
// facade: k-means, spectral clustering, agglomerative clustering and DBSCAN.
//
// Every routine implements Routine. It receives the dataset as a gonum
// mat.Matrix, the requested cluster count and the fully merged option set,
// and returns one label per row:
//
//	labels, err := (&cluster.KMeans{}).Fit(ctx, data, 3, opts)
//
// Routines validate their own options and report problems as
// *InvalidOptionError. They never modify the dataset.
//
// # Labels
//
// Labels are dense integers starting at 0. DBSCAN labels points that belong
// to no cluster with Noise (-1) and ignores the requested cluster count.
//
// # Resources
//
// KMeans, Spectral and Agglomerative accept an optional *resource.Controller.
// Spectral and Agglomerative account their n*n matrices against its memory
// limit; k-means restarts each hold a worker slot while they run.
package cluster

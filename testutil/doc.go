// Package testutil provides testing utilities for ensemble.
//
// This package is intended for use in tests and examples only.
// It provides seeded generators for synthetic datasets and helpers for
// comparing clusterings.
//
// # Synthetic Datasets
//
//	rng := testutil.NewRNG(seed)
//	data, truth := rng.SeparatedBlobs(3, 20, 2, 10, 0.5)
//
// # Comparing Labelings
//
//	score := testutil.RandIndex(truth, labels) // 1.0 = identical partitions
package testutil

// Package params holds clustering option maps and the overlay merge.
//
// Every algorithm owns a fixed table of recognized options. A caller-supplied
// overlay is merged onto that table with Merge: recognized keys take the
// caller's value, unknown keys are dropped, and the result always carries
// exactly the default keys.
//
//	effective := params.Merge(defaults, params.Params{"max_iter": 50, "bogus": 1})
//	// effective["max_iter"] == 50, "bogus" is gone
//
// Overlays can also be read from JSON, TOML or YAML documents:
//
//	overlay, err := params.Load("kmeans.toml")
package params

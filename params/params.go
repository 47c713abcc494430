package params

import (
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Params maps option names to untyped values.
//
// A nil value means "not set" and is a legitimate default (for example
// random_state=nil selects a time-based seed).
type Params map[string]any

// Merge overlays recognized keys from overlay onto defaults.
//
// The result holds exactly the keys of defaults. Keys present only in overlay
// are ignored. Neither argument is modified.
func Merge(defaults, overlay Params) Params {
	merged := make(Params, len(defaults))
	for key, value := range defaults {
		if override, ok := overlay[key]; ok {
			merged[key] = override
			continue
		}
		merged[key] = value
	}
	return merged
}

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Keys returns the option names in sorted order.
func (p Params) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Has reports whether key is present (possibly with a nil value).
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// IsNil reports whether key is absent or explicitly nil.
func (p Params) IsNil(key string) bool {
	return p[key] == nil
}

// Portable returns a copy of p that survives JSON encoding.
//
// Functions are replaced by their type name and gonum matrices by nested
// slices. Nested Params and maps are converted recursively.
func (p Params) Portable() Params {
	out := make(Params, len(p))
	for key, value := range p {
		out[key] = portable(value)
	}
	return out
}

func portable(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64, uint, uint32, uint64:
		return x
	case []int, []float64, []string, [][]float64, [][]bool:
		return x
	case Params:
		return x.Portable()
	case map[string]any:
		return Params(x).Portable()
	case mat.Matrix:
		r, c := x.Dims()
		rows := make([][]float64, r)
		for i := range rows {
			rows[i] = mat.Row(make([]float64, c), i, x)
		}
		return rows
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = portable(x[i])
		}
		return out
	case func([]float64) float64:
		return fmt.Sprintf("%T", x)
	default:
		return fmt.Sprint(x)
	}
}

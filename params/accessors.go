package params

import (
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

var (
	// ErrMissing is returned when a required option is absent or nil.
	ErrMissing = errors.New("option missing")

	// ErrType is returned when an option value cannot be coerced.
	ErrType = errors.New("option has wrong type")
)

// TypeError describes an option whose value cannot be coerced to the wanted type.
type TypeError struct {
	Key   string
	Value any
	Want  string
	cause error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("option %q: cannot use %v (%T) as %s", e.Key, e.Value, e.Value, e.Want)
}

// Unwrap returns ErrType and the coercion failure.
func (e *TypeError) Unwrap() []error { return []error{ErrType, e.cause} }

// MissingError names the option that was required but not set.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string { return fmt.Sprintf("option %q: %v", e.Key, ErrMissing) }

// Unwrap returns ErrMissing.
func (e *MissingError) Unwrap() error { return ErrMissing }

func lookup(p Params, key string) (any, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, &MissingError{Key: key}
	}
	return v, nil
}

// Int returns key coerced to an int.
func (p Params) Int(key string) (int, error) {
	v, err := lookup(p, key)
	if err != nil {
		return 0, err
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, &TypeError{Key: key, Value: v, Want: "int", cause: err}
	}
	return n, nil
}

// Float returns key coerced to a float64.
func (p Params) Float(key string) (float64, error) {
	v, err := lookup(p, key)
	if err != nil {
		return 0, err
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &TypeError{Key: key, Value: v, Want: "float", cause: err}
	}
	return f, nil
}

// String returns key as a string. Only string values are accepted.
func (p Params) String(key string) (string, error) {
	v, err := lookup(p, key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Key: key, Value: v, Want: "string", cause: fmt.Errorf("%T is not a string", v)}
	}
	return s, nil
}

// Bool returns key coerced to a bool.
func (p Params) Bool(key string) (bool, error) {
	v, err := lookup(p, key)
	if err != nil {
		return false, err
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, &TypeError{Key: key, Value: v, Want: "bool", cause: err}
	}
	return b, nil
}

// OptionalInt returns (value, true, nil) when key is set, (0, false, nil)
// when it is absent or nil.
func (p Params) OptionalInt(key string) (int, bool, error) {
	if p.IsNil(key) {
		return 0, false, nil
	}
	n, err := p.Int(key)
	return n, err == nil, err
}

// OptionalFloat is the float counterpart of OptionalInt.
func (p Params) OptionalFloat(key string) (float64, bool, error) {
	if p.IsNil(key) {
		return 0, false, nil
	}
	f, err := p.Float(key)
	return f, err == nil, err
}

// OptionalString is the string counterpart of OptionalInt.
func (p Params) OptionalString(key string) (string, bool, error) {
	if p.IsNil(key) {
		return "", false, nil
	}
	s, err := p.String(key)
	return s, err == nil, err
}

// Map returns key as a nested option map. Nil yields an empty map.
func (p Params) Map(key string) (Params, error) {
	v := p[key]
	switch m := v.(type) {
	case nil:
		return Params{}, nil
	case Params:
		return m, nil
	case map[string]any:
		return Params(m), nil
	default:
		sm, err := cast.ToStringMapE(v)
		if err != nil {
			return nil, &TypeError{Key: key, Value: v, Want: "map", cause: err}
		}
		return Params(sm), nil
	}
}

// Rows returns key as a dense table of numbers, as used for explicit
// centers or adjacency matrices.
func (p Params) Rows(key string) ([][]float64, error) {
	v, err := lookup(p, key)
	if err != nil {
		return nil, err
	}
	rows, err := ToRows(v)
	if err != nil {
		return nil, &TypeError{Key: key, Value: v, Want: "rows", cause: err}
	}
	return rows, nil
}

// ToRows coerces v into a fresh [][]float64. Besides typed tables it
// accepts the nested []any that JSON, TOML and YAML documents decode to;
// booleans become 0 or 1. Rows must all have the same length.
func ToRows(v any) ([][]float64, error) {
	var rows [][]float64
	switch t := v.(type) {
	case [][]float64:
		rows = make([][]float64, len(t))
		for i := range t {
			rows[i] = append([]float64(nil), t[i]...)
		}
	case [][]bool:
		rows = make([][]float64, len(t))
		for i := range t {
			rows[i] = make([]float64, len(t[i]))
			for j, b := range t[i] {
				if b {
					rows[i][j] = 1
				}
			}
		}
	case [][]int:
		rows = make([][]float64, len(t))
		for i := range t {
			rows[i] = make([]float64, len(t[i]))
			for j, n := range t[i] {
				rows[i][j] = float64(n)
			}
		}
	case []any:
		rows = make([][]float64, len(t))
		for i, r := range t {
			if fs, ok := r.([]float64); ok {
				rows[i] = append([]float64(nil), fs...)
				continue
			}
			cells, err := cast.ToSliceE(r)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			rows[i] = make([]float64, len(cells))
			for j, cell := range cells {
				if rows[i][j], err = cast.ToFloat64E(cell); err != nil {
					return nil, fmt.Errorf("row %d, column %d: %w", i, j, err)
				}
			}
		}
	default:
		return nil, fmt.Errorf("%T is not a table of numbers", v)
	}

	for i := range rows {
		if len(rows[i]) != len(rows[0]) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(rows[i]), len(rows[0]))
		}
	}
	return rows, nil
}

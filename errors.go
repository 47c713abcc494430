package ensemble

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownAlgorithm is returned by Run when the name is not registered.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// UnknownAlgorithmError names the algorithm that was requested but is not
// available.
type UnknownAlgorithmError struct {
	Name string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("unknown algorithm %q (available: %s)", e.Name, strings.Join(Algorithms(), ", "))
}

// Unwrap returns ErrUnknownAlgorithm.
func (e *UnknownAlgorithmError) Unwrap() error { return ErrUnknownAlgorithm }

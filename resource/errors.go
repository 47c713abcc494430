package resource

import (
	"errors"
	"fmt"
)

// ErrLimitExceeded is returned when a single request can never fit the configured limit.
var ErrLimitExceeded = errors.New("resource limit exceeded")

// LimitError reports a request that exceeds a hard limit.
type LimitError struct {
	Resource  string
	Requested int64
	Limit     int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s request of %d exceeds limit %d", e.Resource, e.Requested, e.Limit)
}

// Unwrap returns ErrLimitExceeded.
func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

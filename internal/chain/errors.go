package chain

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks transport-level failures (connection refused, timeout,
// 5xx). Callers may retry with backoff.
var ErrUnavailable = errors.New("chain unavailable")

// RejectionError is a transaction the chain rejected outright (assertion
// failure, insufficient balance, bad precision). Not retryable.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transaction rejected: %s", e.Message)
}

// IsRejection reports whether err is a non-retryable chain rejection.
func IsRejection(err error) bool {
	var r *RejectionError
	return errors.As(err, &r)
}

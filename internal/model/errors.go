package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// GatewayError is returned by gateway implementations for a failed send.
type GatewayError struct {
	StatusCode int
	Transient  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway: %v", e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func Transient(statusCode int, err error) error {
	return &GatewayError{StatusCode: statusCode, Transient: true, Err: err}
}

func Permanent(statusCode int, err error) error {
	return &GatewayError{StatusCode: statusCode, Transient: false, Err: err}
}

// IsTransient classifies a send error. Untyped network errors and deadline
// expiries are transient; anything else that is not a GatewayError is
// treated as permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

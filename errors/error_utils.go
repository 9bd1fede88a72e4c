package errors

import (
	"context"
	"errors"
)

// IsRetryableError determines if an error is transient and the operation could be retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_SERVICE_UNAVAILABLE,
			ERR_STORAGE_UNAVAILABLE:
			return true
		}
	}

	return false
}

// IsContextError determines if an error is related to context cancellation or deadline.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var tErr *Error
	if As(err, &tErr) && tErr.Code() == ERR_CONTEXT_CANCELED {
		return true
	}

	return false
}

// IsCorruptionError reports whether err indicates a record in the store could not be decoded.
func IsCorruptionError(err error) bool {
	return Is(err, ErrMalformedRecord)
}

package model

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentRequestFailed = errors.New("payment request failed")
	ErrChannelUnavailable   = errors.New("notification channel unavailable")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrStaleMessage         = errors.New("stale message")
	ErrRateLimited          = errors.New("too many attempts")
	ErrNotFound             = errors.New("not found")
)

// ValidationError reports bad local input. It is recovered by re-prompting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

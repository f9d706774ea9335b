package otp

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("invalid owner id or code format")
	ErrNoActiveCode    = errors.New("no active code")
	ErrExpired         = errors.New("code expired")
	ErrIncorrect       = errors.New("incorrect code")
	ErrNotifierFailure = errors.New("failed to deliver code")
)

// RateLimitError reports how long the caller must wait before the next
// issuance is allowed.
type RateLimitError struct {
	RetryAfterMinutes int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many code requests, retry after %d minute(s)", e.RetryAfterMinutes)
}

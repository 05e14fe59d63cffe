package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestTransient marks failures worth retrying: network errors,
	// timeouts, 5xx and 429 responses.
	ErrRequestTransient = errors.New("transient request failure")

	// ErrRequestPermanent marks failures that will not succeed on retry:
	// 4xx responses other than 429.
	ErrRequestPermanent = errors.New("permanent request failure")
)

// RequestError is a classified failure returned by the remote service.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("remote returned %d", e.Code)
}

// Unwrap classifies the error by status code.
func (e *RequestError) Unwrap() error {
	if e.Code == 429 || e.Code >= 500 {
		return ErrRequestTransient
	}
	return ErrRequestPermanent
}

// IsTransient reports whether a dispatch failure is retryable. Anything that
// never produced a classified response (transport errors, timeouts) counts
// as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRequestPermanent) {
		return false
	}
	return true
}

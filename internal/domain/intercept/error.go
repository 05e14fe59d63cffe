package intercept

import "errors"

var (
	// ErrNoCacheAvailable: the read could not reach the remote and nothing
	// is cached for the key.
	ErrNoCacheAvailable = errors.New("no cached value available")

	// ErrOfflineNotSupported: the endpoint disallows offline execution and
	// the device cannot sync.
	ErrOfflineNotSupported = errors.New("endpoint does not support offline execution")

	// ErrUnknownEndpoint: no configuration registered for the endpoint.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

package queue

import "errors"

var (
	ErrItemNotFound       = errors.New("queue item not found")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrNotDead            = errors.New("queue item is not dead")
)

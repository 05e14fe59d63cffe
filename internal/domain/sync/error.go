package sync

import "errors"

var (
	// ErrPassInProgress is returned to a trigger that arrived while a pass
	// was running; exactly one follow-up pass has been scheduled.
	ErrPassInProgress = errors.New("sync pass already in progress")

	// ErrOffline is returned when sync-critical traffic is not allowed.
	ErrOffline = errors.New("cannot sync while offline")
)

package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnverifiable = errors.New("could not verify")
	ErrNoFloorPrice = errors.New("no floor price available")
	ErrLockHeld     = errors.New("lock already held")
	ErrCursorUnset  = errors.New("poller cursor unset")
)

package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	// ErrFull is returned by callers that surface a rejected Enqueue.
	ErrFull = errors.New("queue full")
)

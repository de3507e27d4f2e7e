package tracking

import "errors"

var (
	// ErrNotFound means the delivery id does not exist.
	ErrNotFound = errors.New("delivery not found")
	// ErrInvalidTransition means the requested status is not reachable from
	// the delivery's current status, or the delivery is terminal.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleWrite means the transition timestamp precedes the delivery's
	// last_updated, or the per-delivery conflict retries were exhausted.
	// Callers may retry with corrected ordering.
	ErrStaleWrite = errors.New("stale write rejected")
	// ErrInvalidLocation means a coordinate pair is malformed or out of
	// longitude/latitude bounds.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrOrderExists means a delivery already exists for the order id.
	ErrOrderExists = errors.New("delivery already exists for order")
)

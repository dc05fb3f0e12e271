package broker

import "errors"

var (
	// ErrAlreadySubscribed is returned when a subscriber subscribes to a
	// topic it already holds.
	ErrAlreadySubscribed = errors.New("already subscribed")

	// ErrNotSubscribed is returned when unsubscribing from a topic the
	// subscriber does not hold, or that does not exist.
	ErrNotSubscribed = errors.New("not subscribed")
)

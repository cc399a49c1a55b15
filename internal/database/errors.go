package database

import "errors"

var (
	// ErrBookingNotFound no booking exists for the given id.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrAlreadyResolved the booking is terminal; the response changed nothing.
	ErrAlreadyResolved = errors.New("booking already resolved")

	// ErrStaleResponder the response names a candidate position the booking
	// has already advanced past.
	ErrStaleResponder = errors.New("stale responder")

	// ErrDuplicateDispatch a request for this (booking, index) pair was
	// already recorded; the candidate must not be notified again.
	ErrDuplicateDispatch = errors.New("dispatch already recorded")

	// ErrDispatchNotFound no dispatch matches the presented token.
	ErrDispatchNotFound = errors.New("dispatch not found")
)

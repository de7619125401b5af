package repository

import "errors"

// Guard violations reported synchronously to callers. They are not
// transient: retrying without a state change fails identically.
var (
	// ErrNotFound means the referenced booking, rating or user does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition means a booking transition was attempted from a
	// state that is not the documented source state, including the lost
	// race on accept
	ErrInvalidTransition = errors.New("booking no longer available for this transition")

	// ErrNotEligible means the booking is not completed, or is not owned by
	// the submitting client
	ErrNotEligible = errors.New("booking not eligible for rating")

	// ErrAlreadyRated means a rating already exists for the booking
	ErrAlreadyRated = errors.New("booking has already been rated")

	// ErrEmailTaken means a user with that email already exists
	ErrEmailTaken = errors.New("email already registered")
)

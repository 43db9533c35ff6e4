package domain

import "errors"

var (
	// ErrAlreadyActive is returned when a user starts a quiz while another
	// attempt of theirs is still running.
	ErrAlreadyActive = errors.New("user already has an active quiz session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNoActiveSession is returned when an answer or cancel arrives for a
	// user with no running attempt.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrStaleAnswer is returned when an answer targets a question index that
	// was already resolved by an earlier answer or expiry. This is the
	// expected loser of the answer/deadline race, not a fault.
	ErrStaleAnswer = errors.New("answer arrived for an already resolved question")
	// ErrInvalidOption indicates a selected option outside the question's range.
	ErrInvalidOption = errors.New("selected option out of range")
)

package session

import "errors"

var (
	// ErrNoSession is returned when a request carries no session cookie at all.
	ErrNoSession = errors.New("no session")

	// ErrSessionInvalid is returned when a session cookie is present but cannot
	// be verified or decoded. Callers treat it like an absent session but may
	// log the two cases differently.
	ErrSessionInvalid = errors.New("invalid session")

	// ErrNotInSession is returned when an operation names an account that is
	// not part of the session.
	ErrNotInSession = errors.New("account not in session")
)

package auth

import "errors"

var (
	// ErrReauthRequired is returned when an account's credentials cannot be
	// refreshed and the account has been signed out of the session. The only
	// way forward for that account is a fresh sign-in; other accounts in the
	// session are untouched.
	ErrReauthRequired = errors.New("reauthentication required")

	// ErrAccountDisabled is returned when a disabled account attempts to join
	// a session.
	ErrAccountDisabled = errors.New("account disabled")
)

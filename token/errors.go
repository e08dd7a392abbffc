package token

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenInvalid covers every way an envelope can fail verification:
	// wrong structure, bad signature, expired, or unreadable claims. Callers
	// treat any ErrTokenInvalid as "no usable token".
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenTypeMismatch reports an access envelope presented where a
	// refresh envelope was expected, or the reverse. Unwraps to
	// ErrTokenInvalid so a single errors.Is check catches both.
	ErrTokenTypeMismatch = fmt.Errorf("token type mismatch: %w", ErrTokenInvalid)

	// ErrTokenMismatch reports an envelope whose subject is not the account
	// it was presented for. Unwraps to ErrTokenInvalid.
	ErrTokenMismatch = fmt.Errorf("token account mismatch: %w", ErrTokenInvalid)

	// ErrProviderUnavailable reports a failed call to the identity provider.
	// Provider implementations wrap their transport errors with it.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// invalidToken tags err as ErrTokenInvalid while keeping the parser detail in
// the message.
func invalidToken(err error) error {
	if err == nil {
		return ErrTokenInvalid
	}
	return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
}

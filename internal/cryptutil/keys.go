// Package cryptutil derives the per-surface signing keys from the single
// deployment root secret.
package cryptutil

import (
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

// DefaultKeySize is the size of a derived signing key in bytes.
const DefaultKeySize = 32

// Usage labels keep the session-cookie and credential-envelope surfaces on
// distinct keys even though the deployment carries one root secret. A leaked
// session key must not let anyone mint credential envelopes.
const (
	UsageSessionCookie = "session-cookie"
	UsageCredentials   = "credential-envelopes"
)

// DeriveKey stretches the root secret into an n-byte key bound to the usage
// label. The same secret and usage always yield the same key; n <= 0 falls
// back to DefaultKeySize.
func DeriveKey(rootSecret []byte, usage string, n int) ([]byte, error) {
	if len(rootSecret) == 0 {
		return nil, errors.New("[DeriveKey] root secret is required")
	}
	if usage == "" {
		return nil, errors.New("[DeriveKey] usage label is required")
	}
	if n <= 0 {
		n = DefaultKeySize
	}

	key := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, rootSecret, nil, []byte(usage)), key); err != nil {
		return nil, errors.Wrap(err, "[DeriveKey] read from hkdf")
	}
	return key, nil
}

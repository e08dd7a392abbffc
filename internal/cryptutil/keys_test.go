package cryptutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-server/internal/cryptutil"
)

// TestDeriveKey_Deterministic checks the same secret and usage always
// produce the same key, at the requested length.
func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("a-deployment-root-secret")

	first, err := cryptutil.DeriveKey(secret, cryptutil.UsageSessionCookie, 32)
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := cryptutil.DeriveKey(secret, cryptutil.UsageSessionCookie, 32)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

// TestDeriveKey_UsageSeparation checks the two surfaces never share signing
// material.
func TestDeriveKey_UsageSeparation(t *testing.T) {
	secret := []byte("a-deployment-root-secret")

	sessionKey, err := cryptutil.DeriveKey(secret, cryptutil.UsageSessionCookie, 0)
	require.NoError(t, err)
	require.Len(t, sessionKey, cryptutil.DefaultKeySize)

	credentialKey, err := cryptutil.DeriveKey(secret, cryptutil.UsageCredentials, 0)
	require.NoError(t, err)
	require.NotEqual(t, sessionKey, credentialKey)
}

func TestDeriveKey_SecretSeparation(t *testing.T) {
	first, err := cryptutil.DeriveKey([]byte("secret-one"), cryptutil.UsageCredentials, 0)
	require.NoError(t, err)

	second, err := cryptutil.DeriveKey([]byte("secret-two"), cryptutil.UsageCredentials, 0)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDeriveKey_Validation(t *testing.T) {
	_, err := cryptutil.DeriveKey(nil, cryptutil.UsageCredentials, 0)
	require.ErrorContains(t, err, "root secret")

	_, err = cryptutil.DeriveKey([]byte("secret"), "", 0)
	require.ErrorContains(t, err, "usage label")
}

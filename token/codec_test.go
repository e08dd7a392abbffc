package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	otherSecret = "fedcba9876543210fedcba9876543210"
	testIssuer  = "com.testissuer"
	testSubject = "acc-1"
)

func newTestCodec(t *testing.T, now func() time.Time) *token.Codec {
	t.Helper()

	opts := []token.CodecOption{token.WithIssuer(testIssuer)}
	if now != nil {
		opts = append(opts, token.WithCodecNowFunc(now))
	}
	return token.NewCodec(token.NewHMACSigner([]byte(testSecret)), opts...)
}

// TestCodec_SignVerify_RoundTrip checks that every claim survives a mint and
// verify cycle for both account kinds.
func TestCodec_SignVerify_RoundTrip(t *testing.T) {
	codec := newTestCodec(t, nil)

	local, err := codec.Sign(token.Claims{
		Subject: testSubject,
		Kind:    accounts.KindLocal,
	}, time.Hour)
	require.NoError(t, err)
	require.Len(t, strings.Split(local, "."), 3)

	claims, err := codec.Verify(local)
	require.NoError(t, err)
	require.Equal(t, testSubject, claims.Subject)
	require.Equal(t, accounts.KindLocal, claims.Kind)
	require.False(t, claims.IsRefresh)
	require.Equal(t, testIssuer, claims.Issuer)
	require.NotEmpty(t, claims.TokenID)
	require.False(t, claims.ExpiresAt.IsZero())

	oauth, err := codec.Sign(token.Claims{
		Subject:         "acc-2",
		Kind:            accounts.KindOAuth,
		IsRefresh:       true,
		ProviderRefresh: "provider-refresh-token",
	}, time.Hour)
	require.NoError(t, err)

	claims, err = codec.Verify(oauth)
	require.NoError(t, err)
	require.Equal(t, accounts.KindOAuth, claims.Kind)
	require.True(t, claims.IsRefresh)
	require.Equal(t, "provider-refresh-token", claims.ProviderRefresh)
	require.Empty(t, claims.ProviderAccess)
}

// TestCodec_Sign_ZeroTTL mints an envelope without an expiry; it must still
// verify long after minting.
func TestCodec_Sign_ZeroTTL(t *testing.T) {
	minted := time.Now()
	farFuture := minted.Add(10 * 365 * 24 * time.Hour)

	now := minted
	codec := newTestCodec(t, func() time.Time { return now })

	raw, err := codec.Sign(token.Claims{Subject: testSubject, Kind: accounts.KindLocal}, 0)
	require.NoError(t, err)

	now = farFuture
	claims, err := codec.Verify(raw)
	require.NoError(t, err)
	require.True(t, claims.ExpiresAt.IsZero())
}

// TestCodec_Verify_MalformedInputs feeds the verifier every structural
// failure shape. All of them must come back as ErrTokenInvalid values, and
// none may panic.
func TestCodec_Verify_MalformedInputs(t *testing.T) {
	codec := newTestCodec(t, nil)

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty string", raw: ""},
		{name: "whitespace", raw: "   "},
		{name: "no segments", raw: "garbage"},
		{name: "two segments", raw: "aaaa.bbbb"},
		{name: "four segments", raw: "aaaa.bbbb.cccc.dddd"},
		{name: "empty segments", raw: ".."},
		{name: "bad base64 payload", raw: "aaaa.!!!!.cccc"},
		{name: "valid shape random content", raw: "eyJh.eyJi.c2ln"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.raw)
			require.ErrorIs(t, err, token.ErrTokenInvalid)
		})
	}
}

// TestCodec_Verify_ForeignSignature signs with one secret and verifies with
// another.
func TestCodec_Verify_ForeignSignature(t *testing.T) {
	codec := newTestCodec(t, nil)
	foreign := token.NewCodec(token.NewHMACSigner([]byte(otherSecret)))

	raw, err := foreign.Sign(token.Claims{Subject: testSubject, Kind: accounts.KindLocal}, time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

// TestCodec_Verify_TamperedSignature flips the signature segment of an
// otherwise valid envelope.
func TestCodec_Verify_TamperedSignature(t *testing.T) {
	codec := newTestCodec(t, nil)

	raw, err := codec.Sign(token.Claims{Subject: testSubject, Kind: accounts.KindLocal}, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = codec.Verify(tampered)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

// TestCodec_Verify_Expired moves the clock past the envelope expiry.
func TestCodec_Verify_Expired(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, func() time.Time { return now })

	raw, err := codec.Sign(token.Claims{Subject: testSubject, Kind: accounts.KindLocal}, time.Minute)
	require.NoError(t, err)

	_, err = codec.Verify(raw)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

// TestCodec_Decode_IgnoresExpiry checks that revocation can still open a
// lapsed envelope while Verify refuses it.
func TestCodec_Decode_IgnoresExpiry(t *testing.T) {
	now := time.Now()
	codec := newTestCodec(t, func() time.Time { return now })

	raw, err := codec.Sign(token.Claims{
		Subject:        testSubject,
		Kind:           accounts.KindOAuth,
		ProviderAccess: "provider-access-token",
	}, time.Minute)
	require.NoError(t, err)

	now = now.Add(time.Hour)

	_, err = codec.Verify(raw)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	claims, err := codec.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "provider-access-token", claims.ProviderAccess)

	// Authenticity is still enforced on the no-expiry path.
	_, err = codec.Decode("aaaa.bbbb.cccc")
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

// TestCodec_VerifyAsKind rejects envelopes presented as the wrong flavour in
// both directions, with a mismatch error that still unwraps to
// ErrTokenInvalid.
func TestCodec_VerifyAsKind(t *testing.T) {
	codec := newTestCodec(t, nil)

	access, err := codec.Sign(token.Claims{Subject: testSubject, Kind: accounts.KindLocal}, time.Hour)
	require.NoError(t, err)
	refresh, err := codec.Sign(token.Claims{Subject: testSubject, Kind: accounts.KindLocal, IsRefresh: true}, time.Hour)
	require.NoError(t, err)

	_, err = codec.VerifyAsKind(access, false)
	require.NoError(t, err)
	_, err = codec.VerifyAsKind(refresh, true)
	require.NoError(t, err)

	_, err = codec.VerifyAsKind(access, true)
	require.ErrorIs(t, err, token.ErrTokenTypeMismatch)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	_, err = codec.VerifyAsKind(refresh, false)
	require.ErrorIs(t, err, token.ErrTokenTypeMismatch)
}

// TestCodec_Sign_Validation rejects claims that would mint nonsense
// envelopes.
func TestCodec_Sign_Validation(t *testing.T) {
	codec := newTestCodec(t, nil)

	_, err := codec.Sign(token.Claims{Kind: accounts.KindLocal}, time.Hour)
	require.Error(t, err)

	_, err = codec.Sign(token.Claims{Subject: testSubject, Kind: "saml"}, time.Hour)
	require.Error(t, err)
}

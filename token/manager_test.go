package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/internal/utils"
	fakeprovider "github.com/jrsteele09/go-session-server/provider/providerfakes"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/stretchr/testify/require"
)

type managerFixture struct {
	manager  *token.Manager
	codec    *token.Codec
	provider *fakeprovider.FakeProvider
	now      time.Time
}

func setupManagerFixture(t *testing.T, options ...token.ManagerOption) *managerFixture {
	t.Helper()

	now := time.Now().Truncate(time.Second)
	codec := newTestCodec(t, func() time.Time { return now })
	fake := fakeprovider.NewFakeProvider()

	options = append([]token.ManagerOption{token.WithNowFunc(func() time.Time { return now })}, options...)
	return &managerFixture{
		manager:  token.New(codec, fake, options...),
		codec:    codec,
		provider: fake,
		now:      now,
	}
}

// TestManager_Issue_LocalPair mints both envelopes for a local account and
// checks their claims and expiries.
func TestManager_Issue_LocalPair(t *testing.T) {
	fixture := setupManagerFixture(t)

	pair, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)
	require.Equal(t, fixture.now.Add(token.DefaultAccessTokenExpiry), pair.AccessExpiry)
	require.Equal(t, fixture.now.Add(token.DefaultRefreshTokenExpiry), pair.RefreshExpiry)

	access, err := fixture.codec.Verify(pair.Access)
	require.NoError(t, err)
	require.Equal(t, testSubject, access.Subject)
	require.Equal(t, accounts.KindLocal, access.Kind)
	require.False(t, access.IsRefresh)
	require.Empty(t, access.ProviderAccess)

	refresh, err := fixture.codec.Verify(pair.Refresh)
	require.NoError(t, err)
	require.True(t, refresh.IsRefresh)
	require.Empty(t, refresh.ProviderRefresh)
}

// TestManager_Issue_LocalRejectsProviderTokens keeps provider material out of
// local-account envelopes.
func TestManager_Issue_LocalRejectsProviderTokens(t *testing.T) {
	fixture := setupManagerFixture(t)

	_, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{
		ProviderAccess: "provider-access",
	})
	require.Error(t, err)
}

// TestManager_Issue_OAuthWrapsProviderTokens wraps the provider's tokens in
// signed envelopes.
func TestManager_Issue_OAuthWrapsProviderTokens(t *testing.T) {
	fixture := setupManagerFixture(t)

	pair, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
		ProviderExpiry:  fixture.now.Add(24 * time.Hour),
	})
	require.NoError(t, err)

	access, err := fixture.codec.Verify(pair.Access)
	require.NoError(t, err)
	require.Equal(t, accounts.KindOAuth, access.Kind)
	require.Equal(t, "provider-access", access.ProviderAccess)

	refresh, err := fixture.codec.Verify(pair.Refresh)
	require.NoError(t, err)
	require.Equal(t, "provider-refresh", refresh.ProviderRefresh)
}

// TestManager_Issue_OAuthClampsAccessExpiry keeps the wrapping envelope from
// outliving the provider token inside it.
func TestManager_Issue_OAuthClampsAccessExpiry(t *testing.T) {
	fixture := setupManagerFixture(t)

	pair, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess: "provider-access",
		ProviderExpiry: fixture.now.Add(10 * time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, fixture.now.Add(10*time.Minute), pair.AccessExpiry)

	_, err = fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess: "provider-access",
		ProviderExpiry: fixture.now.Add(-time.Minute),
	})
	require.Error(t, err)
}

// TestManager_Issue_OAuthWithoutRefreshToken mints no refresh envelope when
// the provider handed over none.
func TestManager_Issue_OAuthWithoutRefreshToken(t *testing.T) {
	fixture := setupManagerFixture(t)

	pair, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess: "provider-access",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.Empty(t, pair.Refresh)
	require.True(t, pair.RefreshExpiry.IsZero())
}

// TestManager_Issue_Validation rejects unusable issue requests.
func TestManager_Issue_Validation(t *testing.T) {
	fixture := setupManagerFixture(t)

	tests := []struct {
		name      string
		accountID string
		kind      accounts.Kind
		opts      token.IssueOptions
	}{
		{name: "missing account id", kind: accounts.KindLocal},
		{name: "unknown kind", accountID: testSubject, kind: accounts.Kind("saml")},
		{name: "oauth without provider access", accountID: testSubject, kind: accounts.KindOAuth},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fixture.manager.Issue(tc.accountID, tc.kind, tc.opts)
			require.Error(t, err)
		})
	}
}

// TestManager_Refresh_LocalMintsAccessOnly exchanges a local refresh envelope
// for a fresh access envelope, leaving the refresh envelope alone.
func TestManager_Refresh_LocalMintsAccessOnly(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{})
	require.NoError(t, err)

	refreshed, err := fixture.manager.Refresh(context.Background(), testSubject, issued.Refresh)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.Access)
	require.Empty(t, refreshed.Refresh)
	require.Empty(t, fixture.provider.RefreshCalls())

	claims, err := fixture.codec.Verify(refreshed.Access)
	require.NoError(t, err)
	require.Equal(t, testSubject, claims.Subject)
	require.False(t, claims.IsRefresh)
}

// TestManager_Refresh_OAuthCallsProvider goes to the provider with the
// wrapped refresh token and re-wraps whatever comes back.
func TestManager_Refresh_OAuthCallsProvider(t *testing.T) {
	fixture := setupManagerFixture(t)
	fixture.provider.RefreshToken = "provider-refresh-rotated"

	issued, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	refreshed, err := fixture.manager.Refresh(context.Background(), testSubject, issued.Refresh)
	require.NoError(t, err)
	require.Equal(t, []string{"provider-refresh"}, fixture.provider.RefreshCalls())

	access, err := fixture.codec.Verify(refreshed.Access)
	require.NoError(t, err)
	require.Equal(t, "provider-access-refreshed", access.ProviderAccess)

	refresh, err := fixture.codec.Verify(refreshed.Refresh)
	require.NoError(t, err)
	require.Equal(t, "provider-refresh-rotated", refresh.ProviderRefresh)
}

// TestManager_Refresh_OAuthKeepsRefreshTokenWhenNotRotated re-wraps the old
// provider refresh token when the provider's response omits one.
func TestManager_Refresh_OAuthKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	refreshed, err := fixture.manager.Refresh(context.Background(), testSubject, issued.Refresh)
	require.NoError(t, err)

	refresh, err := fixture.codec.Verify(refreshed.Refresh)
	require.NoError(t, err)
	require.Equal(t, "provider-refresh", refresh.ProviderRefresh)
}

// TestManager_Refresh_RejectsAccessEnvelope refuses to run the refresh grant
// on an access envelope.
func TestManager_Refresh_RejectsAccessEnvelope(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{})
	require.NoError(t, err)

	_, err = fixture.manager.Refresh(context.Background(), testSubject, issued.Access)
	require.ErrorIs(t, err, token.ErrTokenTypeMismatch)
	require.ErrorIs(t, err, token.ErrTokenInvalid)
}

// TestManager_Refresh_RejectsForeignSubject refuses a refresh envelope minted
// for another account.
func TestManager_Refresh_RejectsForeignSubject(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{})
	require.NoError(t, err)

	_, err = fixture.manager.Refresh(context.Background(), "acc-2", issued.Refresh)
	require.ErrorIs(t, err, token.ErrTokenMismatch)
}

// TestManager_Refresh_ProviderFailure surfaces provider outages unchanged so
// the auth layer can force the account out.
func TestManager_Refresh_ProviderFailure(t *testing.T) {
	fixture := setupManagerFixture(t)
	fixture.provider.RefreshErr = token.ErrProviderUnavailable

	issued, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	_, err = fixture.manager.Refresh(context.Background(), testSubject, issued.Refresh)
	require.ErrorIs(t, err, token.ErrProviderUnavailable)
}

// TestManager_Refresh_NoProviderConfigured fails OAuth refreshes on a manager
// built without a provider client.
func TestManager_Refresh_NoProviderConfigured(t *testing.T) {
	fixture := setupManagerFixture(t)
	withProvider := fixture.manager

	issued, err := withProvider.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	withoutProvider := token.New(fixture.codec, nil)
	_, err = withoutProvider.Refresh(context.Background(), testSubject, issued.Refresh)
	require.ErrorIs(t, err, token.ErrProviderUnavailable)
}

// TestManager_Revoke_SubmitsWrappedTokens hands both wrapped provider tokens
// to the revocation endpoint.
func TestManager_Revoke_SubmitsWrappedTokens(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	result := fixture.manager.Revoke(context.Background(), issued.Access, issued.Refresh)
	require.True(t, result.Ok())
	require.True(t, result.ProviderRevoked)
	require.Equal(t, 2, result.TokensSubmitted)
	require.ElementsMatch(t, []string{"provider-access", "provider-refresh"}, fixture.provider.RevokedTokens())
}

// TestManager_Revoke_LocalIsNoOp has nothing to submit for local envelopes.
func TestManager_Revoke_LocalIsNoOp(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{})
	require.NoError(t, err)

	result := fixture.manager.Revoke(context.Background(), issued.Access, issued.Refresh)
	require.True(t, result.Ok())
	require.False(t, result.ProviderRevoked)
	require.Zero(t, result.TokensSubmitted)
	require.Empty(t, fixture.provider.RevokedTokens())
}

// TestManager_Revoke_ProviderFailureReported carries the provider error in
// the result instead of failing the call.
func TestManager_Revoke_ProviderFailureReported(t *testing.T) {
	fixture := setupManagerFixture(t)
	fixture.provider.RevokeErr = token.ErrProviderUnavailable

	issued, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	result := fixture.manager.Revoke(context.Background(), issued.Access, issued.Refresh)
	require.False(t, result.Ok())
	require.False(t, result.ProviderRevoked)
	require.Equal(t, 2, result.TokensSubmitted)
	require.ErrorIs(t, result.ProviderErr, token.ErrProviderUnavailable)
}

// TestManager_Revoke_ExpiredEnvelopeStillSubmitted opens lapsed envelopes
// anyway: the provider tokens inside may still be live.
func TestManager_Revoke_ExpiredEnvelopeStillSubmitted(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	past := now.Add(-48 * time.Hour)

	codec := newTestCodec(t, func() time.Time { return now })
	fake := fakeprovider.NewFakeProvider()

	stale := token.New(codec, fake, token.WithNowFunc(func() time.Time { return past }))
	issued, err := stale.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
		ProviderExpiry:  past.Add(time.Hour),
	})
	require.NoError(t, err)

	// The access envelope has lapsed by now.
	_, err = codec.Verify(issued.Access)
	require.ErrorIs(t, err, token.ErrTokenInvalid)

	manager := token.New(codec, fake, token.WithNowFunc(func() time.Time { return now }))
	result := manager.Revoke(context.Background(), issued.Access, issued.Refresh)
	require.True(t, result.Ok())
	require.Equal(t, 2, result.TokensSubmitted)
	require.ElementsMatch(t, []string{"provider-access", "provider-refresh"}, fake.RevokedTokens())
}

// TestManager_Revoke_NoProviderConfigured reports the missing provider but
// still tells the caller what it found.
func TestManager_Revoke_NoProviderConfigured(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindOAuth, token.IssueOptions{
		ProviderAccess:  "provider-access",
		ProviderRefresh: "provider-refresh",
	})
	require.NoError(t, err)

	withoutProvider := token.New(fixture.codec, nil)
	result := withoutProvider.Revoke(context.Background(), issued.Access, issued.Refresh)
	require.False(t, result.Ok())
	require.Equal(t, 2, result.TokensSubmitted)
	require.ErrorIs(t, result.ProviderErr, token.ErrProviderUnavailable)
}

// TestManager_Introspect reports envelope metadata, with Active false for
// anything the codec refuses.
func TestManager_Introspect(t *testing.T) {
	fixture := setupManagerFixture(t)

	issued, err := fixture.manager.Issue(testSubject, accounts.KindLocal, token.IssueOptions{})
	require.NoError(t, err)

	active := fixture.manager.Introspect(issued.Access)
	require.True(t, active.Active)
	require.Equal(t, testSubject, utils.Value(active.Subject))
	require.Equal(t, accounts.KindLocal, active.Kind)
	require.False(t, active.IsRefresh)
	require.Equal(t, fixture.now.Add(token.DefaultAccessTokenExpiry).Unix(), utils.Value(active.Exp))
	require.NotEmpty(t, active.TokenID)

	inactive := fixture.manager.Introspect("not-a-token")
	require.False(t, inactive.Active)
	require.Nil(t, inactive.Subject)
}

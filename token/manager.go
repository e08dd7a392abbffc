package token

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-server/accounts"
	"github.com/jrsteele09/go-session-server/internal/utils"
	"github.com/pkg/errors"
)

const (
	DefaultAccessTokenExpiry  = time.Hour
	DefaultRefreshTokenExpiry = 365 * 24 * time.Hour
)

// CredentialPair is the access/refresh envelope pair minted for one account.
// Refresh is empty when the refresh envelope is unchanged (local refresh) or
// was never issued (OAuth provider returned no refresh token).
type CredentialPair struct {
	Access        string
	Refresh       string
	AccessExpiry  time.Time
	RefreshExpiry time.Time
}

// IssueOptions carries the provider-side token material for OAuth accounts.
// The login controller obtains these from the provider's code exchange; this
// service only wraps them.
type IssueOptions struct {
	ProviderAccess  string
	ProviderRefresh string
	ProviderExpiry  time.Time
}

// RevokeResult reports what happened to the provider-side tokens during a
// revoke. Local sign-outs have nothing external to undo, so they come back
// zero-valued. A non-nil ProviderErr means the tokens may still be live at
// the provider; local state is cleared regardless.
type RevokeResult struct {
	ProviderRevoked bool
	TokensSubmitted int
	ProviderErr     error
}

// Ok reports whether nothing external failed.
func (r RevokeResult) Ok() bool {
	return r.ProviderErr == nil
}

// Introspection is the metadata view of an envelope. Active false means the
// envelope failed verification; the other fields are then unset.
type Introspection struct {
	Active    bool          `json:"active"`
	Subject   *string       `json:"sub,omitempty"`
	Kind      accounts.Kind `json:"kind,omitempty"`
	IsRefresh bool          `json:"refresh,omitempty"`
	Iat       *int64        `json:"iat,omitempty"`
	Exp       *int64        `json:"exp,omitempty"`
	Issuer    *string       `json:"iss,omitempty"`
	TokenID   string        `json:"jti,omitempty"`
}

// Manager owns the credential lifecycle: minting envelope pairs on sign-in,
// refreshing them, and revoking provider tokens on sign-out. Session
// membership changes driven by these operations live in the auth service.
type Manager struct {
	codec         *Codec
	provider      Provider
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	nowFunc       func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessExpiry, refreshExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessExpiry = accessExpiry
		m.refreshExpiry = refreshExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// New builds a lifecycle manager. The provider may be nil for deployments
// without OAuth accounts; OAuth refresh then fails with
// ErrProviderUnavailable rather than panicking.
func New(codec *Codec, provider Provider, options ...ManagerOption) *Manager {
	m := &Manager{
		codec:    codec,
		provider: provider,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessExpiry == 0 {
		m.accessExpiry = DefaultAccessTokenExpiry
	}
	if m.refreshExpiry == 0 {
		m.refreshExpiry = DefaultRefreshTokenExpiry
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// Issue mints the envelope pair for a signed-in account. Local accounts get
// locally minted access and refresh envelopes. OAuth accounts get their
// provider tokens wrapped; the access envelope expiry is clamped to the
// provider's own expiry when one is known, and a refresh envelope is only
// minted when the provider handed over a refresh token.
func (m *Manager) Issue(accountID string, kind accounts.Kind, opts IssueOptions) (*CredentialPair, error) {
	if accountID == "" {
		return nil, errors.New("[Manager.Issue] account id is required")
	}
	if !kind.Valid() {
		return nil, errors.Errorf("[Manager.Issue] unknown account kind %q", kind)
	}

	switch kind {
	case accounts.KindLocal:
		if opts.ProviderAccess != "" || opts.ProviderRefresh != "" {
			return nil, errors.New("[Manager.Issue] local account cannot carry provider tokens")
		}
		return m.mint(accountID, kind, "", "", m.accessExpiry)

	default: // accounts.KindOAuth
		if opts.ProviderAccess == "" {
			return nil, errors.New("[Manager.Issue] oauth account requires a provider access token")
		}
		accessTTL := m.accessExpiry
		if !opts.ProviderExpiry.IsZero() {
			until := opts.ProviderExpiry.Sub(m.nowFunc())
			if until <= 0 {
				return nil, errors.New("[Manager.Issue] provider access token already expired")
			}
			if until < accessTTL {
				accessTTL = until
			}
		}
		return m.mint(accountID, kind, opts.ProviderAccess, opts.ProviderRefresh, accessTTL)
	}
}

// Refresh exchanges a refresh envelope for a new access token. Local accounts
// mint locally; OAuth accounts go to the provider and re-wrap the result. Any
// failure is terminal for the caller: there is no retry, and the auth layer
// responds by evicting the account from the session.
func (m *Manager) Refresh(ctx context.Context, accountID, rawRefresh string) (*CredentialPair, error) {
	claims, err := m.codec.VerifyAsKind(rawRefresh, true)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] verify refresh token")
	}
	if claims.Subject != accountID {
		return nil, errors.Wrapf(ErrTokenMismatch, "[Manager.Refresh] token subject %q", claims.Subject)
	}

	if claims.Kind == accounts.KindLocal {
		pair, err := m.mintAccess(accountID, claims.Kind, "", m.accessExpiry)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.Refresh] mint access token")
		}
		return pair, nil
	}

	if m.provider == nil {
		return nil, errors.Wrap(ErrProviderUnavailable, "[Manager.Refresh] no provider configured")
	}
	if claims.ProviderRefresh == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "[Manager.Refresh] refresh envelope carries no provider token")
	}

	providerToken, err := m.provider.Refresh(ctx, claims.ProviderRefresh)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] provider refresh")
	}

	// Providers that do not rotate refresh tokens omit them from the
	// response; the previously wrapped one stays valid.
	providerRefresh := providerToken.RefreshToken
	if providerRefresh == "" {
		providerRefresh = claims.ProviderRefresh
	}

	pair, err := m.Issue(accountID, accounts.KindOAuth, IssueOptions{
		ProviderAccess:  providerToken.AccessToken,
		ProviderRefresh: providerRefresh,
		ProviderExpiry:  providerToken.Expiry,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Refresh] re-wrap provider tokens")
	}
	return pair, nil
}

// Revoke submits the wrapped provider tokens found in the given envelopes to
// the provider's revocation endpoint. Envelopes are opened without expiry
// checks so lapsed tokens still reach the provider, and undecodable ones are
// skipped. Revoke itself never fails: a provider error rides back in the
// result and local sign-out proceeds.
func (m *Manager) Revoke(ctx context.Context, rawAccess, rawRefresh string) RevokeResult {
	providerTokens := make([]string, 0, 2)
	if claims, err := m.codec.Decode(rawAccess); err == nil && claims.ProviderAccess != "" {
		providerTokens = append(providerTokens, claims.ProviderAccess)
	}
	if claims, err := m.codec.Decode(rawRefresh); err == nil && claims.ProviderRefresh != "" {
		providerTokens = append(providerTokens, claims.ProviderRefresh)
	}

	if len(providerTokens) == 0 {
		return RevokeResult{}
	}
	if m.provider == nil {
		return RevokeResult{
			TokensSubmitted: len(providerTokens),
			ProviderErr:     errors.Wrap(ErrProviderUnavailable, "[Manager.Revoke] no provider configured"),
		}
	}

	if err := m.provider.Revoke(ctx, providerTokens); err != nil {
		return RevokeResult{
			TokensSubmitted: len(providerTokens),
			ProviderErr:     errors.Wrap(err, "[Manager.Revoke] provider revoke"),
		}
	}
	return RevokeResult{ProviderRevoked: true, TokensSubmitted: len(providerTokens)}
}

// Verify opens an access or refresh envelope, delegating to the codec.
func (m *Manager) Verify(raw string, wantRefresh bool) (Claims, error) {
	return m.codec.VerifyAsKind(raw, wantRefresh)
}

// Introspect returns the metadata view of an envelope. Invalid envelopes
// yield Active false, never an error.
func (m *Manager) Introspect(raw string) *Introspection {
	claims, err := m.codec.Verify(raw)
	if err != nil {
		return &Introspection{Active: false}
	}

	introspection := &Introspection{
		Active:    true,
		Subject:   utils.Ptr(claims.Subject),
		Kind:      claims.Kind,
		IsRefresh: claims.IsRefresh,
		Iat:       utils.Ptr(claims.IssuedAt.Unix()),
		TokenID:   claims.TokenID,
	}
	if !claims.ExpiresAt.IsZero() {
		introspection.Exp = utils.Ptr(claims.ExpiresAt.Unix())
	}
	if claims.Issuer != "" {
		introspection.Issuer = utils.Ptr(claims.Issuer)
	}
	return introspection
}

func (m *Manager) mint(accountID string, kind accounts.Kind, providerAccess, providerRefresh string, accessTTL time.Duration) (*CredentialPair, error) {
	pair, err := m.mintAccess(accountID, kind, providerAccess, accessTTL)
	if err != nil {
		return nil, err
	}

	if kind == accounts.KindOAuth && providerRefresh == "" {
		return pair, nil
	}

	refresh, err := m.codec.Sign(Claims{
		Subject:         accountID,
		Kind:            kind,
		IsRefresh:       true,
		ProviderRefresh: providerRefresh,
	}, m.refreshExpiry)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.mint] sign refresh token")
	}

	pair.Refresh = refresh
	pair.RefreshExpiry = m.nowFunc().Add(m.refreshExpiry)
	return pair, nil
}

func (m *Manager) mintAccess(accountID string, kind accounts.Kind, providerAccess string, accessTTL time.Duration) (*CredentialPair, error) {
	access, err := m.codec.Sign(Claims{
		Subject:        accountID,
		Kind:           kind,
		ProviderAccess: providerAccess,
	}, accessTTL)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.mintAccess] sign access token")
	}
	return &CredentialPair{
		Access:       access,
		AccessExpiry: m.nowFunc().Add(accessTTL),
	}, nil
}

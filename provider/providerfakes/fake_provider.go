package fakeprovider

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-server/token"
)

var _ token.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory stand-in for an identity provider. Configure
// the exported fields before use; the call recorders let tests assert what
// reached the provider.
type FakeProvider struct {
	AccessToken  string        // access token Refresh hands back
	RefreshToken string        // refresh token Refresh hands back; "" means the provider kept the old one
	ExpiresIn    time.Duration // expiry window on refreshed access tokens
	RefreshErr   error         // forced Refresh failure
	RevokeErr    error         // forced Revoke failure

	lock          sync.Mutex
	refreshCalls  []string
	revokedTokens []string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		AccessToken: "provider-access-refreshed",
		ExpiresIn:   time.Hour,
	}
}

func (p *FakeProvider) Refresh(_ context.Context, refreshToken string) (*token.ProviderToken, error) {
	p.lock.Lock()
	p.refreshCalls = append(p.refreshCalls, refreshToken)
	p.lock.Unlock()

	if p.RefreshErr != nil {
		return nil, p.RefreshErr
	}
	return &token.ProviderToken{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		Expiry:       time.Now().Add(p.ExpiresIn),
	}, nil
}

func (p *FakeProvider) Revoke(_ context.Context, tokens []string) error {
	p.lock.Lock()
	p.revokedTokens = append(p.revokedTokens, tokens...)
	p.lock.Unlock()

	return p.RevokeErr
}

// RefreshCalls returns the refresh tokens passed to Refresh, in order.
func (p *FakeProvider) RefreshCalls() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.refreshCalls...)
}

// RevokedTokens returns every token submitted for revocation, in order.
func (p *FakeProvider) RevokedTokens() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.revokedTokens...)
}

package token

import (
	"context"
	"time"
)

// ProviderToken is the raw token material an identity provider returns from
// a refresh call.
type ProviderToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Provider is the outbound capability the lifecycle manager uses for
// OAuth-backed accounts. Initial issuance stays with the login controller;
// only refresh and revoke run through here. Implementations wrap transport
// failures with ErrProviderUnavailable.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*ProviderToken, error)
	Revoke(ctx context.Context, tokens []string) error
}

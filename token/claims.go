package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-server/accounts"
)

// Claim keys used inside signed envelopes.
const (
	claimSubject         = "sub"
	claimIssuer          = "iss"
	claimKind            = "knd"
	claimRefresh         = "rfs"
	claimIssuedAt        = "iat"
	claimExpiry          = "exp"
	claimTokenID         = "jti"
	claimProviderAccess  = "pat"
	claimProviderRefresh = "prt"
)

// Claims is the payload carried by every envelope this service mints. For
// OAuth accounts the provider's own tokens ride inside the envelope, so the
// browser only ever holds locally signed material.
type Claims struct {
	Subject         string        // Account ID the envelope was minted for
	Kind            accounts.Kind // local or oauth
	IsRefresh       bool          // Refresh envelopes may only be spent on the refresh path
	IssuedAt        time.Time     // Minting time
	ExpiresAt       time.Time     // Zero means the envelope never expires
	TokenID         string        // Unique envelope ID
	Issuer          string        // Issuing deployment
	ProviderAccess  string        // Wrapped provider access token, OAuth access envelopes only
	ProviderRefresh string        // Wrapped provider refresh token, OAuth refresh envelopes only
}

// Expired reports whether the envelope has an expiry and it has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

func (c Claims) toMapClaims() jwt.MapClaims {
	claims := jwt.MapClaims{
		claimSubject:  c.Subject,
		claimKind:     string(c.Kind),
		claimRefresh:  c.IsRefresh,
		claimIssuedAt: c.IssuedAt.Unix(),
		claimTokenID:  c.TokenID,
	}
	if !c.ExpiresAt.IsZero() {
		claims[claimExpiry] = c.ExpiresAt.Unix()
	}
	if c.Issuer != "" {
		claims[claimIssuer] = c.Issuer
	}
	if c.ProviderAccess != "" {
		claims[claimProviderAccess] = c.ProviderAccess
	}
	if c.ProviderRefresh != "" {
		claims[claimProviderRefresh] = c.ProviderRefresh
	}
	return claims
}

func claimsFromMap(mapClaims jwt.MapClaims) (Claims, error) {
	claims := Claims{}

	subject, _ := mapClaims[claimSubject].(string)
	if subject == "" {
		return Claims{}, fmt.Errorf("missing subject claim")
	}
	claims.Subject = subject

	kindStr, _ := mapClaims[claimKind].(string)
	claims.Kind = accounts.Kind(kindStr)
	if !claims.Kind.Valid() {
		return Claims{}, fmt.Errorf("unknown account kind claim %q", kindStr)
	}

	claims.IsRefresh, _ = mapClaims[claimRefresh].(bool)
	claims.TokenID, _ = mapClaims[claimTokenID].(string)
	claims.Issuer, _ = mapClaims[claimIssuer].(string)
	claims.ProviderAccess, _ = mapClaims[claimProviderAccess].(string)
	claims.ProviderRefresh, _ = mapClaims[claimProviderRefresh].(string)

	if iat, ok := mapClaims[claimIssuedAt].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims[claimExpiry].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, nil
}

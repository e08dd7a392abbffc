package config

import "time"

type TokenConfig interface {
	// GetRootSecret is the single deployment secret both signing keys are
	// derived from. Empty means the server refuses to start outside DEV.
	GetRootSecret() string
	GetTokenIssuer() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetRootSecret() string {
	return GetEnv("ROOT_SECRET", "")
}

func (Tokens) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "com.sessionserver")
}

func (Tokens) GetAccessTokenExpiry() time.Duration {
	return getDurationEnv("ACCESS_TOKEN_EXPIRY", 1*time.Hour)
}

func (Tokens) GetRefreshTokenExpiry() time.Duration {
	return getDurationEnv("REFRESH_TOKEN_EXPIRY", 365*24*time.Hour)
}

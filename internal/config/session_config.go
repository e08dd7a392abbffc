package config

import "time"

type SessionConfig interface {
	GetCookieDomain() string
	GetAccountBasePath() string
	GetSessionCookieExpiry() time.Duration
}

type SessionVars struct{}

var _ SessionConfig = SessionVars{}

func (SessionVars) GetCookieDomain() string {
	return GetEnv("COOKIE_DOMAIN", "")
}

func (SessionVars) GetAccountBasePath() string {
	return GetEnv("ACCOUNT_BASE_PATH", "/api/accounts")
}

func (SessionVars) GetSessionCookieExpiry() time.Duration {
	return getDurationEnv("SESSION_COOKIE_EXPIRY", 365*24*time.Hour)
}

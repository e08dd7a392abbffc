package config

type ProviderConfig interface {
	GetProviderIssuerURL() string
	GetProviderClientID() string
	GetProviderClientSecret() string
	// Explicit endpoint overrides for providers without OIDC discovery.
	GetProviderTokenURL() string
	GetProviderRevokeURL() string
	// ProviderConfigured reports whether OAuth accounts can be serviced at
	// all; without it the lifecycle manager runs provider-less.
	ProviderConfigured() bool
}

type ProviderVars struct{}

var _ ProviderConfig = ProviderVars{}

func (ProviderVars) GetProviderIssuerURL() string {
	return GetEnv("PROVIDER_ISSUER_URL", "")
}

func (ProviderVars) GetProviderClientID() string {
	return GetEnv("PROVIDER_CLIENT_ID", "")
}

func (ProviderVars) GetProviderClientSecret() string {
	return GetEnv("PROVIDER_CLIENT_SECRET", "")
}

func (ProviderVars) GetProviderTokenURL() string {
	return GetEnv("PROVIDER_TOKEN_URL", "")
}

func (ProviderVars) GetProviderRevokeURL() string {
	return GetEnv("PROVIDER_REVOKE_URL", "")
}

func (p ProviderVars) ProviderConfigured() bool {
	if p.GetProviderClientID() == "" {
		return false
	}
	return p.GetProviderIssuerURL() != "" || p.GetProviderTokenURL() != ""
}

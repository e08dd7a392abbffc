package config

type Config interface {
	EnvConfig
	TokenConfig
	SessionConfig
	GatewayConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetHardenedMode() bool
}

type mainConfig struct {
	EnvVars
	Tokens
	SessionVars
	GatewayVars
	ProviderVars
}

func New() Config {
	return mainConfig{}
}

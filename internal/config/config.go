package config

type Config interface {
	EnvConfig
	OAuthConfig
	KeysConfig
	DatabaseConfig
}

type mainConfig struct {
	EnvVars
	OAuth
	Keys
	Database
}

func New() Config {
	return mainConfig{}
}

package config

import "time"

type KeysConfig interface {
	GetKeyLifetime() time.Duration
	GetKeyGraceWindow() time.Duration
	GetKeyRetention() time.Duration
	GetSignerCacheTTL() time.Duration
	GetSecretCipherKey() string
}

type Keys struct{}

var _ KeysConfig = Keys{}

func (Keys) GetKeyLifetime() time.Duration {
	return 365 * 24 * time.Hour
}

// GetKeyGraceWindow is how long a deactivated key keeps verifying signatures.
func (Keys) GetKeyGraceWindow() time.Duration {
	return 24 * time.Hour
}

// GetKeyRetention is how long past expiry a retired key row survives before
// cleanup deletes it.
func (Keys) GetKeyRetention() time.Duration {
	return 30 * 24 * time.Hour
}

func (Keys) GetSignerCacheTTL() time.Duration {
	return 5 * time.Minute
}

// GetSecretCipherKey returns the hex-encoded 32-byte key sealing private key
// material at rest.
func (Keys) GetSecretCipherKey() string {
	return GetEnv("SECRET_CIPHER_KEY", "")
}

package config

import "os"

// Environment variable names for overrides. Credentials are overridable
// from the environment so CI does not need a config file on disk.
const (
	EnvConfig       = "YTUP_CONFIG"
	EnvClientID     = "YTUP_CLIENT_ID"
	EnvClientSecret = "YTUP_CLIENT_SECRET"
	EnvTokenFile    = "YTUP_TOKEN_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string
	ClientID     string
	ClientSecret string
	TokenFile    string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Callers apply the relevant fields during Resolve.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		TokenFile:    os.Getenv(EnvTokenFile),
	}
}

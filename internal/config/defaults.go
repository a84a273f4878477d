package config

// Default values applied before the config file is read.
const (
	defaultChunkSize        = "8MiB"
	defaultMaxRetries       = 10
	defaultForceRefreshDays = 30
	defaultRefreshTimeout   = "1m"
	defaultConnectTimeout   = "30s"
	defaultDataTimeout      = "5m"
	defaultLogLevel         = "info"

	// Metadata calls (initiation, playlist, thumbnail) are few; the pacing
	// default only guards against bursts.
	defaultRequestsPerSecond = 4.0
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:         defaultChunkSize,
		MaxRetries:        defaultMaxRetries,
		ForceRefreshDays:  defaultForceRefreshDays,
		RefreshTimeout:    defaultRefreshTimeout,
		ConnectTimeout:    defaultConnectTimeout,
		DataTimeout:       defaultDataTimeout,
		RequestsPerSecond: defaultRequestsPerSecond,
		LogLevel:          defaultLogLevel,
	}
}

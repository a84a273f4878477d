// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ytup. It supports a three-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the raw configuration structure parsed from a TOML file.
// Sizes and durations are strings here so the file can use human-readable
// forms ("8MiB", "90s"); Resolve parses them into typed Settings.
type Config struct {
	// OAuth2 client credentials, from the Google Cloud console.
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// Storage locations. Empty selects the platform default under the
	// user's data directory.
	TokenFile   string `toml:"token_file"`
	JournalFile string `toml:"journal_file"`

	// Upload behavior.
	ChunkSize  string `toml:"chunk_size"`
	MaxRetries int    `toml:"max_retries"`

	// Credential lifecycle. force_refresh_days bounds how long a stored
	// token may be reused without a refresh; refresh_timeout caps one
	// token-endpoint request.
	ForceRefreshDays int    `toml:"force_refresh_days"`
	RefreshTimeout   string `toml:"refresh_timeout"`

	// HTTP client behavior.
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`

	// Headless forces the paste-a-code authorization flow even on a TTY.
	Headless bool `toml:"headless"`

	// RequestsPerSecond paces metadata API calls; zero disables pacing.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	LogLevel string `toml:"log_level"`
}

// Settings is the fully resolved, typed configuration after the override
// chain and parsing. This is what the rest of the program consumes.
type Settings struct {
	ClientID     string
	ClientSecret string

	TokenFile   string
	JournalFile string

	ChunkSize  int64
	MaxRetries int

	ForceRefreshAge time.Duration
	RefreshTimeout  time.Duration

	ConnectTimeout time.Duration
	DataTimeout    time.Duration

	Headless bool

	RequestsPerSecond float64

	LogLevel string
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	TokenFile  string // --token-file flag
	ChunkSize  string // --chunk-size flag
	MaxRetries *int   // --max-retries flag
	Headless   *bool  // --headless flag
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// chunkAlignment is the upload API's required chunk size granularity
// (256 KiB). Every chunk except the final one must be a multiple.
const chunkAlignment = 256 * 1024

// Load reads and parses a TOML config file and returns the resulting
// Config. Unknown keys are treated as fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first run: credentials can come entirely from the environment.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The precedence order ensures CLI flags always win, matching user
// expectations for one-off overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Settings, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	return resolve(cfg)
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.ClientID != "" {
		cfg.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.ClientSecret = env.ClientSecret
	}

	if env.TokenFile != "" {
		cfg.TokenFile = env.TokenFile
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.TokenFile != "" {
		cfg.TokenFile = cli.TokenFile
	}

	if cli.ChunkSize != "" {
		cfg.ChunkSize = cli.ChunkSize
	}

	if cli.MaxRetries != nil {
		cfg.MaxRetries = *cli.MaxRetries
	}

	if cli.Headless != nil {
		cfg.Headless = *cli.Headless
	}
}

// resolve parses the string-typed fields into Settings and validates
// ranges.
func resolve(cfg *Config) (*Settings, error) {
	s := &Settings{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		TokenFile:         cfg.TokenFile,
		JournalFile:       cfg.JournalFile,
		MaxRetries:        cfg.MaxRetries,
		Headless:          cfg.Headless,
		RequestsPerSecond: cfg.RequestsPerSecond,
		LogLevel:          cfg.LogLevel,
	}

	if s.TokenFile == "" {
		s.TokenFile = DefaultTokenPath()
	}

	if s.JournalFile == "" {
		s.JournalFile = DefaultJournalPath()
	}

	var err error

	if s.ChunkSize, err = parseSize(cfg.ChunkSize); err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	if s.RefreshTimeout, err = parseDuration("refresh_timeout", cfg.RefreshTimeout); err != nil {
		return nil, err
	}

	if s.ConnectTimeout, err = parseDuration("connect_timeout", cfg.ConnectTimeout); err != nil {
		return nil, err
	}

	if s.DataTimeout, err = parseDuration("data_timeout", cfg.DataTimeout); err != nil {
		return nil, err
	}

	s.ForceRefreshAge = time.Duration(cfg.ForceRefreshDays) * 24 * time.Hour

	if err := validate(cfg, s); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return s, nil
}

// parseDuration parses an optional duration field; empty means zero.
func parseDuration(key, v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}

	return d, nil
}

// validate checks resolved values for range violations.
func validate(cfg *Config, s *Settings) error {
	if s.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %q", cfg.ChunkSize)
	}

	if s.ChunkSize%chunkAlignment != 0 {
		return fmt.Errorf("chunk_size %q must be a multiple of 256KiB", cfg.ChunkSize)
	}

	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", s.MaxRetries)
	}

	if cfg.ForceRefreshDays < 0 {
		return fmt.Errorf("force_refresh_days must be non-negative, got %d", cfg.ForceRefreshDays)
	}

	for key, d := range map[string]time.Duration{
		"refresh_timeout": s.RefreshTimeout,
		"connect_timeout": s.ConnectTimeout,
		"data_timeout":    s.DataTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be non-negative", key)
		}
	}

	if s.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative, got %v", s.RequestsPerSecond)
	}

	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", s.LogLevel)
	}

	return nil
}

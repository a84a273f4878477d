package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"ytup/internal/auth"
	"ytup/internal/config"
	"ytup/internal/retry"
	"ytup/internal/youtube"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagTokenFile  string
	flagChunkSize  string
	flagMaxRetries int
	flagHeadless   bool
	flagVerbose    bool
	flagQuiet      bool
)

// settings holds the effective configuration loaded by PersistentPreRunE.
var settings *config.Settings

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ytup",
		Short:   "Resumable YouTube video uploader",
		Long:    "Uploads videos to YouTube over the resumable upload protocol, surviving network failures, rate limits, and expired credentials.",
		Version: version,
		// Silence Cobra's default error/usage printing — main() handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadSettings(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagTokenFile, "token-file", "", "stored credential path")
	cmd.PersistentFlags().StringVar(&flagChunkSize, "chunk-size", "", "upload chunk size (e.g. 8MiB; multiple of 256KiB)")
	cmd.PersistentFlags().IntVar(&flagMaxRetries, "max-retries", 0, "transient-failure retry budget per operation")
	cmd.PersistentFlags().BoolVar(&flagHeadless, "headless", false, "authorize by pasting a code instead of a local browser")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newSessionsCmd())

	return cmd
}

// loadSettings resolves the effective configuration from the override chain
// and stores the result in settings for use by subcommands.
func loadSettings(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		TokenFile:  flagTokenFile,
		ChunkSize:  flagChunkSize,
	}

	// Only pass flags the user explicitly set, so zero values do not
	// clobber config-file settings.
	if cmd.Flags().Changed("max-retries") {
		cli.MaxRetries = &flagMaxRetries
	}

	if cmd.Flags().Changed("headless") {
		cli.Headless = &flagHeadless
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	settings = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if settings != nil {
		switch settings.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// statusf prints a status message to stderr unless quiet mode is set.
// Status output goes to stderr so stdout stays clean for the video id.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// headlessMode reports whether authorization should use the paste-a-code
// flow: forced by config/flag, or implied by stdout not being a terminal.
func headlessMode() bool {
	if settings.Headless {
		return true
	}

	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// newAuthorizer builds the Authorizer from resolved settings. Credentials
// must be configured; there is no usable default client id.
func newAuthorizer(logger *slog.Logger) (*auth.Authorizer, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, fmt.Errorf(
			"OAuth2 client credentials not configured: set client_id and client_secret in %s or the %s/%s environment variables",
			config.DefaultConfigPath(), config.EnvClientID, config.EnvClientSecret,
		)
	}

	return auth.New(auth.Config{
		ClientID:        settings.ClientID,
		ClientSecret:    settings.ClientSecret,
		TokenPath:       settings.TokenFile,
		ForceRefreshAge: settings.ForceRefreshAge,
		RefreshTimeout:  settings.RefreshTimeout,
	}, logger), nil
}

// interactiveFlow assembles the authorization Flow from the terminal
// environment: browser launch with a localhost callback when interactive,
// print-URL-and-paste-code otherwise.
func interactiveFlow() auth.Flow {
	flow := auth.Flow{
		AllowInteractive: !headlessMode(),
		OpenURL:          openBrowser,
		Prompt:           promptForCode,
	}

	return flow
}

// newYouTubeClient builds the API client over the authorizer with the
// configured timeouts and pacing.
func newYouTubeClient(authorizer *auth.Authorizer, logger *slog.Logger) *youtube.Client {
	var limiter *rate.Limiter
	if settings.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), 1)
	}

	httpClient := &http.Client{
		// No overall request timeout: chunk uploads legitimately run for
		// minutes. Stalls are bounded per-phase instead.
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: settings.ConnectTimeout,
			}).DialContext,
			ResponseHeaderTimeout: settings.DataTimeout,
			ForceAttemptHTTP2:     true,
		},
	}

	return youtube.NewClient(
		youtube.DefaultBaseURL,
		youtube.DefaultUploadBaseURL,
		httpClient,
		authorizer,
		limiter,
		logger,
	)
}

// retryPolicy is the transient-failure schedule from resolved settings.
func retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = settings.MaxRetries

	return p
}

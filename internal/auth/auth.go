// Package auth implements the OAuth2 credential lifecycle: first-run
// authorization (browser or headless), grant persistence, and single-flight
// token refresh with its own retry budget.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"

	"ytup/internal/retry"
	"ytup/internal/tokenfile"
)

// DefaultScopes grants upload plus general YouTube access, matching what the
// playlist and thumbnail endpoints need.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

// expiryMargin is the safety window before the declared expiry in which a
// token is already treated as unusable. A token that would expire mid-chunk
// is refreshed up front instead.
const expiryMargin = 5 * time.Minute

// Config carries the authorizer's construction parameters.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	// TokenPath is where the grant is persisted.
	TokenPath string

	// ForceRefreshAge refreshes a grant older than this even if its declared
	// expiry is still in the future, preempting silent server-side
	// revocation. Zero disables the policy.
	ForceRefreshAge time.Duration

	// RefreshTimeout bounds each token endpoint call. Zero means no
	// per-call deadline beyond the caller's context.
	RefreshTimeout time.Duration

	// Endpoint overrides the Google token endpoint. Tests point this at a
	// local server.
	Endpoint oauth2.Endpoint
}

// Authorizer owns the credential grant: it loads, refreshes, and persists it,
// and hands out bearer tokens to the API client. All mutation of the grant
// goes through here.
type Authorizer struct {
	oauthCfg  *oauth2.Config
	tokenPath string

	forceRefreshAge time.Duration
	refreshTimeout  time.Duration

	retrier *retry.Controller
	logger  *slog.Logger

	// group coalesces concurrent refreshes into one token endpoint call.
	// Most OAuth2 servers invalidate a refresh token once exchanged, so
	// parallel refreshes would race each other into invalid_grant.
	group singleflight.Group

	mu    sync.Mutex
	grant *tokenfile.Grant

	// now is the clock, injectable for tests.
	now func() time.Time
}

// New creates an Authorizer. The grant is loaded lazily on first use.
func New(cfg Config, logger *slog.Logger) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	return &Authorizer{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		tokenPath:       cfg.TokenPath,
		forceRefreshAge: cfg.ForceRefreshAge,
		refreshTimeout:  cfg.RefreshTimeout,
		retrier:         retry.New(retry.KindTokenRefresh, retry.RefreshPolicy(), logger),
		logger:          logger,
		now:             time.Now,
	}
}

// Authorize ensures a usable grant exists, in order of preference: the
// stored grant as-is, a refresh of it, or a full authorization flow. The
// full flow needs allowInteractive unless headless code paste is acceptable
// to the caller via Flow options; with interactive disallowed and no viable
// refresh, ErrInteractiveDisallowed is returned.
func (a *Authorizer) Authorize(ctx context.Context, flow Flow) error {
	a.mu.Lock()
	if a.grant == nil {
		g, err := tokenfile.Load(a.tokenPath)
		if err != nil {
			a.mu.Unlock()
			return err
		}

		a.grant = g
	}

	g := a.grant
	a.mu.Unlock()

	if g != nil && a.usable(g) {
		a.logger.Debug("stored grant is usable",
			slog.Time("expiry", g.Token.Expiry),
		)

		return nil
	}

	if g != nil && g.Token.RefreshToken != "" {
		err := a.Refresh(ctx, false)
		if err == nil {
			return nil
		}

		if !canFallBackToFlow(err) {
			return err
		}

		a.logger.Warn("refresh failed, falling back to full authorization",
			slog.String("error", err.Error()),
		)
	}

	return a.runFlow(ctx, flow)
}

// canFallBackToFlow reports whether a refresh failure should trigger a full
// re-authorization rather than propagate. A dead grant or a spent refresh
// budget can both be cured by a new interactive grant; context cancellation
// cannot.
func canFallBackToFlow(err error) bool {
	if isInvalidGrant(err) {
		return true
	}

	return retry.IsExhausted(err)
}

// Token implements the API client's TokenSource: it returns the current
// access token, refreshing first when the grant is unusable. A grant past
// its declared expiry is never handed to the service.
func (a *Authorizer) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	g := a.grant
	a.mu.Unlock()

	if g == nil {
		return "", ErrNoGrant
	}

	if !a.usable(g) {
		if err := a.Refresh(ctx, false); err != nil {
			return "", err
		}

		a.mu.Lock()
		g = a.grant
		a.mu.Unlock()
	}

	return g.Token.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token and persists
// the result. force refreshes even a nominally valid token. Concurrent
// callers share one in-flight exchange; transient token endpoint failures
// are retried under the refresh budget.
func (a *Authorizer) Refresh(ctx context.Context, force bool) error {
	_, err, _ := a.group.Do("refresh", func() (any, error) {
		return nil, a.doRefresh(ctx, force)
	})

	return err
}

func (a *Authorizer) doRefresh(ctx context.Context, force bool) error {
	a.mu.Lock()
	g := a.grant
	a.mu.Unlock()

	if g == nil || g.Token.RefreshToken == "" {
		return ErrNoGrant
	}

	// Re-check under force=false: another caller may have refreshed while
	// we waited on the singleflight group.
	if !force && a.usable(g) {
		return nil
	}

	a.logger.Info("refreshing access token",
		slog.Bool("force", force),
		slog.Time("old_expiry", g.Token.Expiry),
	)

	// Strip the access token so the oauth2 token source performs a real
	// exchange instead of returning the cached token.
	stale := &oauth2.Token{
		RefreshToken: g.Token.RefreshToken,
		TokenType:    g.Token.TokenType,
	}

	var fresh *oauth2.Token

	err := a.retrier.Do(ctx, refreshRetryable, func(ctx context.Context) error {
		callCtx := ctx

		if a.refreshTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.refreshTimeout)
			defer cancel()
		}

		tok, tokErr := a.oauthCfg.TokenSource(callCtx, stale).Token()
		if tokErr != nil {
			return tokErr
		}

		fresh = tok

		return nil
	})
	if err != nil {
		if isInvalidGrant(err) {
			return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
		}

		return fmt.Errorf("auth: refreshing token: %w", err)
	}

	// Token endpoints may omit the refresh token on refresh responses;
	// keep the one we have.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = g.Token.RefreshToken
	}

	return a.install(fresh)
}

// install persists a freshly obtained token and makes it current.
// Persistence happens before the in-memory swap so a crash cannot leave a
// newer token in memory than on disk.
func (a *Authorizer) install(tok *oauth2.Token) error {
	g := tokenfile.Stamp(tok, a.oauthCfg.Scopes)

	if err := tokenfile.Save(a.tokenPath, g); err != nil {
		return err
	}

	a.mu.Lock()
	a.grant = g
	a.mu.Unlock()

	a.logger.Info("grant persisted",
		slog.String("path", a.tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return nil
}

// usable reports whether a grant can be presented to the service as-is:
// non-empty access token, expiry comfortably in the future, and — when the
// forced-refresh policy is configured — not older than the maximum age.
func (a *Authorizer) usable(g *tokenfile.Grant) bool {
	if g.Token == nil || g.Token.AccessToken == "" {
		return false
	}

	now := a.now()

	if !g.Token.Expiry.IsZero() && !now.Add(expiryMargin).Before(g.Token.Expiry) {
		return false
	}

	if a.forceRefreshAge > 0 && !g.SavedAt.IsZero() && now.Sub(g.SavedAt) > a.forceRefreshAge {
		a.logger.Info("grant exceeds forced-refresh age",
			slog.Time("saved_at", g.SavedAt),
			slog.Duration("max_age", a.forceRefreshAge),
		)

		return false
	}

	return true
}

// Logout removes the stored grant.
func (a *Authorizer) Logout() error {
	a.mu.Lock()
	a.grant = nil
	a.mu.Unlock()

	return tokenfile.Remove(a.tokenPath)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// oobRedirectURI is the out-of-band redirect for the headless flow: the
// authorization server displays the code for the user to paste back.
const oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// callbackShutdownTimeout is how long to wait for the callback server to drain.
const callbackShutdownTimeout = 5 * time.Second

// Flow describes how a full authorization is carried out when no grant can
// be refreshed.
type Flow struct {
	// AllowInteractive permits the browser flow with a localhost callback.
	AllowInteractive bool

	// OpenURL launches the browser with the authorization URL. If it fails,
	// the flow falls back to the headless prompt when one is available.
	OpenURL func(url string) error

	// Prompt displays the authorization URL and returns the code the user
	// pasted back. nil means no human is available (headless automation),
	// making a full authorization terminal.
	Prompt func(authURL string) (string, error)
}

// callbackResult carries the authorization code or error from the callback
// handler.
type callbackResult struct {
	code string
	err  error
}

// runFlow performs the full authorization-code flow and installs the
// resulting grant.
func (a *Authorizer) runFlow(ctx context.Context, flow Flow) error {
	if flow.AllowInteractive {
		err := a.browserFlow(ctx, flow)
		if err == nil {
			return nil
		}

		// A refused or failed browser flow can still complete by hand.
		if flow.Prompt == nil || errors.Is(err, ErrFlowCanceled) || ctx.Err() != nil {
			return err
		}

		a.logger.Warn("browser flow failed, falling back to manual code entry",
			slog.String("error", err.Error()),
		)
	}

	if flow.Prompt == nil {
		return ErrInteractiveDisallowed
	}

	return a.headlessFlow(ctx, flow.Prompt)
}

// browserFlow runs the authorization code + PKCE flow:
//  1. Binds a localhost HTTP server on a random port
//  2. Opens the browser to the authorization endpoint
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for tokens using PKCE
//  5. Persists the grant
func (a *Authorizer) browserFlow(ctx context.Context, flow Flow) error {
	a.logger.Info("starting browser authorization flow")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := a.startCallbackServer(ctx, mux, resultCh)
	if err != nil {
		return err
	}

	defer a.shutdownCallbackServer(srv)

	// Work on a copy: the redirect URL is per-flow.
	cfg := *a.oauthCfg
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	registerCallbackHandler(mux, state, resultCh)

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		// Re-consent guarantees a refresh token even when the user has
		// authorized this client before.
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	a.logger.Info("opening browser for authorization")

	if openErr := flow.OpenURL(authURL); openErr != nil {
		return fmt.Errorf("auth: opening browser: %w", openErr)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return err
	}

	return a.exchange(ctx, &cfg, code, verifier)
}

// headlessFlow prints the authorization URL via the prompt callback and
// blocks for a manually pasted code.
func (a *Authorizer) headlessFlow(ctx context.Context, prompt func(string) (string, error)) error {
	a.logger.Info("starting headless authorization flow")

	cfg := *a.oauthCfg
	cfg.RedirectURL = oobRedirectURI

	verifier := oauth2.GenerateVerifier()

	authURL := cfg.AuthCodeURL(uuid.NewString(),
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	code, err := prompt(authURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFlowCanceled, err)
	}

	if code == "" {
		return ErrFlowCanceled
	}

	return a.exchange(ctx, &cfg, code, verifier)
}

// exchange trades an authorization code for a token and installs it.
func (a *Authorizer) exchange(ctx context.Context, cfg *oauth2.Config, code, verifier string) error {
	a.logger.Info("exchanging authorization code for token")

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("auth: token exchange failed: %w", err)
	}

	a.logger.Info("authorization successful",
		slog.Time("expiry", tok.Expiry),
	)

	return a.install(tok)
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server with
// the given mux. Returns the server, the bound port, and any error.
func (a *Authorizer) startCallbackServer(
	ctx context.Context, mux *http.ServeMux, resultCh chan<- callbackResult,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("auth: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("auth: listener address is not TCP")
	}

	port := tcpAddr.Port
	a.logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: callbackShutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("auth: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
// Must be called before the browser redirects back.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})
}

// handleCallback validates the state, extracts the code, and sends the result.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)

		err := fmt.Errorf("auth: authorization failed: %s: %s", errParam, desc)
		if errParam == "access_denied" {
			err = fmt.Errorf("%w: %s", ErrFlowCanceled, desc)
		}

		resultCh <- callbackResult{err: err}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("auth: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func (a *Authorizer) shutdownCallbackServer(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Best-effort shutdown, we're in a defer.
		a.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrFlowCanceled, ctx.Err())
	}
}

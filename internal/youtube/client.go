package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Service endpoints. The upload base differs from the metadata base because
// media requests go through the dedicated upload frontend.
const (
	DefaultBaseURL       = "https://www.googleapis.com/youtube/v3"
	DefaultUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"

	userAgent = "ytup/0.1"
)

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per Go
// convention "accept interfaces, return structs"; the auth package provides
// the real implementation. Obtaining a token may hit the network (silent
// refresh), hence the context.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is an HTTP client for the YouTube Data API. It handles request
// construction, authentication, client-side pacing, and error
// classification. Retry is the caller's concern: every method is a single
// attempt whose failure carries enough classification for the retry
// controller to decide.
type Client struct {
	baseURL       string
	uploadBaseURL string
	httpClient    *http.Client
	token         TokenSource
	limiter       *rate.Limiter
	logger        *slog.Logger
}

// NewClient creates a YouTube API client. A nil limiter disables pacing.
func NewClient(baseURL, uploadBaseURL string, httpClient *http.Client, token TokenSource, limiter *rate.Limiter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:       baseURL,
		uploadBaseURL: uploadBaseURL,
		httpClient:    httpClient,
		token:         token,
		limiter:       limiter,
		logger:        logger,
	}
}

// do executes one authenticated request against the metadata API.
// contentType applies only when body is non-nil. The caller owns the
// response body on success.
func (c *Client) do(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("youtube: creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", err.Error()),
		)

		return nil, &requestError{op: method, err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, c.errorFromResponse(resp)
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// pace blocks until the client-side rate limiter admits a request.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("youtube: request pacing: %w", err)
	}

	return nil
}

// errorFromResponse drains the body and builds a classified APIError.
// Always closes the response body.
func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
	resp.Body.Close()

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        classifyStatus(resp.StatusCode),
	}

	c.logger.Warn("request rejected",
		slog.Int("status", resp.StatusCode),
	)

	return apiErr
}

// parseRetryAfter converts a Retry-After header value in seconds to a
// duration. HTTP-date forms are rare on this API and are ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}

	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}

// drain consumes and closes a response body so the connection can be reused.
func drain(resp *http.Response) error {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("youtube: draining response body: %w", err)
	}

	return nil
}

// Package transport is the retry-with-backoff HTTP wrapper (C5): an
// idempotent HTTP client over a defined retryable status set and network
// errors, directly grounded on the teacher's internal/graph/client.go
// doRetry/calcBackoff/isRetryable trio, generalized away from the
// Microsoft Graph API into a reusable client shared by the document and
// attachment sync drivers.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Defaults per §4.5.
const (
	DefaultMaxRetries         = 4
	DefaultInitialDelay       = 2 * time.Second
	DefaultMaxDelay           = 16 * time.Second
	DefaultBackoffMultiplier  = 2.0
	jitterLow, jitterHigh     = 0.85, 1.15
	defaultRequestContentType = "application/json"
)

// Client is an authenticated, retrying HTTP client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries        int
	initialDelay      time.Duration
	maxDelay          time.Duration
	backoffMultiplier float64

	// sleepFunc waits between retries; overridden in tests to skip real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures a Client constructed via New.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (defaults to
// http.DefaultClient).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger overrides the client's logger (defaults to slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetryPolicy overrides the retry defaults.
func WithRetryPolicy(maxRetries int, initialDelay, maxDelay time.Duration, multiplier float64) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialDelay = initialDelay
		c.maxDelay = maxDelay
		c.backoffMultiplier = multiplier
	}
}

// New creates a Client against baseURL, authenticating every request with
// "Authorization: Bearer <apiKey>".
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:           baseURL,
		apiKey:            apiKey,
		httpClient:        http.DefaultClient,
		logger:            slog.Default(),
		maxRetries:        DefaultMaxRetries,
		initialDelay:      DefaultInitialDelay,
		maxDelay:          DefaultMaxDelay,
		backoffMultiplier: DefaultBackoffMultiplier,
		sleepFunc:         timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Do executes an authenticated request against path (relative to baseURL)
// with automatic retry on transient errors. On success (2xx) the caller
// must close the returned response body. A non-2xx status that is not
// retryable, or still failing once retries are exhausted, returns an
// *HTTPError wrapping a sentinel (errors.Is-able); a network error that
// outlasts the retries is returned wrapped, not as an *HTTPError.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, headers http.Header) (*http.Response, error) {
	url := c.baseURL + path

	var attempt int
	for {
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, method, url, body, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("transport: retrying after network error",
					slog.String("method", method), slog.String("path", path),
					slog.Int("attempt", attempt+1), slog.Duration("backoff", backoff),
					slog.String("error", err.Error()))

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("transport: request canceled: %w", sleepErr)
				}
				attempt++
				continue
			}

			return nil, fmt.Errorf("transport: %s %s failed after %d retries: %w", method, path, c.maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("transport: retrying after HTTP error",
				slog.String("method", method), slog.String("path", path),
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff))

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("transport: request canceled: %w", err)
			}
			attempt++
			continue
		}

		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(errBody), Err: classifyStatus(resp.StatusCode)}
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("transport: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", defaultRequestContentType)
	}

	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	return c.httpClient.Do(req)
}

// retryBackoff honors a 429 response's Retry-After header over calculated
// backoff, matching the teacher's precedence rule.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes min(initial * multiplier^attempt, max) with
// multiplicative jitter uniform in [0.85, 1.15], per §4.5.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(c.initialDelay) * math.Pow(c.backoffMultiplier, float64(attempt))
	if backoff > float64(c.maxDelay) {
		backoff = float64(c.maxDelay)
	}

	jitter := jitterLow + rand.Float64()*(jitterHigh-jitterLow)

	return time.Duration(backoff * jitter)
}

// rewindBody seeks body back to offset 0 if it implements io.Seeker, so a
// retry resends the full payload.
func rewindBody(body io.Reader) error {
	if body == nil {
		return nil
	}

	if seeker, ok := body.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("transport: rewinding request body for retry: %w", err)
		}
	}

	return nil
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

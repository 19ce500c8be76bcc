package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/cardsync/pkg/utils/safe"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

const (
	APIPrefix    = "/api/v1"
	APIKeyHeader = "X-API-Key"

	DefaultMinDelay   = 650 * time.Millisecond
	DefaultMaxRetries = 3

	maxResponseBody = 10 << 20
)

// Client executes JSON requests against the board service. All requests issued through one Client are
// spaced by at least the minimum delay, whichever goroutine issues them.
type Client struct {
	baseURL    string
	apiKey     types.BoardAPIKey
	httpClient interfaces.HTTPClient
	limiter    *rate.Limiter
	maxRetries int
	newBackOff func() backoff.BackOff
}

type Option func(*Client)

func WithHTTPClient(client interfaces.HTTPClient) Option {
	return func(x *Client) {
		x.httpClient = client
	}
}

func WithMinDelay(d time.Duration) Option {
	return func(x *Client) {
		x.limiter = newLimiter(d)
	}
}

func WithMaxRetries(n int) Option {
	return func(x *Client) {
		x.maxRetries = n
	}
}

// WithBackOff replaces the wait policy between retries of rate-limited requests.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(x *Client) {
		x.newBackOff = f
	}
}

func New(baseURL string, apiKey types.BoardAPIKey, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.Wrap(types.ErrInvalidOption, "board API URL is empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, goerr.Wrap(types.ErrInvalidOption, "invalid board API URL", goerr.V("url", baseURL))
	}
	if apiKey == "" {
		return nil, goerr.Wrap(types.ErrInvalidOption, "board API key is empty")
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		limiter:    newLimiter(DefaultMinDelay),
		maxRetries: DefaultMaxRetries,
		newBackOff: DefaultBackOff,
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// DefaultBackOff waits a random duration between 60 and 120 seconds before every retry.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 90 * time.Second
	b.RandomizationFactor = 1.0 / 3
	b.Multiplier = 1
	b.MaxInterval = 120 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// NormalizeEndpoint makes endpoint an absolute path under the API version prefix.
func NormalizeEndpoint(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if endpoint == APIPrefix || strings.HasPrefix(endpoint, APIPrefix+"/") {
		return endpoint
	}
	return APIPrefix + endpoint
}

// Do sends a request and decodes a successful JSON response into out (when out is not nil). Rate limited
// responses are retried up to the configured bound; any other failure is returned immediately.
func (x *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body", goerr.V("endpoint", endpoint))
		}
		payload = raw
	}

	reqURL := x.baseURL + NormalizeEndpoint(endpoint)
	b := x.newBackOff()

	for attempt := 0; ; attempt++ {
		status, respBody, err := x.send(ctx, method, reqURL, payload)
		if err != nil {
			return err
		}

		if status >= 200 && status < 300 {
			if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return goerr.Wrap(err, "failed to decode board API response",
					goerr.V("method", method),
					goerr.V("url", reqURL),
					goerr.V("body", string(respBody)),
				)
			}
			return nil
		}

		if !IsRateLimitResponse(status, respBody) {
			return statusError(method, reqURL, status, respBody)
		}

		wait := b.NextBackOff()
		if attempt >= x.maxRetries || wait == backoff.Stop {
			return goerr.Wrap(&types.RateLimitError{Service: types.ServiceBoard}, "board API retries exhausted",
				goerr.V("method", method),
				goerr.V("url", reqURL),
				goerr.V("status", status),
				goerr.V("body", string(respBody)),
				goerr.V("retries", attempt),
			)
		}

		logging.From(ctx).Warn("board API rate limited, backing off",
			slog.String("method", method),
			slog.String("url", reqURL),
			slog.Int("status", status),
			slog.Int("retry", attempt+1),
			slog.Duration("wait", wait),
		)

		if err := sleep(ctx, wait); err != nil {
			return goerr.Wrap(err, "interrupted while waiting for board API rate limit")
		}
	}
}

func (x *Client) send(ctx context.Context, method, reqURL string, payload []byte) (int, []byte, error) {
	if err := x.limiter.Wait(ctx); err != nil {
		return 0, nil, goerr.Wrap(err, "interrupted while waiting for request slot")
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to create board API request",
			goerr.V("method", method),
			goerr.V("url", reqURL),
		)
	}
	req.Header.Set(APIKeyHeader, string(x.apiKey))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to send board API request",
			goerr.V("method", method),
			goerr.V("url", reqURL),
		)
	}
	defer safe.Close(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to read board API response",
			goerr.V("method", method),
			goerr.V("url", reqURL),
			goerr.V("status", resp.StatusCode),
		)
	}

	return resp.StatusCode, respBody, nil
}

// IsRateLimitResponse reports whether a response should be retried as rate limiting. The board service
// answers bursts with 500 as well as 429, and sometimes with a 401 that names the rate limit.
func IsRateLimitResponse(status int, body []byte) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError:
		return true
	case http.StatusUnauthorized:
		msg := strings.ToLower(string(body))
		for _, kw := range []string{"rate limit", "rate-limit", "ratelimit", "too many requests"} {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}
	return false
}

func statusError(method, reqURL string, status int, body []byte) error {
	var cause error
	switch {
	case status == http.StatusNotFound:
		cause = types.ErrNotFound
	case status >= 500:
		cause = types.ErrServerError
	default:
		cause = types.ErrClientError
	}

	return goerr.Wrap(cause, "board API request failed",
		goerr.V("method", method),
		goerr.V("url", reqURL),
		goerr.V("status", status),
		goerr.V("body", string(body)),
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

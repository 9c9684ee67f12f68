package chainsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds a single HTTP request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after a failed request.
	DefaultMaxRetries = 2

	// DefaultRateLimit is the sustained request rate per second public
	// indexers tolerate.
	DefaultRateLimit = 3

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 8 << 20
)

var (
	// ErrNotFound is returned for a 404 response.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the service keeps answering 429.
	ErrRateLimited = errors.New("rate limited")
)

// ClientConfig holds the configuration of an HTTP indexer client.
type ClientConfig struct {
	// URL is the base URL of the API, without a trailing slash.
	URL string

	// RequestTimeout is the timeout for individual HTTP requests.
	RequestTimeout time.Duration

	// MaxRetries is the maximum number of retries for failed requests.
	MaxRetries int

	// RateLimit is the maximum number of requests per second, zero for
	// no limit.
	RateLimit float64
}

// DefaultClientConfig returns a config for url with default limits.
func DefaultClientConfig(url string) *ClientConfig {
	return &ClientConfig{
		URL:            url,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		RateLimit:      DefaultRateLimit,
	}
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Unwrap maps well known status codes onto sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// temporary reports whether the request may succeed when retried.
func (e *StatusError) temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// httpClient is the retrying, rate limited request core shared by the
// indexer clients.
type httpClient struct {
	cfg *ClientConfig

	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(cfg *ClientConfig) *httpClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &httpClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// do performs a request, retrying transport errors, 429 and 5xx responses
// with a linear backoff. It returns the body of a 2xx response.
func (c *httpClient) do(ctx context.Context, method, path string,
	contentType string, body []byte) ([]byte, error) {

	url := c.cfg.URL + path

	var lastErr error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		if i > 0 {
			backoff := time.Duration(i) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w",
				err)
		}
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}

		log.Tracef("%s %s (attempt %d)", method, url, i+1)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(
			io.LimitReader(resp.Body, maxResponseSize),
		)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode/100 != 2 {
			statusErr := &StatusError{
				Code: resp.StatusCode,
				Body: string(bytes.TrimSpace(respBody)),
			}
			if !statusErr.temporary() {
				return nil, statusErr
			}
			lastErr = statusErr
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w",
		c.cfg.MaxRetries+1, lastErr)
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, "", nil)
}

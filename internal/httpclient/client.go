// Package httpclient provides the authenticated JSON client used against
// connector endpoints, with bounded retry of transient failures.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/connector-sync/pkg/versions"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024
)

// Client performs JSON requests against one endpoint
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string) ([]byte, error)

	// Post sends body as JSON and returns the response body
	Post(ctx context.Context, url string, body []byte) ([]byte, error)

	// Delete performs an HTTP DELETE request without a body
	Delete(ctx context.Context, url string) error
}

// RetryPolicy bounds the attempts made for one request
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries transient failures twice
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     3,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// Option configures a DefaultClient
type Option func(*DefaultClient)

// WithCredentials authenticates every request with creds
func WithCredentials(creds *Credentials) Option {
	return func(c *DefaultClient) {
		c.creds = creds
	}
}

// WithRetryPolicy replaces DefaultRetryPolicy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *DefaultClient) {
		c.retry = p
	}
}

// WithTransport sets the base round tripper, mainly for tests
func WithTransport(rt http.RoundTripper) Option {
	return func(c *DefaultClient) {
		c.base = rt
	}
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client    *http.Client
	base      http.RoundTripper
	creds     *Credentials
	retry     RetryPolicy
	userAgent string
}

// NewDefaultClient creates a client with the specified timeout per attempt.
// If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration, opts ...Option) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &DefaultClient{
		base:      http.DefaultTransport,
		retry:     DefaultRetryPolicy,
		userAgent: versions.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts == 0 {
		c.retry.MaxAttempts = 1
	}

	c.client = &http.Client{
		Timeout:   timeout,
		Transport: c.creds.transport(c.base),
	}
	return c
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil)
}

// Post performs an HTTP POST request with a JSON body
func (c *DefaultClient) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body)
}

// Delete performs an HTTP DELETE request
func (c *DefaultClient) Delete(ctx context.Context, url string) error {
	_, err := c.do(ctx, http.MethodDelete, url, nil)
	return err
}

func (c *DefaultClient) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialInterval
	b.MaxInterval = c.retry.MaxInterval

	operation := func() ([]byte, error) {
		resp, err := c.once(ctx, method, url, body)
		if err != nil && !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.retry.MaxAttempts),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Debug("Retrying request", "method", method, "url", url, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return nil, err
	}
	return resp, nil
}

func (c *DefaultClient) once(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// Read one byte past the limit to detect oversized bodies without a Content-Length.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return data, nil
}

// Package httpclient provides the HTTP GET client used by the Jenkins and
// Benchmark adapters.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a whole request, body included
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the default body limit (100MB); Jenkins console logs are the largest bodies read
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is sent unless overridden with WithUserAgent
	UserAgent = "robota-core/1.0"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error)
}

// RequestOption customises a single request
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(req *http.Request) {
		req.Header.Set(key, value)
	}
}

// WithBasicAuth sets HTTP basic credentials.
func WithBasicAuth(username, password string) RequestOption {
	return func(req *http.Request) {
		req.SetBasicAuth(username, password)
	}
}

// WithAccept overrides the default JSON Accept header.
func WithAccept(mediaType string) RequestOption {
	return WithHeader("Accept", mediaType)
}

// ClientOption configures a DefaultClient
type ClientOption func(*DefaultClient)

// WithTimeout replaces DefaultTimeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *DefaultClient) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithMaxResponseSize replaces MaxResponseSize.
func WithMaxResponseSize(limit int64) ClientOption {
	return func(c *DefaultClient) {
		c.maxSize = limit
	}
}

// WithUserAgent replaces UserAgent.
func WithUserAgent(agent string) ClientOption {
	return func(c *DefaultClient) {
		c.userAgent = agent
	}
}

// DefaultClient is the net/http backed Client
type DefaultClient struct {
	client    *http.Client
	userAgent string
	maxSize   int64
}

// New returns a DefaultClient with the given options applied over the
// package defaults.
func New(opts ...ClientOption) *DefaultClient {
	c := &DefaultClient{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: UserAgent,
		maxSize:   MaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewDefaultClient returns a Client with the given timeout, or
// DefaultTimeout when it is zero.
func NewDefaultClient(timeout time.Duration) Client {
	return New(WithTimeout(timeout))
}

// Get fetches url and returns the body of a 200 response. Any other status
// is returned as *HTTPError.
func (c *DefaultClient) Get(ctx context.Context, url string, opts ...RequestOption) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}
	return c.readBody(resp)
}

func (c *DefaultClient) readBody(resp *http.Response) ([]byte, error) {
	if resp.ContentLength > c.maxSize {
		return nil, c.tooLarge(resp.ContentLength)
	}

	// one extra byte tells a body of exactly maxSize from a longer one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxSize {
		return nil, c.tooLarge(-1)
	}
	return body, nil
}

func (c *DefaultClient) tooLarge(size int64) error {
	if size < 0 {
		return fmt.Errorf("response exceeds maximum allowed size of %d bytes", c.maxSize)
	}
	return fmt.Errorf("response of %d bytes exceeds maximum allowed size of %d bytes", size, c.maxSize)
}

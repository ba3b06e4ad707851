// Package httpclient is the outbound HTTP client shared by the remote
// detector, the content mirror and the species lookup.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/birdwatch-app/birdwatch-go/internal/errors"
)

const (
	// DefaultTimeout applies when the request context carries no deadline.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseBytes caps bodies read through ReadBody.
	DefaultMaxResponseBytes = 32 << 20

	defaultMaxIdleConns        = 50
	defaultMaxIdleConnsPerHost = 8
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 15 * time.Second
	defaultDialKeepAlive       = 30 * time.Second

	defaultUserAgent = "birdwatch-go"
)

// Config holds client settings. Zero values fall back to defaults.
type Config struct {
	DefaultTimeout      time.Duration
	UserAgent           string
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	MaxResponseBytes    int64
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:      DefaultTimeout,
		UserAgent:           defaultUserAgent,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		MaxResponseBytes:    DefaultMaxResponseBytes,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = d.MaxResponseBytes
	}
	return c
}

// Client wraps http.Client with per-request deadlines, a User-Agent and
// observation hooks. Safe for concurrent use.
type Client struct {
	client           *http.Client
	defaultTimeout   time.Duration
	userAgent        string
	maxResponseBytes int64

	hookMu        sync.RWMutex
	beforeRequest func(*http.Request)
	afterResponse func(*http.Request, *http.Response, error, time.Duration)
}

// New creates a client. A nil cfg means DefaultConfig.
func New(cfg *Config) *Client {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        c.MaxIdleConns,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}

	return &Client{
		client:           &http.Client{Transport: transport},
		defaultTimeout:   c.DefaultTimeout,
		userAgent:        c.UserAgent,
		maxResponseBytes: c.MaxResponseBytes,
	}
}

// HTTPClient exposes the underlying client, for SDKs that take one.
func (c *Client) HTTPClient() *http.Client {
	return c.client
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Do sends req. When ctx has no deadline the default timeout is applied and
// released once the caller closes the response body.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.defaultTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.defaultTimeout)
	}
	req = req.WithContext(ctx)

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.hookMu.RLock()
	before, after := c.beforeRequest, c.afterResponse
	c.hookMu.RUnlock()

	if before != nil {
		before(req)
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if after != nil {
		after(req, resp, err, time.Since(start))
	}

	if cancel != nil {
		if err != nil {
			cancel()
		} else {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		}
	}
	return resp, err
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	return c.Do(ctx, req)
}

// GetBytes fetches url and returns the body of a 2xx response.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, networkError(err, url, c.defaultTimeout)
	}
	return c.ReadBody(resp)
}

// GetJSON fetches url and parses the body as a JSON object.
func (c *Client) GetJSON(ctx context.Context, url string) (*jason.Object, error) {
	body, err := c.GetBytes(ctx, url)
	if err != nil {
		return nil, err
	}
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, errors.New(fmt.Errorf("decode response from %s: %w", url, err)).
			Component("httpclient").
			Category(errors.CategoryFileParsing).
			Context("url", url).
			Build()
	}
	return obj, nil
}

// Part is a file attached to a multipart request.
type Part struct {
	Field    string
	FileName string
	Content  io.Reader
}

// PostMultipart sends fields and parts as multipart/form-data and returns
// the body of a 2xx response.
func (c *Client) PostMultipart(ctx context.Context, url string, fields map[string]string, parts ...Part) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.Field, p.FileName)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(fw, p.Content); err != nil {
			return nil, fmt.Errorf("copy %s into request: %w", p.FileName, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, networkError(err, url, c.defaultTimeout)
	}
	return c.ReadBody(resp)
}

// ReadBody reads and closes resp.Body, turning non-2xx statuses into *StatusError.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, errors.Newf("response exceeds %d bytes", c.maxResponseBytes).
			Component("httpclient").
			Category(errors.CategoryLimit).
			Context("url", requestURL(resp)).
			Build()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{URL: requestURL(resp), StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// SetBeforeRequestHook sets a function called before each request.
func (c *Client) SetBeforeRequestHook(fn func(*http.Request)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.beforeRequest = fn
}

// SetAfterResponseHook sets a function called after each request with its latency.
func (c *Client) SetAfterResponseHook(fn func(*http.Request, *http.Response, error, time.Duration)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.afterResponse = fn
}

// Close drops idle pooled connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func requestURL(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}
	return resp.Request.URL.String()
}

func networkError(err error, url string, timeout time.Duration) error {
	category := errors.CategoryNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	}
	return errors.New(err).
		Component("httpclient").
		Category(category).
		NetworkContext(url, timeout).
		Build()
}

// Package apiclient is the HTTP client every call to the task API goes
// through. It attaches the session's bearer token, classifies failures and
// tears the session down when the server answers 401.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const maxResponseBody = 4 << 20

// TokenSource is the session context the client reads credentials from.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// Config describes how to reach the API.
type Config struct {
	BaseURL string
	// WithCredentials keeps server cookies between requests.
	WithCredentials bool
	Timeout         time.Duration
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64
	RateBurst int
}

// Client sends requests to the task API on behalf of one session.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	limiter *rate.Limiter
	metrics *Metrics
	log     logrus.FieldLogger

	mu    sync.Mutex
	hooks []func(ctx context.Context)
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The cookie jar and
// timeout from Config are not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client. tokens may be nil for calls that never need a session.
func New(cfg Config, tokens TokenSource, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	c := &Client{
		baseURL: base,
		tokens:  tokens,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
		if cfg.WithCredentials {
			jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
			if err != nil {
				return nil, fmt.Errorf("cookie jar: %w", err)
			}
			c.http.Jar = jar
		}
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// OnUnauthorized registers a hook that runs after a 401 cleared the
// persisted credentials. Hooks run in registration order.
func (c *Client) OnUnauthorized(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Response is a successful (status < 400) API answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Send performs one request. body is encoded as JSON when non-nil. Failures
// are returned as *Error and match ErrNetwork, ErrBadRequest,
// ErrUnauthorized, ErrNotFound or ErrServer. A successful answer larger than
// the read limit also matches ErrResponseTooLarge.
func (c *Client) Send(ctx context.Context, method, path string, body any, query url.Values) (*Response, error) {
	requestID := uuid.NewString()
	entry := c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Error{Method: method, Path: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read access token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		entry.Warn("no auth token found, sending unauthenticated request")
	}

	route := routeLabel(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(method, route, "error", time.Since(start))
		entry.WithError(err).Warn("request failed")
		return nil, &Error{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	c.metrics.observe(method, route, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, &Error{Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}
	truncated := len(data) > maxResponseBody
	if truncated {
		data = data[:maxResponseBody]
	}

	if resp.StatusCode < http.StatusBadRequest {
		if truncated {
			entry.WithField("status", resp.StatusCode).Error("response body too large")
			return nil, &Error{Method: method, Path: path, Status: resp.StatusCode, Err: ErrResponseTooLarge}
		}
		entry.WithField("status", resp.StatusCode).Debug("request done")
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}

	apiErr := &Error{
		Method:  method,
		Path:    path,
		Status:  resp.StatusCode,
		Message: extractMessage(data),
		Body:    data,
	}
	entry = entry.WithField("status", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		entry.Warn("unauthorized, clearing session")
		c.expire(ctx)
	case http.StatusBadRequest:
		entry.WithField("body", string(data)).Error("bad request")
	default:
		entry.WithField("message", apiErr.Message).Info("request rejected")
	}
	return nil, apiErr
}

// Get sends a GET and decodes the answer into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, query, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, nil, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPatch, path, body, nil, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values, out any) error {
	resp, err := c.Send(ctx, method, path, body, query)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", nil
	}
	return c.tokens.AccessToken(ctx)
}

// expire clears the persisted session and runs the redirect hooks. It runs
// even when the triggering request's context is already cancelled.
func (c *Client) expire(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if c.tokens != nil {
		if err := c.tokens.Clear(ctx); err != nil {
			c.log.WithError(err).Error("clear credentials after 401")
		}
	}
	c.mu.Lock()
	hooks := append([]func(context.Context){}, c.hooks...)
	c.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx)
	}
}

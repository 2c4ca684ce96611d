// Package client implements provider.Provider against the studentfund HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	"github.com/studentfund/studentfund/internal/provider"
)

const (
	apiKeyHeader     = "apikey"
	maxResponseBody  = 16 << 20
	defaultMaxTries  = 4
	defaultRetryWait = 200 * time.Millisecond
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithSessionFile persists the session to f. Without it the session lives in
// memory only.
func WithSessionFile(f *SessionFile) Option {
	return func(c *Client) {
		c.file = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRetry sets how often a transient failure is attempted and the first
// wait between attempts.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		c.retryWait = initial
	}
}

// Client talks to the provider API. It is safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	http      *http.Client
	file      *SessionFile
	logger    *slog.Logger
	maxTries  uint
	retryWait time.Duration

	refreshMu sync.Mutex

	mu        sync.Mutex
	session   *provider.Session
	loaded    bool
	listeners map[int]provider.SessionListener
	nextID    int
}

// New creates a Client for the API at baseURL, sending apiKey on every request.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		http:      http.DefaultClient,
		logger:    slog.Default(),
		maxTries:  defaultMaxTries,
		retryWait: defaultRetryWait,
		listeners: make(map[int]provider.SessionListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("api returned HTTP %d: %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	token       *oauth2.Token
}

func jsonRequest(method, path string, body any) (request, error) {
	req := request{method: method, path: path}
	if body == nil {
		return req, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return req, fmt.Errorf("failed to encode request: %w", err)
	}
	req.body = data
	req.contentType = "application/json"
	return req, nil
}

// send performs req, retrying network failures and 5xx answers with
// exponential backoff, and decodes the envelope's data into out.
func (c *Client) send(ctx context.Context, req request, out any) error {
	operation := func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, req, out)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryWait
	b.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("request failed, will retry", "method", req.method, "path", req.path, "error", err, "next_retry", next)
		}),
	)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
		return mapAPIError(apiErr)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", provider.ErrUnavailable, err)
	}
}

func (c *Client) attempt(ctx context.Context, req request, out any) error {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set(apiKeyHeader, c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	if req.token != nil {
		req.token.SetAuthHeader(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response data: %w", err))
	}
	return nil
}

// mapAPIError translates a 4xx answer into the provider's error vocabulary.
func mapAPIError(e *APIError) error {
	var kind error
	switch e.Code {
	case "INVALID_CREDENTIALS":
		kind = provider.ErrInvalidCredentials
	case "EMAIL_NOT_CONFIRMED":
		kind = provider.ErrEmailNotConfirmed
	case "EMAIL_TAKEN":
		kind = provider.ErrEmailTaken
	case "USERNAME_TAKEN":
		kind = provider.ErrUsernameTaken
	case "OBJECT_EXISTS":
		kind = provider.ErrObjectExists
	case "NOT_FOUND", "BUCKET_NOT_FOUND":
		kind = provider.ErrNotFound
	default:
		switch e.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = provider.ErrUnauthorized
		case http.StatusNotFound:
			kind = provider.ErrNotFound
		default:
			kind = provider.ErrRejected
		}
	}
	return fmt.Errorf("%w: %w", kind, e)
}

var _ provider.Provider = (*Client)(nil)

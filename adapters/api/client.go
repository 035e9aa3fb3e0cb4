// Package api is the HTTP client of the Moduls backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/layer-3/moduls/core"
	"github.com/layer-3/moduls/internal/metrics"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	applicationJSON = "application/json"
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

// TokenSource supplies the bearer credential for authenticated requests
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// UnauthorizedHandler is told which token the API answered 401 for
type UnauthorizedHandler func(ctx context.Context, token string)

// Options tune the transport
type Options struct {
	RetryMax          int           // Retries after the first attempt for network and 5xx failures
	RetryWaitMin      time.Duration // Minimum backoff between retries
	RetryWaitMax      time.Duration // Maximum backoff between retries
	RequestsPerSecond float64       // Zero disables pacing
	HTTPClient        *http.Client  // Optional underlying client
	Logger            *logrus.Entry
	Metrics           *metrics.Metrics
}

// Client talks to the Moduls API
type Client struct {
	baseURL        string
	http           *retryablehttp.Client
	limiter        *rate.Limiter
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	metrics        *metrics.Metrics
	log            *logrus.Entry
}

// NewClient creates a client for the API at baseURL
func NewClient(baseURL string, opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		httpClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		httpClient.RetryWaitMax = opts.RetryWaitMax
	}
	if opts.HTTPClient != nil {
		httpClient.HTTPClient = opts.HTTPClient
	}
	httpClient.Logger = nil
	// Exhausted 5xx retries hand back the last response so its envelope is read
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		metrics: opts.Metrics,
		log:     log.WithField("component", "api"),
	}
}

// SetAuth wires the credential provider and the 401 callback used by
// authenticated resource calls
func (c *Client) SetAuth(tokens TokenSource, onUnauthorized UnauthorizedHandler) {
	c.tokens = tokens
	c.onUnauthorized = onUnauthorized
}

// doAuth performs a request with the current credential. A 401 is reported
// to the unauthorized handler; if that produced a new credential the request
// is sent once more with it.
func (c *Client) doAuth(ctx context.Context, method, path string, body, out any) error {
	if c.tokens == nil {
		return core.ErrNoCredential
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, token, body, out)
	if !errors.Is(err, core.ErrUnauthorized) || c.onUnauthorized == nil {
		return err
	}

	c.onUnauthorized(ctx, token)

	fresh, tokenErr := c.tokens.Token(ctx)
	if tokenErr != nil || fresh == token {
		return err
	}

	return c.do(ctx, method, path, fresh, body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", applicationJSON)
	req.Header.Set(requestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", applicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	endpoint := endpointLabel(path)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.APIRequest(endpoint, 0)
		c.log.WithError(err).WithField("endpoint", endpoint).Warn("request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.metrics.APIRequest(endpoint, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &core.APIError{Status: resp.StatusCode, Message: errorMessage(data, resp.StatusCode)}
		c.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
		}).Debug(apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Backends wrap errors in several shapes; the first string found wins.
var errorPaths = []string{
	"error.message",
	"error.reason",
	"error",
	"message",
	"detail",
	"errors.0.message",
	"errors.0",
	"msg",
}

func errorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, path := range errorPaths {
			result := gjson.GetBytes(body, path)
			if result.Type == gjson.String && result.Str != "" {
				return result.Str
			}
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}

	return http.StatusText(status)
}

var fixedSegments = map[string]bool{
	"auth": true, "nonce": true, "verify": true, "logout": true, "me": true,
	"agents": true, "mine": true, "search": true, "trading": true, "metrics": true,
	"tokens": true, "holders": true, "webhooks": true, "status": true,
}

// endpointLabel replaces identifiers so metric labels stay bounded
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part != "" && !fixedSegments[part] {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

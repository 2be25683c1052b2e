// Package backend is the HTTP client for the storefront backend: catalog, auth, payments,
// order placement and admin endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/resilience"
)

const maxBodyBytes = 1 << 20

var (
	// ErrUnavailable marks transport failures, 5xx answers and unreadable bodies.
	ErrUnavailable = errors.New("backend: unavailable")
	// ErrRejected marks 4xx answers.
	ErrRejected = errors.New("backend: request rejected")
)

// StatusError describes a non-2xx answer.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend %s: API error: %d", e.Endpoint, e.StatusCode)
}

// Unwrap classifies the answer for errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError {
		return ErrUnavailable
	}
	return ErrRejected
}

// MessageOf returns the backend supplied message of err, if any.
func MessageOf(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}

type tokenKey struct{}

// WithToken attaches the session bearer token used for calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	if strings.TrimSpace(token) == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Config controls how the client reaches the backend.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	RetryBase      time.Duration
	BreakerMinReqs int
	BreakerRatio   float64
	BreakerOpenFor time.Duration
}

// Client calls the storefront backend.
type Client struct {
	baseURL string
	http    resilience.HTTPClient
	logger  zerolog.Logger
}

// New constructs a client with an otelhttp transport, a breaker and retries for idempotent calls.
func New(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.BreakerMinReqs,
		FailureRatio: cfg.BreakerRatio,
		OpenFor:      cfg.BreakerOpenFor,
		Target:       "backend",
	}).WithLogger(logger)
	return NewWithHTTP(cfg.BaseURL, resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Breaker:     breaker,
		BaseBackoff: cfg.RetryBase,
		MaxAttempts: cfg.MaxAttempts,
		Jitter:      0.2,
		Timeout:     timeout,
	}, logger)
}

// NewWithHTTP constructs a client over a prepared resilient HTTP client.
func NewWithHTTP(baseURL string, hc resilience.HTTPClient, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    hc,
		logger:  logger.With().Str("component", "backend").Logger(),
	}
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, dst any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, endpoint, http.MethodGet, target, nil, dst)
}

func (c *Client) post(ctx context.Context, endpoint, path string, body, dst any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.do(ctx, endpoint, http.MethodPost, c.baseURL+path, payload, dst)
}

func (c *Client) do(ctx context.Context, endpoint, method, target string, payload []byte, dst any) (err error) {
	ctx, span := otel.Tracer("bundlehub/backend").Start(ctx, "backend."+endpoint)
	start := time.Now()
	defer func() {
		result := "success"
		switch {
		case errors.Is(err, ErrRejected):
			result = "rejected"
		case err != nil:
			result = "error"
		}
		obs.IncCounter(obs.BackendRequestsTotal, endpoint, result)
		obs.Observe(obs.BackendRequestLatency, obs.DurationMillis(time.Since(start)), endpoint)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("backend.endpoint", endpoint), attribute.String("http.method", method))

	var body io.Reader = http.NoBody
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("backend call failed")
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, endpoint, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrUnavailable, endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		c.logger.Warn().Int("status", resp.StatusCode).Str("endpoint", endpoint).Str("message", se.Message).Msg("backend answered with error")
		return se
	}
	if dst == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", ErrUnavailable, endpoint, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if s, ok := payload.Error.(string); ok {
		return s
	}
	return ""
}

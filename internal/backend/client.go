// Package backend holds the thin HTTP clients for the panel's external
// collaborators: the search backend, the process engine, the ticketing
// integration and the status catalog.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/salespanel/internal/config"
	"github.com/pitabwire/salespanel/internal/observability"
	"github.com/pitabwire/salespanel/model"
)

const maxResponseBytes = 20 << 20

// StatusError is returned when a backend answers with a non-2xx status.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s %s: unexpected status %d", e.Service, e.Operation, e.StatusCode)
}

// IsNotFound reports whether err is a 404 answer from a backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Client performs JSON calls against one backend service with circuit
// breaker protection and an optional retry policy. It is safe for
// concurrent use.
type Client struct {
	service string
	baseURL string
	cfg     config.ServiceConfig
	http    *http.Client
	breaker *Breaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewClient creates a client for the named service. metrics may be nil.
func NewClient(service string, cfg config.ServiceConfig, metrics *observability.Metrics, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		metrics: metrics,
		logger:  logger.With(zap.String("service_id", service)),
	}
	c.breaker = NewBreaker(cfg.CircuitBreaker, func(s BreakerState) {
		c.metrics.SetBackendCircuitBreakerState(service, breakerGauge(s))
		c.logger.Warn("backend: circuit breaker transition", zap.String("state", s.String()))
	})
	return c
}

// Service returns the service name the client was created with.
func (c *Client) Service() string { return c.service }

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *Breaker { return c.breaker }

// Do sends body as JSON to path and decodes a 2xx JSON answer into out.
// A nil body sends no payload; a nil out discards the answer.
func (c *Client) Do(ctx context.Context, operation, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: %s %s: encode request: %w", c.service, operation, err)
		}
	}

	ctx, span := observability.StartSpan(ctx, "backend."+c.service+"."+operation,
		observability.AttrServiceID.String(c.service),
	)
	respBody, err := c.withRetry(ctx, operation, method, path, payload)
	observability.EndSpanWithError(span, err)
	if err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("backend: %s %s: decode response: %w", c.service, operation, err)
	}
	return nil
}

// Ping performs a GET on path and reports any non-2xx answer as an error.
func (c *Client) Ping(ctx context.Context, path string) error {
	_, err := c.once(ctx, "health", http.MethodGet, path, nil)
	return err
}

func (c *Client) withRetry(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	attempts := c.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.RecordBackendRetry(c.service)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff(c.cfg.Retry, attempt)):
			}
		}

		body, err := c.once(ctx, operation, method, path, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
		c.logger.Debug("backend: retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max", attempts),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: build request: %w", c.service, operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rctx := model.RequestContextFrom(ctx); rctx != nil && rctx.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", rctx.CorrelationID)
	}
	observability.InjectTraceHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Failure()
		c.metrics.RecordBackendRequest(c.service, operation, 0, time.Since(start))
		if ctx.Err() != nil || isTimeout(err) {
			return nil, fmt.Errorf("backend: %s %s: %w", c.service, operation, model.NewBackendTimeoutError())
		}
		if isConnectionError(err) {
			return nil, fmt.Errorf("backend: %s %s: %w", c.service, operation, model.NewBackendUnavailableError())
		}
		return nil, fmt.Errorf("backend: %s %s: %w", c.service, operation, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.RecordBackendRequest(c.service, operation, resp.StatusCode, time.Since(start))
	if err != nil {
		c.breaker.Failure()
		return nil, fmt.Errorf("backend: %s %s: read response: %w", c.service, operation, err)
	}

	switch {
	case resp.StatusCode >= 500:
		c.breaker.Failure()
	case resp.StatusCode < 400:
		c.breaker.Success()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Service:    c.service,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 512),
		}
	}
	return respBody, nil
}

// retryable reports whether a failed call may be repeated. Open breakers
// and 4xx answers are final.
func retryable(err error) bool {
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func backoff(cfg config.RetryConfig, attempt int) time.Duration {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 100 * time.Millisecond
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}

	delay := cfg.BackoffInitial
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay >= cfg.BackoffMax {
			return cfg.BackoffMax
		}
	}
	return delay
}

func breakerGauge(s BreakerState) float64 {
	switch s {
	case BreakerHalfOpen:
		return 1
	case BreakerOpen:
		return 2
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

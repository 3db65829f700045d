// Package transport issues JSON requests against the marketplace backend.
//
// One Send is one HTTP round trip: no retries and no caching. Every request is
// bounded by the client timeout, stamped with a request id and trace headers,
// and optionally rate limited.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hpcmarket/internal/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a single request. It matches one poll interval so a
// stuck call never outlives the tick that issued it by much.
const DefaultTimeout = 5 * time.Second

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Sender is the contract the typed client depends on.
type Sender interface {
	Send(ctx context.Context, method, path string, body, out any) error
}

// Client sends JSON requests to a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit limits outgoing requests to r per second with the given burst.
// r <= 0 leaves the client unlimited.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger.Discard(),
		tracer:  otel.Tracer("hpcmarket/transport"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.duration, _ = otel.Meter("hpcmarket/transport").Float64Histogram(
		"backend_request_duration_seconds",
		metric.WithDescription("Duration of backend requests"),
		metric.WithUnit("s"),
	)
	return c
}

// Send issues method against path. A non-nil body is JSON encoded; a non-nil
// out receives the decoded JSON response. Failures are *TransportError or
// *RejectionError.
func (c *Client) Send(ctx context.Context, method, path string, body, out any) error {
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)
	log := logger.FromContext(ctx, c.logger)

	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	err := c.send(ctx, requestID, method, path, body, out, log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) send(ctx context.Context, requestID, method, path string, body, out any, log *slog.Logger) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.record(ctx, method, "error", elapsed)
		log.Debug("backend request failed", "method", method, "path", path, "error", err)
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(ctx, method, "error", elapsed)
		return &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	log.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", elapsed,
	)

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		c.record(ctx, method, "rejected", elapsed)
		return &RejectionError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(respBody),
		}
	case resp.StatusCode >= 500 || resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.record(ctx, method, "error", elapsed)
		return &TransportError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(respBody)),
		}
	}

	c.record(ctx, method, "ok", elapsed)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return nil
}

func (c *Client) record(ctx context.Context, method, outcome string, elapsed time.Duration) {
	if c.duration == nil {
		return
	}
	c.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

// rejectionMessage extracts a human message from a 4xx body: a JSON error
// field when present, otherwise the trimmed text.
func rejectionMessage(body []byte) string {
	var parsed struct {
		Error       string `json:"error"`
		Message     string `json:"message"`
		Description string `json:"description"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		for _, s := range []string{parsed.Error, parsed.Message, parsed.Description} {
			if s != "" {
				return s
			}
		}
	}
	return snippet(body)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(stripTags(string(body)))
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "..."
	}
	return s
}

// stripTags drops markup from HTML error pages so only the text remains.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

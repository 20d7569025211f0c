// Package orchestrator is the HTTP client for the backend that executes
// authorized intents and mints receipts.
package orchestrator

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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 4 << 10

// ErrMissingReceipt is returned when a 2xx response carries no receipt id.
var ErrMissingReceipt = errors.New("orchestrator response has no receipt id")

// APIError is returned when the orchestrator responds with a non-2xx status.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("orchestrator %d", e.Status)
	}
	return fmt.Sprintf("orchestrator %d: %s", e.Status, e.Body)
}

// Temporary reports whether retrying the same intent could succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Submission is one authorized intent.
type Submission struct {
	TaskType      string         `json:"task_type"`
	Params        map[string]any `json:"params"`
	ActorID       string         `json:"actor_id,omitempty"`
	RiskTier      string         `json:"risk_tier"`
	CorrelationID string         `json:"correlation_id"`
	SuiteID       string         `json:"-"`
	OfficeID      string         `json:"-"`
}

// Receipt is the orchestrator's acknowledgement of an executed intent.
type Receipt struct {
	ReceiptID string         `json:"receipt_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Client posts intents to the orchestrator.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// New creates a client for the orchestrator at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tracer:     otel.Tracer("github.com/swayz032/aspire-runway/pkg/orchestrator"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Execute calls POST /v1/intents once. It never retries: a second call
// would be a second execution.
func (c *Client) Execute(ctx context.Context, sub Submission) (Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "orchestrator.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("runway.task_type", sub.TaskType),
			attribute.String("runway.risk_tier", sub.RiskTier),
			attribute.String("runway.correlation_id", sub.CorrelationID),
		),
	)
	defer span.End()

	rec, err := c.execute(ctx, sub)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "intent failed")
		return Receipt{}, err
	}
	span.SetAttributes(attribute.String("runway.receipt_id", rec.ReceiptID))
	return rec, nil
}

func (c *Client) execute(ctx context.Context, sub Submission) (Receipt, error) {
	if sub.Params == nil {
		sub.Params = map[string]any{}
	}
	body, err := json.Marshal(sub)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/intents", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if sub.SuiteID != "" {
		req.Header.Set("X-Suite-Id", sub.SuiteID)
	}
	if sub.OfficeID != "" {
		req.Header.Set("X-Office-Id", sub.OfficeID)
	}
	if sub.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", sub.CorrelationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("post intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Receipt{}, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var rec Receipt
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	if rec.ReceiptID == "" {
		return Receipt{}, ErrMissingReceipt
	}
	return rec, nil
}

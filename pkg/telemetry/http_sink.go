package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/swayz032/aspire-runway/pkg/failures"
)

const defaultQueueSize = 256

// HTTPSink posts records to a collector endpoint from a background worker.
// Emit never blocks: when the queue is full the record is dropped and logged.
type HTTPSink struct {
	endpoint   string
	client     *http.Client
	newBackOff func() backoff.BackOff
	logger     *slog.Logger

	queue     chan Record
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient sets the client used for delivery.
func WithHTTPClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) { s.client = c }
}

// WithBackOff sets the retry policy factory; one policy is created per record.
func WithBackOff(f func() backoff.BackOff) HTTPSinkOption {
	return func(s *HTTPSink) { s.newBackOff = f }
}

// WithQueueSize sets the in-memory queue capacity.
func WithQueueSize(n int) HTTPSinkOption {
	return func(s *HTTPSink) {
		if n > 0 {
			s.queue = make(chan Record, n)
		}
	}
}

// WithSinkLogger sets the logger for delivery failures.
func WithSinkLogger(l *slog.Logger) HTTPSinkOption {
	return func(s *HTTPSink) { s.logger = l }
}

// NewHTTPSink starts a delivery worker posting to endpoint.
func NewHTTPSink(endpoint string, opts ...HTTPSinkOption) *HTTPSink {
	s := &HTTPSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 200 * time.Millisecond
			bo.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(bo, 4)
		},
		logger: slog.Default().With("component", "telemetry"),
		queue:  make(chan Record, defaultQueueSize),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.run()
	return s
}

// Emit enqueues rec for delivery.
func (s *HTTPSink) Emit(ctx context.Context, rec Record) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.WarnContext(ctx, "telemetry queue full, dropping record",
			"event", rec.Name,
			"failure_code", failures.TelemetryDropped,
		)
	}
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *HTTPSink) run() {
	defer close(s.done)
	for rec := range s.queue {
		if err := s.deliver(rec); err != nil {
			s.logger.Warn("telemetry delivery failed, dropping record",
				"event", rec.Name,
				"failure_code", failures.TelemetryDropped,
				"error", err,
			)
		}
	}
}

func (s *HTTPSink) deliver(rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry record: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("collector returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("collector rejected record: %d", resp.StatusCode))
		}
		return nil
	}, backoff.WithContext(s.newBackOff(), ctx))
}

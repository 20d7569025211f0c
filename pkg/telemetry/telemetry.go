// Package telemetry carries fire-and-forget pipeline records to one or more
// sinks. Emission never fails from the caller's point of view: sink errors
// and panics are contained, and data is scrubbed of personally identifying
// fields before any sink sees it.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Record is one telemetry event.
type Record struct {
	Name      string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Cohort    string         `json:"cohort,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink delivers records. Implementations must not block the caller for long.
type Sink interface {
	Emit(ctx context.Context, rec Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record)

func (f SinkFunc) Emit(ctx context.Context, rec Record) { f(ctx, rec) }

// Nop discards every record.
type Nop struct{}

func (Nop) Emit(context.Context, Record) {}

// Emitter stamps records with a session and cohort, scrubs them and fans
// them out to sinks.
type Emitter struct {
	sessionID string
	cohort    string
	sinks     []Sink
	clock     func() time.Time
	logger    *slog.Logger
}

// NewEmitter creates an emitter with a fresh session id.
func NewEmitter(cohort string, sinks ...Sink) *Emitter {
	return &Emitter{
		sessionID: uuid.NewString(),
		cohort:    cohort,
		sinks:     sinks,
		clock:     time.Now,
		logger:    slog.Default().With("component", "telemetry"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Emitter) WithClock(clock func() time.Time) *Emitter {
	e.clock = clock
	return e
}

// WithLogger sets the logger used to report sink failures.
func (e *Emitter) WithLogger(l *slog.Logger) *Emitter {
	e.logger = l
	return e
}

// SessionID returns the session stamped on every record.
func (e *Emitter) SessionID() string { return e.sessionID }

// Emit scrubs data and delivers the record to every sink.
func (e *Emitter) Emit(ctx context.Context, name string, data map[string]any) {
	if e == nil {
		return
	}
	rec := Record{
		Name:      name,
		Timestamp: e.clock().UTC(),
		SessionID: e.sessionID,
		Cohort:    e.cohort,
		Data:      Scrub(data),
	}
	for _, s := range e.sinks {
		e.deliver(ctx, s, rec)
	}
}

func (e *Emitter) deliver(ctx context.Context, s Sink, rec Record) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.WarnContext(ctx, "telemetry sink panicked", "event", rec.Name, "panic", fmt.Sprint(p))
		}
	}()
	s.Emit(ctx, rec)
}

// Package store is the append-only ledger of resolved action results.
//
// Each row carries a content hash over the RFC 8785 canonical JSON of the
// result, and the action id is the primary key, so the ledger refuses a
// second resolution for the same action.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/swayz032/aspire-runway/pkg/actionbus"
)

var (
	// ErrNotFound is returned when no result is recorded for an action id.
	ErrNotFound = errors.New("result not found")
	// ErrDuplicate is returned when an action id already has a recorded result.
	ErrDuplicate = errors.New("result already recorded for action")
)

// Entry is one ledger row.
type Entry struct {
	Result      actionbus.Result `json:"result"`
	ContentHash string           `json:"content_hash"`
}

// Verify reports whether the stored hash still matches the result.
func (e *Entry) Verify() bool {
	h, err := ContentHash(e.Result)
	return err == nil && h == e.ContentHash
}

// ResultStore persists resolved results. It satisfies actionbus.Recorder.
type ResultStore interface {
	Record(ctx context.Context, r actionbus.Result) error
	Get(ctx context.Context, actionID string) (*Entry, error)
	List(ctx context.Context, q Query) ([]*Entry, error)
}

// Query selects ledger entries. Empty tenant fields match every tenant.
type Query struct {
	SuiteID  string
	OfficeID string
	Limit    int
}

// timeLayout is fixed width so that text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// normalize reduces r to what every backend can round-trip: UTC with
// microsecond precision.
func normalize(r actionbus.Result) actionbus.Result {
	r.ResolvedAt = r.ResolvedAt.UTC().Truncate(time.Microsecond)
	return r
}

// ContentHash returns the hex SHA-256 of the canonical JSON form of r.
func ContentHash(r actionbus.Result) (string, error) {
	raw, err := json.Marshal(normalize(r))
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize result: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func encodeData(data map[string]any) (*string, error) {
	if data == nil {
		return nil, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal result data: %w", err)
	}
	s := string(b)
	return &s, nil
}

func decodeData(raw *string) (map[string]any, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(*raw), &data); err != nil {
		return nil, fmt.Errorf("decode result data: %w", err)
	}
	return data, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

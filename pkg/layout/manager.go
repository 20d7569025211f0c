package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/swayz032/aspire-runway/pkg/failures"
	"github.com/swayz032/aspire-runway/pkg/telemetry"
)

// ErrNotFound is returned by a Store when no document exists for a key.
var ErrNotFound = errors.New("layout not found")

// Store holds raw layout documents.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, doc []byte) error
}

// Manager loads and saves validated layouts.
type Manager struct {
	store   Store
	emitter *telemetry.Emitter
	logger  *slog.Logger
}

// NewManager creates a manager over store. emitter may be nil.
func NewManager(store Store, emitter *telemetry.Emitter) *Manager {
	return &Manager{
		store:   store,
		emitter: emitter,
		logger:  slog.Default().With("component", "layout"),
	}
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	m.logger = l
	return m
}

// Load returns the stored layout, or defaults when nothing valid is stored.
// Only a store failure is returned as an error, and defaults are returned
// alongside it.
func (m *Manager) Load(ctx context.Context, suiteID, officeID string) (State, error) {
	raw, err := m.store.Get(ctx, Key(suiteID, officeID))
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("load layout: %w", err)
	}

	s, err := Decode(raw)
	if err != nil {
		m.logger.WarnContext(ctx, "discarding stored layout",
			"failure_code", failures.LayoutDiscarded,
			"error", err,
		)
		m.emitter.Emit(ctx, "layout_discarded", map[string]any{
			"failure_code": failures.LayoutDiscarded,
		})
		return Defaults(), nil
	}
	return s, nil
}

// Save validates s and writes it at the current version.
func (m *Manager) Save(ctx context.Context, suiteID, officeID string, s State) error {
	if s.Version == "" {
		s.Version = CurrentVersion
	}
	if s.Panels == nil {
		s.Panels = []Panel{}
	}
	if err := s.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := m.store.Put(ctx, Key(suiteID, officeID), raw); err != nil {
		return fmt.Errorf("save layout: %w", err)
	}
	return nil
}

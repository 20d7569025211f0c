package layout

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swayz032/aspire-runway/pkg/telemetry"
)

func sampleState() State {
	return State{
		Version:     CurrentVersion,
		Zoom:        1.25,
		ActivePanel: "chat",
		Panels: []Panel{
			{ID: "chat", Kind: "chat", X: 10, Y: 20, Width: 320, Height: 480, Z: 2},
			{ID: "ledger", Kind: "finance", X: -40, Y: 0, Width: 0, Height: 0, Z: 1, Minimized: true},
		},
	}
}

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingSink) Emit(_ context.Context, rec telemetry.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, rec.Name)
}

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, "suite-a", "office-1", sampleState()))
	got, err := m.Load(ctx, "suite-a", "office-1")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	other, err := m.Load(ctx, "suite-a", "office-2")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), other, "layouts are scoped per office")
}

func TestManager_SaveRejectsInvalid(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	ctx := context.Background()

	tests := map[string]func(*State){
		"nan x":           func(s *State) { s.Panels[0].X = math.NaN() },
		"inf height":      func(s *State) { s.Panels[0].Height = math.Inf(1) },
		"negative width":  func(s *State) { s.Panels[1].Width = -1 },
		"zero zoom":       func(s *State) { s.Zoom = 0 },
		"duplicate id":    func(s *State) { s.Panels[1].ID = "chat" },
		"empty id":        func(s *State) { s.Panels[0].ID = "" },
		"dangling active": func(s *State) { s.ActivePanel = "calendar" },
		"old version":     func(s *State) { s.Version = "0.9.0" },
		"garbage version": func(s *State) { s.Version = "latest" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := sampleState()
			mutate(&s)
			err := m.Save(ctx, "s", "o", s)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestManager_SaveFillsVersion(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil)
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, "s", "o", State{Zoom: 1}))
	raw, err := store.Get(ctx, Key("s", "o"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0.0","zoom":1,"panels":[]}`, string(raw))
}

func TestManager_LoadDiscardsInvalidDocuments(t *testing.T) {
	docs := map[string]string{
		"not json":            `{"version":`,
		"version mismatch":    `{"version":"2.0.0","zoom":1,"panels":[]}`,
		"version not string":  `{"version":1,"zoom":1,"panels":[]}`,
		"missing version":     `{"zoom":1,"panels":[]}`,
		"zoom as string":      `{"version":"1.0.0","zoom":"1","panels":[]}`,
		"panels not array":    `{"version":"1.0.0","zoom":1,"panels":{}}`,
		"panel not object":    `{"version":"1.0.0","zoom":1,"panels":[42]}`,
		"x as string":         `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":"10","y":0,"width":1,"height":1,"z":0}]}`,
		"missing height":      `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":0,"y":0,"width":1,"z":0}]}`,
		"fractional z":        `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":0,"y":0,"width":1,"height":1,"z":0.5}]}`,
		"negative width":      `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":0,"y":0,"width":-3,"height":1,"z":0}]}`,
		"overflowing number":  `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":1e400,"y":0,"width":1,"height":1,"z":0}]}`,
		"minimized as string": `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":0,"y":0,"width":1,"height":1,"z":0,"minimized":"yes"}]}`,
		"duplicate panel ids": `{"version":"1.0.0","zoom":1,"panels":[{"id":"a","kind":"k","x":0,"y":0,"width":1,"height":1,"z":0},{"id":"a","kind":"k","x":0,"y":0,"width":1,"height":1,"z":1}]}`,
		"null document":       `null`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore()
			sink := &recordingSink{}
			m := NewManager(store, telemetry.NewEmitter("test", sink))
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, Key("s", "o"), []byte(doc)))

			got, err := m.Load(ctx, "s", "o")
			require.NoError(t, err, "discarding is silent")
			assert.Equal(t, Defaults(), got)
			assert.Equal(t, []string{"layout_discarded"}, sink.names)
		})
	}
}

func TestManager_LoadAcceptsValidRawDocument(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil)
	ctx := context.Background()
	doc := `{"version":"1.0.0","zoom":0.5,"panels":[{"id":"a","kind":"chat","x":1.5,"y":-2,"width":10,"height":20,"z":3}]}`
	require.NoError(t, store.Put(ctx, Key("s", "o"), []byte(doc)))

	got, err := m.Load(ctx, "s", "o")
	require.NoError(t, err)
	require.Len(t, got.Panels, 1)
	assert.Equal(t, Panel{ID: "a", Kind: "chat", X: 1.5, Y: -2, Width: 10, Height: 20, Z: 3}, got.Panels[0])
	assert.Equal(t, 0.5, got.Zoom)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("io timeout") }
func (failingStore) Put(context.Context, string, []byte) error { return errors.New("io timeout") }

func TestManager_StoreFailure(t *testing.T) {
	m := NewManager(failingStore{}, nil)
	ctx := context.Background()

	got, err := m.Load(ctx, "s", "o")
	assert.Error(t, err)
	assert.Equal(t, Defaults(), got)
	assert.Error(t, m.Save(ctx, "s", "o", sampleState()))
}

func TestSQLiteStore(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put(ctx, "k", []byte(`{"a":1}`)))
	require.NoError(t, store.Put(ctx, "k", []byte(`{"a":2}`)))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	m := NewManager(store, nil)
	require.NoError(t, m.Save(ctx, "s", "o", sampleState()))
	loaded, err := m.Load(ctx, "s", "o")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), loaded)
}

// TestRedisStore_Integration requires a running Redis and is skipped otherwise.
func TestRedisStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	store := NewRedisStore(client, "runway:test:layout:", 0)
	key := "suite-test:office-test"
	t.Cleanup(func() { client.Del(context.Background(), "runway:test:layout:"+key) })

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	m := NewManager(store, nil)
	require.NoError(t, m.Save(ctx, "suite-test", "office-test", sampleState()))
	got, err := m.Load(ctx, "suite-test", "office-test")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)
}

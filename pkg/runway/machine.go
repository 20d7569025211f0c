package runway

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Record describes one successful transition.
type Record struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}

// Observer receives transition records. Observers are notified after the
// transition has been decided and cannot influence it.
type Observer interface {
	OnTransition(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

func (f ObserverFunc) OnTransition(r Record) { f(r) }

// Machine wraps Transition with observation.
type Machine struct {
	observers []Observer
	clock     func() time.Time
	logger    *slog.Logger
}

// NewMachine creates a machine that notifies observers on every legal transition.
func NewMachine(observers ...Observer) *Machine {
	return &Machine{
		observers: observers,
		clock:     time.Now,
		logger:    slog.Default().With("component", "runway"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// WithLogger sets the logger used for observer failures.
func (m *Machine) WithLogger(l *slog.Logger) *Machine {
	m.logger = l
	return m
}

// Fire applies event to state and emits one record when legal.
func (m *Machine) Fire(state State, event Event) (State, bool) {
	next, ok := Transition(state, event)
	if !ok {
		return "", false
	}
	m.emit(Record{From: state, To: next, Event: event, At: m.clock()})
	return next, true
}

func (m *Machine) emit(rec Record) {
	for _, o := range m.observers {
		m.notify(o, rec)
	}
}

func (m *Machine) notify(o Observer, rec Record) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Warn("runway observer panicked", "from", rec.From, "to", rec.To, "event", rec.Event, "panic", fmt.Sprint(p))
		}
	}()
	o.OnTransition(rec)
}

// Runway tracks the pipeline position of one in-flight intent.
type Runway struct {
	mu      sync.Mutex
	id      string
	machine *Machine
	state   State
	history []Record
}

// New starts a runway in Idle.
func New(id string, m *Machine) *Runway {
	if m == nil {
		m = NewMachine()
	}
	return &Runway{id: id, machine: m, state: StateIdle}
}

// ID returns the intent identifier this runway tracks.
func (r *Runway) ID() string { return r.id }

// State returns the current position.
func (r *Runway) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Fire applies event. An illegal event leaves the runway unchanged and reports false.
func (r *Runway) Fire(event Event) (State, bool) {
	r.mu.Lock()
	from := r.state
	next, ok := Transition(from, event)
	if !ok {
		r.mu.Unlock()
		return from, false
	}
	rec := Record{From: from, To: next, Event: event, At: r.machine.clock()}
	r.state = next
	r.history = append(r.history, rec)
	r.mu.Unlock()

	// Observers run outside the lock so they may read the runway.
	r.machine.emit(rec)
	return next, true
}

// FireAll applies events in order, stopping at the first illegal one.
func (r *Runway) FireAll(events ...Event) (State, bool) {
	state := r.State()
	for _, e := range events {
		var ok bool
		if state, ok = r.Fire(e); !ok {
			return state, false
		}
	}
	return state, true
}

// Reset returns a terminal runway to Idle.
func (r *Runway) Reset() bool {
	_, ok := r.Fire(EventReset)
	return ok
}

// Terminal reports whether the runway has reached a terminal state.
func (r *Runway) Terminal() bool {
	return IsTerminal(r.State())
}

// History returns a copy of the transitions applied so far.
func (r *Runway) History() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.history...)
}

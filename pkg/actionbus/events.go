package actionbus

import (
	"fmt"
	"slices"
	"time"
)

// EventKind names a lifecycle notification.
type EventKind string

const (
	EventSubmitted             EventKind = "submitted"
	EventConfirmationRequested EventKind = "confirmation_requested"
	EventAuthorityRequested    EventKind = "authority_requested"
	EventExecuting             EventKind = "executing"
	EventSucceeded             EventKind = "succeeded"
	EventFailed                EventKind = "failed"
	EventDenied                EventKind = "denied"
)

// Event is delivered to listeners. Action is a copy; Result is set only on
// terminal events.
type Event struct {
	Kind   EventKind `json:"kind"`
	Action Action    `json:"action"`
	Result *Result   `json:"result,omitempty"`
	At     time.Time `json:"at"`
}

// Listener receives bus events synchronously on the goroutine driving the action.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Subscribe registers l and returns a function that removes it.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.listenersMu.Lock()
	id := b.nextListener
	b.nextListener++
	b.listeners[id] = l
	b.listenersMu.Unlock()

	return func() {
		b.listenersMu.Lock()
		delete(b.listeners, id)
		b.listenersMu.Unlock()
	}
}

func (b *Bus) publish(kind EventKind, a Action, res *Result) {
	b.listenersMu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	snapshot := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		snapshot = append(snapshot, b.listeners[id])
	}
	b.listenersMu.RUnlock()

	at := b.clock().UTC()
	for _, l := range snapshot {
		ev := Event{Kind: kind, Action: a.clone(), At: at}
		if res != nil {
			r := res.clone()
			ev.Result = &r
		}
		b.notify(l, ev)
	}
}

func (b *Bus) notify(l Listener, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Warn("action listener panicked", "event", ev.Kind, "action_id", ev.Action.ID, "panic", fmt.Sprint(p))
		}
	}()
	l.OnEvent(ev)
}

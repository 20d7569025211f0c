package actionbus

import (
	"context"
	"sync"
)

// Ticket is the caller's handle on a submitted action. It resolves exactly once.
type Ticket struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result Result
}

func newTicket(id string) *Ticket {
	return &Ticket{id: id, done: make(chan struct{})}
}

// ID returns the action id.
func (t *Ticket) ID() string { return t.id }

// Done is closed when the result is available.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Result returns the result if the action has resolved.
func (t *Ticket) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result.clone(), true
	default:
		return Result{}, false
	}
}

// Wait blocks until the action resolves or ctx ends. Giving up on the wait
// does not cancel the action.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result.clone(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Ticket) resolve(r Result) bool {
	resolved := false
	t.once.Do(func() {
		t.result = r
		close(t.done)
		resolved = true
	})
	return resolved
}

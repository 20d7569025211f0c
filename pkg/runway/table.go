// Package runway implements the governance pipeline state machine:
//
//	Intent -> Preflight -> Draft -> Authority -> Execute -> Receipt
//
// Transition is a pure function over a fixed table. There is no path to
// Executing that skips DraftReady and AuthorityApproved, and terminal states
// accept only Reset.
package runway

// State is a runway position.
type State string

const (
	StateIdle                State = "idle"
	StatePreflight           State = "preflight"
	StateDraftCreating       State = "draft_creating"
	StateDraftReady          State = "draft_ready"
	StateAuthoritySubmitting State = "authority_submitting"
	StateAuthorityPending    State = "authority_pending"
	StateAuthorityApproved   State = "authority_approved"
	StateExecuting           State = "executing"
	StateReceiptReady        State = "receipt_ready"
	StateError               State = "error"
	StateCancelled           State = "cancelled"
	StateTimeout             State = "timeout"
)

// Event drives a transition.
type Event string

const (
	EventStartIntent       Event = "start_intent"
	EventPreflightOK       Event = "preflight_ok"
	EventDraftComplete     Event = "draft_complete"
	EventSubmitAuthority   Event = "submit_authority"
	EventAuthorityReceived Event = "authority_received"
	EventApprove           Event = "approve"
	EventDeny              Event = "deny"
	EventExecute           Event = "execute"
	EventExecutionComplete Event = "execution_complete"
	EventFail              Event = "error"
	EventCancel            Event = "cancel"
	EventTimeout           Event = "timeout"
	EventReset             Event = "reset"
)

var allStates = []State{
	StateIdle,
	StatePreflight,
	StateDraftCreating,
	StateDraftReady,
	StateAuthoritySubmitting,
	StateAuthorityPending,
	StateAuthorityApproved,
	StateExecuting,
	StateReceiptReady,
	StateError,
	StateCancelled,
	StateTimeout,
}

// allEvents is also the canonical order used by ValidEvents.
var allEvents = []Event{
	EventStartIntent,
	EventPreflightOK,
	EventDraftComplete,
	EventSubmitAuthority,
	EventAuthorityReceived,
	EventApprove,
	EventDeny,
	EventExecute,
	EventExecutionComplete,
	EventFail,
	EventCancel,
	EventTimeout,
	EventReset,
}

var terminal = map[State]bool{
	StateReceiptReady: true,
	StateError:        true,
	StateCancelled:    true,
	StateTimeout:      true,
}

var forward = map[State]map[Event]State{
	StateIdle:                {EventStartIntent: StatePreflight},
	StatePreflight:           {EventPreflightOK: StateDraftCreating},
	StateDraftCreating:       {EventDraftComplete: StateDraftReady},
	StateDraftReady:          {EventSubmitAuthority: StateAuthoritySubmitting},
	StateAuthoritySubmitting: {EventAuthorityReceived: StateAuthorityPending},
	StateAuthorityPending:    {EventApprove: StateAuthorityApproved, EventDeny: StateCancelled},
	StateAuthorityApproved:   {EventExecute: StateExecuting},
	StateExecuting:           {EventExecutionComplete: StateReceiptReady},
}

var aborts = map[Event]State{
	EventFail:    StateError,
	EventCancel:  StateCancelled,
	EventTimeout: StateTimeout,
}

// table is the complete transition relation, built once from forward,
// aborts and the terminal reset rule.
var table = buildTable()

func buildTable() map[State]map[Event]State {
	t := make(map[State]map[Event]State, len(allStates))
	for _, s := range allStates {
		row := make(map[Event]State)
		for e, next := range forward[s] {
			row[e] = next
		}
		switch {
		case terminal[s]:
			row[EventReset] = StateIdle
		case s != StateIdle:
			for e, next := range aborts {
				row[e] = next
			}
		}
		t[s] = row
	}
	return t
}

// Transition returns the next state, or false when (state, event) is illegal.
func Transition(state State, event Event) (State, bool) {
	row, ok := table[state]
	if !ok {
		return "", false
	}
	next, ok := row[event]
	if !ok {
		return "", false
	}
	return next, true
}

// IsTerminal reports whether state only accepts Reset.
func IsTerminal(state State) bool {
	return terminal[state]
}

// ValidEvents lists the events accepted in state, in canonical order.
func ValidEvents(state State) []Event {
	out := []Event{}
	row := table[state]
	for _, e := range allEvents {
		if _, ok := row[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

// States returns every state.
func States() []State {
	return append([]State(nil), allStates...)
}

// Events returns every event in canonical order.
func Events() []Event {
	return append([]Event(nil), allEvents...)
}

// ParseState returns the state named s.
func ParseState(s string) (State, bool) {
	st := State(s)
	if _, ok := table[st]; !ok {
		return "", false
	}
	return st, true
}

// ParseEvent returns the event named s.
func ParseEvent(s string) (Event, bool) {
	for _, e := range allEvents {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

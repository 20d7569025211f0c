package actionbus

import (
	"time"

	"github.com/swayz032/aspire-runway/pkg/capabilities"
	"github.com/swayz032/aspire-runway/pkg/runway"
)

// Status is the terminal outcome of an action.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDenied    Status = "denied"
)

// Action is a request to perform one capability verb. Once submitted the bus
// owns its copy; callers keep only the id and the Ticket.
type Action struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Surface    string            `json:"surface,omitempty"`
	Capability string            `json:"capability,omitempty"`
	Verb       string            `json:"verb,omitempty"`
	Tier       capabilities.Tier `json:"tier"`
	Payload    map[string]any    `json:"payload,omitempty"`
	SuiteID    string            `json:"suite_id,omitempty"`
	OfficeID   string            `json:"office_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TaskType is the backend task name: the declared type, or capability.verb.
func (a Action) TaskType() string {
	if a.Type != "" {
		return a.Type
	}
	if a.Capability != "" && a.Verb != "" {
		return a.Capability + "." + a.Verb
	}
	return ""
}

func (a Action) clone() Action {
	a.Payload = cloneMap(a.Payload)
	return a
}

// Result is the single resolution record of an action.
type Result struct {
	ActionID    string            `json:"action_id"`
	Type        string            `json:"type,omitempty"`
	Tier        capabilities.Tier `json:"tier,omitempty"`
	SuiteID     string            `json:"suite_id,omitempty"`
	OfficeID    string            `json:"office_id,omitempty"`
	Status      Status            `json:"status"`
	ReceiptID   string            `json:"receipt_id,omitempty"`
	Error       string            `json:"error,omitempty"`
	FailureCode string            `json:"failure_code,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	Stage       runway.State      `json:"stage"`
	ResolvedAt  time.Time         `json:"resolved_at"`
}

func (r Result) clone() Result {
	r.Data = cloneMap(r.Data)
	return r
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

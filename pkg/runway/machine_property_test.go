//go:build property
// +build property

package runway_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/swayz032/aspire-runway/pkg/runway"
)

// TestRandomWalksNeverSkipAuthority drives runways with random event sequences.
// Property: any walk that reaches Executing visited DraftReady and
// AuthorityApproved first, and Transition is deterministic.
func TestRandomWalksNeverSkipAuthority(t *testing.T) {
	events := runway.Events()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 1000
	properties := gopter.NewProperties(parameters)

	properties.Property("executing implies draft and authority", prop.ForAll(
		func(steps []int) bool {
			r := runway.New("walk", nil)
			sawDraft, sawApproved := false, false
			for _, step := range steps {
				e := events[step%len(events)]
				state, ok := r.Fire(e)
				if !ok {
					continue
				}
				switch state {
				case runway.StateIdle:
					sawDraft, sawApproved = false, false
				case runway.StateDraftReady:
					sawDraft = true
				case runway.StateAuthorityApproved:
					sawApproved = true
				case runway.StateExecuting, runway.StateReceiptReady:
					if !sawDraft || !sawApproved {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("transition is deterministic", prop.ForAll(
		func(si, ei int) bool {
			states := runway.States()
			s := states[si%len(states)]
			e := events[ei%len(events)]
			a, okA := runway.Transition(s, e)
			b, okB := runway.Transition(s, e)
			return a == b && okA == okB
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

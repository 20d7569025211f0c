//go:build property
// +build property

package capabilities_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/swayz032/aspire-runway/pkg/capabilities"
)

// TestUnknownIDsAreNotFound checks that random identifiers never resolve.
// Property: Lookup(id) is found iff id is a declared entry id.
func TestUnknownIDsAreNotFound(t *testing.T) {
	r := capabilities.Default()
	declared := map[string]bool{}
	for _, e := range r.Entries() {
		declared[e.ID] = true
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("lookup is exact match only", prop.ForAll(
		func(id string) bool {
			_, ok := r.Lookup(id)
			verbs := r.VerbsFor(id)
			if declared[id] {
				return ok && len(verbs) > 0
			}
			return !ok && verbs != nil && len(verbs) == 0
		},
		gen.AnyString(),
	))

	properties.Property("search never panics and empty query is empty", prop.ForAll(
		func(q string) bool {
			got := r.Search(q)
			if q == "" {
				return len(got) == 0
			}
			return got != nil
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

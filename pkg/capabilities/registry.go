// Package capabilities is the deny-by-default registry of action surfaces.
//
// Every action a UI surface may request is declared here as an Entry with an
// ordered list of Verbs. Each verb carries a risk tier and the lens fields a
// human must review before authorizing it. Lookups are exact-match only;
// anything not declared does not exist.
package capabilities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/cases"
)

type verbKey struct {
	entry string
	verb  string
}

// Registry is an immutable capability table.
type Registry struct {
	entries map[string]Entry
	order   []string
	schemas map[verbKey]*jsonschema.Schema
}

// NewRegistry builds a registry from entries, rejecting any table that
// violates the integrity invariants.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]Entry, len(entries)),
		order:   make([]string, 0, len(entries)),
		schemas: make(map[verbKey]*jsonschema.Schema),
	}

	var errs []error
	for _, e := range entries {
		if _, dup := r.entries[e.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate entry id %q", e.ID))
			continue
		}
		r.entries[e.ID] = e.clone()
		r.order = append(r.order, e.ID)
	}
	errs = append(errs, r.Validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid capability registry: %w", errors.Join(errs...))
	}

	for _, id := range r.order {
		for _, v := range r.entries[id].Verbs {
			if v.ParamsSchema == "" {
				continue
			}
			compiled, err := compileSchema(id, v.ID, v.ParamsSchema)
			if err != nil {
				return nil, err
			}
			r.schemas[verbKey{entry: id, verb: v.ID}] = compiled
		}
	}
	return r, nil
}

func compileSchema(entryID, verbID, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://runway.schemas.local/capabilities/%s/%s.schema.json", entryID, verbID)
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema load for %s/%s failed: %w", entryID, verbID, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile for %s/%s failed: %w", entryID, verbID, err)
	}
	return compiled, nil
}

// Validate runs the static integrity checks against the table contents.
func (r *Registry) Validate() []error {
	var errs []error
	for _, id := range r.order {
		e := r.entries[id]
		if e.ID == "" {
			errs = append(errs, errors.New("entry with empty id"))
		}
		if len(e.Verbs) == 0 {
			errs = append(errs, fmt.Errorf("entry %q declares no verbs", e.ID))
		}
		if !e.HasVerb(e.DefaultVerb) {
			errs = append(errs, fmt.Errorf("entry %q default verb %q is not declared", e.ID, e.DefaultVerb))
		}
		seen := make(map[string]struct{}, len(e.Verbs))
		for _, v := range e.Verbs {
			if v.ID == "" {
				errs = append(errs, fmt.Errorf("entry %q has a verb with empty id", e.ID))
			}
			if _, dup := seen[v.ID]; dup {
				errs = append(errs, fmt.Errorf("entry %q declares verb %q twice", e.ID, v.ID))
			}
			seen[v.ID] = struct{}{}
			if !v.Tier.Valid() {
				errs = append(errs, fmt.Errorf("verb %s/%s has unknown tier %q", e.ID, v.ID, v.Tier))
			}
			if v.Tier.RequiresConfirmation() && len(v.Lens) == 0 {
				errs = append(errs, fmt.Errorf("verb %s/%s is %s but declares no lens fields", e.ID, v.ID, v.Tier))
			}
			for _, f := range v.Lens {
				if f.Key == "" {
					errs = append(errs, fmt.Errorf("verb %s/%s has a lens field with empty key", e.ID, v.ID))
				}
				if _, ok := knownFieldTypes[f.Type]; !ok {
					errs = append(errs, fmt.Errorf("verb %s/%s lens field %q has unknown type %q", e.ID, v.ID, f.Key, f.Type))
				}
			}
		}
	}
	return errs
}

// Lookup returns the entry with exactly this id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// VerbsFor returns the ordered verbs of an entry, or an empty list for an unknown id.
func (r *Registry) VerbsFor(id string) []Verb {
	e, ok := r.entries[id]
	if !ok {
		return []Verb{}
	}
	return cloneVerbs(e.Verbs)
}

// Verb resolves a single verb of an entry.
func (r *Registry) Verb(entryID, verbID string) (Verb, bool) {
	e, ok := r.entries[entryID]
	if !ok {
		return Verb{}, false
	}
	for _, v := range e.Verbs {
		if v.ID == verbID {
			return v.clone(), true
		}
	}
	return Verb{}, false
}

// Entries returns every entry in declaration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].clone())
	}
	return out
}

// Search returns (entry, verb) pairs whose entry label or verb label contains
// query, compared with Unicode case folding. The query is matched as a plain
// substring, never as a pattern.
func (r *Registry) Search(query string) []Match {
	matches := []Match{}
	if query == "" {
		return matches
	}
	fold := cases.Fold()
	q := fold.String(query)
	for _, id := range r.order {
		e := r.entries[id]
		entryHit := strings.Contains(fold.String(e.Label), q)
		for _, v := range e.Verbs {
			if entryHit || strings.Contains(fold.String(v.Label), q) {
				matches = append(matches, Match{Entry: e.clone(), Verb: v.clone()})
			}
		}
	}
	return matches
}

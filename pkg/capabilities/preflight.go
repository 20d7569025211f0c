package capabilities

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownVerb is returned when the entry or verb is not declared.
	ErrUnknownVerb = errors.New("capability verb not declared")
	// ErrMissingLensField is returned when a confirmation-tier payload lacks a lens field.
	ErrMissingLensField = errors.New("lens field missing from payload")
	// ErrSchema is returned when the payload fails the verb's parameter schema.
	ErrSchema = errors.New("payload rejected by verb schema")
)

// Preflight checks that payload may be proposed for entryID/verbID. It fails
// closed: an undeclared verb is an error, never a pass.
func (r *Registry) Preflight(entryID, verbID string, payload map[string]any) error {
	v, ok := r.Verb(entryID, verbID)
	if !ok {
		return fmt.Errorf("%w: %q/%q", ErrUnknownVerb, entryID, verbID)
	}

	if v.Tier.RequiresConfirmation() {
		for _, f := range v.Lens {
			if _, present := payload[f.Key]; !present {
				return fmt.Errorf("%w: %s/%s requires %q", ErrMissingLensField, entryID, verbID, f.Key)
			}
		}
	}

	schema, ok := r.schemas[verbKey{entry: entryID, verb: verbID}]
	if !ok {
		return nil
	}
	// The validator only understands decoded JSON values, so normalize
	// Go-native numbers and nested types first.
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: payload is not JSON encodable: %v", ErrSchema, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s/%s: %v", ErrSchema, entryID, verbID, err)
	}
	return nil
}

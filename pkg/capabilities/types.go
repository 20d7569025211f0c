package capabilities

// FieldType is the semantic type of a lens field.
type FieldType string

const (
	FieldText      FieldType = "text"
	FieldCurrency  FieldType = "currency"
	FieldDate      FieldType = "date"
	FieldDateTime  FieldType = "datetime"
	FieldStatus    FieldType = "status"
	FieldRecipient FieldType = "recipient"
	FieldCount     FieldType = "count"
	FieldDuration  FieldType = "duration"
	FieldDocument  FieldType = "document"
)

var knownFieldTypes = map[FieldType]struct{}{
	FieldText:      {},
	FieldCurrency:  {},
	FieldDate:      {},
	FieldDateTime:  {},
	FieldStatus:    {},
	FieldRecipient: {},
	FieldCount:     {},
	FieldDuration:  {},
	FieldDocument:  {},
}

// LensField is a piece of the payload that must be shown to the user
// before a confirmation-tier verb is authorized.
type LensField struct {
	Key   string    `json:"key" yaml:"key"`
	Label string    `json:"label" yaml:"label"`
	Type  FieldType `json:"type" yaml:"type"`
}

// Verb is one operation of a capability entry.
type Verb struct {
	ID    string      `json:"id" yaml:"id"`
	Label string      `json:"label" yaml:"label"`
	Tier  Tier        `json:"tier" yaml:"tier"`
	Lens  []LensField `json:"lens,omitempty" yaml:"lens,omitempty"`
	// ParamsSchema is an optional JSON Schema (draft 2020-12) for the payload.
	ParamsSchema string `json:"params_schema,omitempty" yaml:"-"`
}

// Entry is one addressable action surface.
type Entry struct {
	ID          string `json:"id" yaml:"id"`
	Desk        string `json:"desk" yaml:"desk"`
	Label       string `json:"label" yaml:"label"`
	Icon        string `json:"icon" yaml:"icon"`
	Verbs       []Verb `json:"verbs" yaml:"verbs"`
	DefaultVerb string `json:"default_verb" yaml:"default_verb"`
}

// Match is a single search hit.
type Match struct {
	Entry Entry `json:"entry"`
	Verb  Verb  `json:"verb"`
}

func (v Verb) clone() Verb {
	out := v
	if v.Lens != nil {
		out.Lens = make([]LensField, len(v.Lens))
		copy(out.Lens, v.Lens)
	}
	return out
}

func (e Entry) clone() Entry {
	out := e
	out.Verbs = cloneVerbs(e.Verbs)
	return out
}

func cloneVerbs(in []Verb) []Verb {
	out := make([]Verb, len(in))
	for i, v := range in {
		out[i] = v.clone()
	}
	return out
}

// HasVerb reports whether the entry declares a verb with the given id.
func (e Entry) HasVerb(id string) bool {
	for _, v := range e.Verbs {
		if v.ID == id {
			return true
		}
	}
	return false
}

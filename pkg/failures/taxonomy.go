// Package failures is the failure taxonomy: a fixed table of F-### codes
// with severity, a user-safe message, an internal diagnostic and a
// retryability flag. Lookups fail closed: an unknown code is not found,
// never mapped onto a generic fallback.
package failures

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// Severity is ordered: info < warning < error < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

// Rank returns the ordinal of s, or 0 when s is unknown.
func (s Severity) Rank() int { return severityRanks[s] }

// Code is one taxonomy entry.
type Code struct {
	Code        string   `json:"code" yaml:"code"`
	Severity    Severity `json:"severity" yaml:"severity"`
	UserMessage string   `json:"user_message" yaml:"user_message"`
	Diagnostic  string   `json:"diagnostic" yaml:"diagnostic"`
	Retryable   bool     `json:"retryable" yaml:"retryable"`
}

// Silent reports whether the failure is telemetry-only.
func (c Code) Silent() bool { return c.UserMessage == "" }

var (
	codePattern = regexp.MustCompile(`^F-[0-9]{3}$`)
	// leakPattern catches diagnostic text that must never reach a user.
	leakPattern = regexp.MustCompile(`(?i)\bundefined\b|\bnull\b|\bnil\b|panic|goroutine|\.go:[0-9]+|runtime\.|traceback|exception|\*?[a-z0-9_]+\.[A-Za-z0-9_]*(Error|Exception)\b|\bat [A-Za-z_.$]+\s*\(`)
)

// SafeUserMessage reports whether msg is free of diagnostic leakage.
func SafeUserMessage(msg string) bool {
	return !leakPattern.MatchString(msg)
}

// Taxonomy is an immutable code table.
type Taxonomy struct {
	codes map[string]Code
	order []string
}

// NewTaxonomy validates and indexes codes.
func NewTaxonomy(codes ...Code) (*Taxonomy, error) {
	t := &Taxonomy{codes: make(map[string]Code, len(codes))}
	var errs []error
	for _, c := range codes {
		if !codePattern.MatchString(c.Code) {
			errs = append(errs, fmt.Errorf("code %q is not of the form F-###", c.Code))
		}
		if _, dup := t.codes[c.Code]; dup {
			errs = append(errs, fmt.Errorf("duplicate failure code %s", c.Code))
			continue
		}
		if c.Severity.Rank() == 0 {
			errs = append(errs, fmt.Errorf("%s has unknown severity %q", c.Code, c.Severity))
		}
		if c.Severity == SeverityCritical && c.Retryable {
			errs = append(errs, fmt.Errorf("%s is critical and must not be retryable", c.Code))
		}
		if !SafeUserMessage(c.UserMessage) {
			errs = append(errs, fmt.Errorf("%s user message leaks diagnostic text", c.Code))
		}
		t.codes[c.Code] = c
		t.order = append(t.order, c.Code)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid failure taxonomy: %w", errors.Join(errs...))
	}
	sort.Strings(t.order)
	return t, nil
}

// Resolve returns the entry for code. Only exact, declared keys resolve.
func (t *Taxonomy) Resolve(code string) (Code, bool) {
	c, ok := t.codes[code]
	if !ok {
		return Code{}, false
	}
	return c, true
}

// All returns every code sorted by key.
func (t *Taxonomy) All() []Code {
	out := make([]Code, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.codes[k])
	}
	return out
}

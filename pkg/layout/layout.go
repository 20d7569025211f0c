// Package layout persists per-office canvas layout state as a versioned
// JSON document. Loading is forgiving: anything that does not validate is
// discarded and replaced with defaults.
package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/Masterminds/semver/v3"
)

// CurrentVersion is the document version written by Save. Documents tagged
// with any other version are discarded on load.
const CurrentVersion = "1.0.0"

var currentVersion = semver.MustParse(CurrentVersion)

// ErrInvalid is returned by Validate and Save for a state that must not be persisted.
var ErrInvalid = errors.New("invalid layout state")

// Panel is one positioned surface on the canvas.
type Panel struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Z         int     `json:"z"`
	Minimized bool    `json:"minimized"`
}

// State is the persisted layout document.
type State struct {
	Version     string  `json:"version"`
	Zoom        float64 `json:"zoom"`
	ActivePanel string  `json:"active_panel,omitempty"`
	Panels      []Panel `json:"panels"`
}

// Defaults returns the layout used when nothing valid is stored.
func Defaults() State {
	return State{
		Version: CurrentVersion,
		Zoom:    1,
		Panels:  []Panel{},
	}
}

// Key scopes a layout to one tenant office.
func Key(suiteID, officeID string) string {
	return suiteID + ":" + officeID
}

// Validate checks a state built in Go before it is written.
func (s State) Validate() error {
	var errs []error
	if err := checkVersion(s.Version); err != nil {
		errs = append(errs, err)
	}
	if !finite(s.Zoom) || s.Zoom <= 0 {
		errs = append(errs, fmt.Errorf("zoom must be a positive finite number, got %v", s.Zoom))
	}
	seen := make(map[string]struct{}, len(s.Panels))
	for i, p := range s.Panels {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("panels[%d]: empty id", i))
		}
		if _, dup := seen[p.ID]; dup {
			errs = append(errs, fmt.Errorf("panels[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = struct{}{}
		for name, v := range map[string]float64{"x": p.X, "y": p.Y} {
			if !finite(v) {
				errs = append(errs, fmt.Errorf("panels[%d].%s is not finite", i, name))
			}
		}
		for name, v := range map[string]float64{"width": p.Width, "height": p.Height} {
			if !finite(v) || v < 0 {
				errs = append(errs, fmt.Errorf("panels[%d].%s must be a non-negative finite number", i, name))
			}
		}
	}
	if s.ActivePanel != "" {
		if _, ok := seen[s.ActivePanel]; !ok {
			errs = append(errs, fmt.Errorf("active panel %q is not a panel", s.ActivePanel))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Decode parses and validates a stored document field by field. The raw
// document is inspected before it is bound to State so that a field of the
// wrong JSON type is rejected rather than zeroed.
func Decode(raw []byte) (State, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return State{}, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}

	var errs []error
	version, ok := doc["version"].(string)
	if !ok {
		errs = append(errs, errors.New("version must be a string"))
	} else if err := checkVersion(version); err != nil {
		errs = append(errs, err)
	}
	if _, ok := doc["zoom"].(float64); !ok {
		errs = append(errs, errors.New("zoom must be a number"))
	}
	if v, present := doc["active_panel"]; present {
		if _, ok := v.(string); !ok {
			errs = append(errs, errors.New("active_panel must be a string"))
		}
	}
	panels, ok := doc["panels"].([]any)
	if !ok {
		errs = append(errs, errors.New("panels must be an array"))
	}
	for i, item := range panels {
		p, ok := item.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("panels[%d] must be an object", i))
			continue
		}
		errs = append(errs, checkPanelTypes(i, p)...)
	}
	if len(errs) > 0 {
		return State{}, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("%w: bind: %v", ErrInvalid, err)
	}
	if err := s.Validate(); err != nil {
		return State{}, err
	}
	return s, nil
}

func checkPanelTypes(i int, p map[string]any) []error {
	var errs []error
	for _, k := range []string{"id", "kind"} {
		if _, ok := p[k].(string); !ok {
			errs = append(errs, fmt.Errorf("panels[%d].%s must be a string", i, k))
		}
	}
	for _, k := range []string{"x", "y", "width", "height"} {
		if _, ok := p[k].(float64); !ok {
			errs = append(errs, fmt.Errorf("panels[%d].%s must be a number", i, k))
		}
	}
	if z, ok := p["z"].(float64); !ok || z != math.Trunc(z) {
		errs = append(errs, fmt.Errorf("panels[%d].z must be an integer", i))
	}
	if v, present := p["minimized"]; present {
		if _, ok := v.(bool); !ok {
			errs = append(errs, fmt.Errorf("panels[%d].minimized must be a boolean", i))
		}
	}
	return errs
}

func checkVersion(tag string) error {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return fmt.Errorf("version %q is not a semantic version", tag)
	}
	if !v.Equal(currentVersion) {
		return fmt.Errorf("version %s does not match %s", v, currentVersion)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Package scenario holds the dashboard's preset queries.
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var presets []byte

// Scenario is one preset: who asks and which datasets the query is limited to.
type Scenario struct {
	Label         string   `yaml:"label" json:"label"`
	User          string   `yaml:"user" json:"user"`
	Datasets      []string `yaml:"datasets" json:"datasets"`
	RequiresShare bool     `yaml:"requires_share" json:"requires_share"`
	Description   string   `yaml:"description" json:"description"`
}

// ErrUnknown is returned by Set.Find for labels that are not presets.
var ErrUnknown = errors.New("unknown scenario")

// Set is an ordered list of scenarios.
type Set []Scenario

// Default returns the embedded presets.
func Default() (Set, error) {
	return Parse(presets)
}

// Parse decodes a scenarios document and validates every entry.
func Parse(data []byte) (Set, error) {
	var doc struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Scenarios))
	for i, s := range doc.Scenarios {
		switch {
		case strings.TrimSpace(s.Label) == "":
			return nil, fmt.Errorf("scenario %d: label is required", i)
		case s.User == "":
			return nil, fmt.Errorf("scenario %q: user is required", s.Label)
		case len(s.Datasets) == 0:
			return nil, fmt.Errorf("scenario %q: at least one dataset is required", s.Label)
		}
		if _, dup := seen[s.Label]; dup {
			return nil, fmt.Errorf("scenario %q: duplicate label", s.Label)
		}
		seen[s.Label] = struct{}{}
	}
	return Set(doc.Scenarios), nil
}

// Find returns the scenario with the given label.
func (s Set) Find(label string) (Scenario, error) {
	for _, sc := range s {
		if sc.Label == label {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", ErrUnknown, label)
}

// Labels lists the labels in order.
func (s Set) Labels() []string {
	out := make([]string, len(s))
	for i, sc := range s {
		out[i] = sc.Label
	}
	return out
}

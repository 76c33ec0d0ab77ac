// Package session decodes YAML session files: a form, the documents loaded
// with it, and the scripted mutations and queries run against it.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

// ErrSession is the sentinel error for all session failures.
var ErrSession = errors.New("session error")

// Session is the decoded content of a session file.
type Session struct {
	Form        string            `yaml:"form"`                  // Form definition file
	Record      string            `yaml:"record,omitempty"`      // Edit record file
	Unsubmitted bool              `yaml:"unsubmitted,omitempty"` // Keep the record's instanceID
	Ordinals    bool              `yaml:"ordinals,omitempty"`    // Stamp ordinals on cloned repeats
	External    map[string]string `yaml:"external,omitempty"`    // Instance id to file
	Repeats     []string          `yaml:"repeats,omitempty"`     // Repeat paths without explicit templates
	Steps       []Step            `yaml:"steps,omitempty"`
	Queries     []Query           `yaml:"queries,omitempty"`
	Validations []Validation      `yaml:"validations,omitempty"`
}

// Step is one mutation. Exactly one of Clone, Set, Remove, Count and
// Relevant names the target path.
type Step struct {
	Clone    string `yaml:"clone,omitempty"`
	Set      string `yaml:"set,omitempty"`
	Remove   string `yaml:"remove,omitempty"`
	Count    string `yaml:"count,omitempty"`
	Relevant string `yaml:"relevant,omitempty"`

	Index *int   `yaml:"index,omitempty"` // 0-based match; all matches when absent
	Value string `yaml:"value,omitempty"` // Value for set, count for count, "false" to mark irrelevant
	Type  string `yaml:"type,omitempty"`  // XML type for set
}

// Action identifies what a step does.
type Action string

const (
	ActionClone    Action = "clone"
	ActionSet      Action = "set"
	ActionRemove   Action = "remove"
	ActionCount    Action = "count"
	ActionRelevant Action = "relevant"
)

// Target returns the step's action and path.
func (s Step) Target() (Action, string, error) {
	var action Action
	var path string
	for _, candidate := range []struct {
		action Action
		path   string
	}{
		{ActionClone, s.Clone},
		{ActionSet, s.Set},
		{ActionRemove, s.Remove},
		{ActionCount, s.Count},
		{ActionRelevant, s.Relevant},
	} {
		if candidate.path == "" {
			continue
		}
		if action != "" {
			return "", "", fmt.Errorf("%w: step names both %s and %s", ErrSession, action, candidate.action)
		}
		action, path = candidate.action, candidate.path
	}
	if action == "" {
		return "", "", fmt.Errorf("%w: step has no action", ErrSession)
	}
	return action, path, nil
}

// IndexOr returns the step index, or fallback when none was given.
func (s Step) IndexOr(fallback int) int {
	if s.Index == nil {
		return fallback
	}
	return *s.Index
}

// Query is an expression evaluated after the steps ran.
type Query struct {
	Expr    string `yaml:"expr"`
	Type    string `yaml:"type,omitempty"`    // string, boolean, number or nodes
	Context string `yaml:"context,omitempty"` // Context path
	Index   int    `yaml:"index,omitempty"`   // Context index
}

// Validation checks a single node's value.
type Validation struct {
	Path       string `yaml:"path"`
	Index      *int   `yaml:"index,omitempty"`
	Constraint string `yaml:"constraint,omitempty"`
	Type       string `yaml:"type,omitempty"`
}

// Parse decodes a session document.
func Parse(r io.Reader) (*Session, error) {
	decoder := yaml.NewDecoder(r, yaml.DisallowUnknownField())
	var s Session

	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: failed to decode YAML: %v", ErrSession, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Session) validate() error {
	for i, step := range s.Steps {
		if _, _, err := step.Target(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, query := range s.Queries {
		if strings.TrimSpace(query.Expr) == "" {
			return fmt.Errorf("%w: query %d: missing expr", ErrSession, i+1)
		}
	}
	for i, validation := range s.Validations {
		if strings.TrimSpace(validation.Path) == "" {
			return fmt.Errorf("%w: validation %d: missing path", ErrSession, i+1)
		}
	}
	return nil
}

// Load reads a session file. Relative file references are resolved against
// the session file's directory.
func Load(filename string) (*Session, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSession, err)
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	dir := filepath.Dir(filename)
	s.Form = resolve(dir, s.Form)
	s.Record = resolve(dir, s.Record)
	for id, file := range s.External {
		s.External[id] = resolve(dir, file)
	}
	return s, nil
}

func resolve(dir, file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

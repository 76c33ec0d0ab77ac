// Package output renders an inspection report as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
)

const separator = "--------------------------------------------------------------------------------"

// Format selects the report encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps a format name to its Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("unknown output format %q", name)
	}
}

// Report is everything one run has to say about a form. Text output leaves
// LoadErrors to the caller's error stream.
type Report struct {
	Form         string             `json:"form"`
	LoadErrors   []string           `json:"loadErrors,omitempty"`
	InstanceID   string             `json:"instanceID,omitempty"`
	DeprecatedID string             `json:"deprecatedID,omitempty"`
	Instance     string             `json:"instance"`
	Default      string             `json:"default,omitempty"` // Instance before the record and steps, for diffs
	Events       []Event            `json:"events,omitempty"`
	Queries      []QueryResult      `json:"queries,omitempty"`
	Validations  []ValidationResult `json:"validations,omitempty"`
}

// Event is a change published while the steps ran.
type Event struct {
	Kind           string   `json:"kind"`
	Path           string   `json:"path"`
	Nodes          []string `json:"nodes,omitempty"`
	RepeatPath     string   `json:"repeatPath,omitempty"`
	RepeatPosition int      `json:"repeatPosition,omitempty"`
}

// QueryResult is one evaluated expression.
type QueryResult struct {
	Expr   string `json:"expr"`
	Type   string `json:"type"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ValidationResult is one checked node.
type ValidationResult struct {
	Path  string `json:"path"`
	Index int    `json:"index"`
	Valid bool   `json:"valid"`
}

// Formatter writes reports.
type Formatter struct {
	writer io.Writer
	format Format

	header *color.Color
	insert *color.Color
	delete *color.Color
	failed *color.Color
	passed *color.Color
}

// New creates a formatter that outputs to stdout. Colors are used when
// enabled is nil and stdout is a terminal, or when *enabled is true.
func New(format Format, enabled *bool) *Formatter {
	return NewWithWriter(os.Stdout, format, enabled)
}

// NewWithWriter creates a formatter with a custom writer.
func NewWithWriter(writer io.Writer, format Format, enabled *bool) *Formatter {
	useColor := isTerminal(writer)
	if enabled != nil {
		useColor = *enabled
	}

	f := &Formatter{
		writer: writer,
		format: format,
		header: color.New(color.FgCyan, color.Bold),
		insert: color.New(color.FgGreen),
		delete: color.New(color.FgRed),
		failed: color.New(color.FgRed, color.Bold),
		passed: color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{f.header, f.insert, f.delete, f.failed, f.passed} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Format writes the report.
func (f *Formatter) Format(r *Report) error {
	if f.format == FormatJSON {
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	}
	return f.formatText(r)
}

func (f *Formatter) formatText(r *Report) error {
	if _, err := fmt.Fprintf(f.writer, "%s %s\n", f.header.Sprint("form:"), r.Form); err != nil {
		return err
	}
	if r.InstanceID != "" {
		if _, err := fmt.Fprintf(f.writer, "%s %s\n", f.header.Sprint("instanceID:"), r.InstanceID); err != nil {
			return err
		}
	}
	if r.DeprecatedID != "" {
		if _, err := fmt.Fprintf(f.writer, "%s %s\n", f.header.Sprint("deprecatedID:"), r.DeprecatedID); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(f.writer, separator); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f.writer, r.Instance); err != nil {
		return err
	}

	if r.Default != "" {
		if _, err := fmt.Fprintln(f.writer, separator); err != nil {
			return err
		}
		if err := f.formatDiff(r.Default, r.Instance); err != nil {
			return err
		}
	}

	if len(r.Events) > 0 {
		if _, err := fmt.Fprintln(f.writer, separator); err != nil {
			return err
		}
		for _, e := range r.Events {
			line := fmt.Sprintf("%s %s", e.Kind, e.Path)
			if e.RepeatPath != "" {
				line += fmt.Sprintf(" (%s #%d)", e.RepeatPath, e.RepeatPosition)
			}
			if _, err := fmt.Fprintln(f.writer, line); err != nil {
				return err
			}
		}
	}

	if len(r.Queries) > 0 {
		if _, err := fmt.Fprintln(f.writer, separator); err != nil {
			return err
		}
		for _, q := range r.Queries {
			result := fmt.Sprint(q.Result)
			if q.Error != "" {
				result = f.failed.Sprint(q.Error)
			}
			if _, err := fmt.Fprintf(f.writer, "%s [%s] => %s\n", q.Expr, q.Type, result); err != nil {
				return err
			}
		}
	}

	if len(r.Validations) > 0 {
		if _, err := fmt.Fprintln(f.writer, separator); err != nil {
			return err
		}
		for _, v := range r.Validations {
			verdict := f.passed.Sprint("valid")
			if !v.Valid {
				verdict = f.failed.Sprint("invalid")
			}
			if _, err := fmt.Fprintf(f.writer, "%s[%d]: %s\n", v.Path, v.Index, verdict); err != nil {
				return err
			}
		}
	}

	return nil
}

// formatDiff prints a line diff of two serialized instances, one element
// per line.
func (f *Formatter) formatDiff(from, to string) error {
	diffCfg := diffpatch.New()
	a, b, lines := diffCfg.DiffLinesToChars(splitElements(from), splitElements(to))
	diffs := diffCfg.DiffCharsToLines(diffCfg.DiffMain(a, b, false), lines)

	changed := slices.ContainsFunc(diffs, func(d diffpatch.Diff) bool { return d.Type != diffpatch.DiffEqual })
	if !changed {
		_, err := fmt.Fprintln(f.writer, "no changes")
		return err
	}

	for _, diff := range diffs {
		prefix, c := "  ", (*color.Color)(nil)
		switch diff.Type {
		case diffpatch.DiffInsert:
			prefix, c = "+ ", f.insert
		case diffpatch.DiffDelete:
			prefix, c = "- ", f.delete
		case diffpatch.DiffEqual:
		}
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}
			text := prefix + strings.TrimSuffix(line, "\n")
			if c != nil {
				text = c.Sprint(text)
			}
			if _, err := fmt.Fprintln(f.writer, text); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitElements breaks a serialized instance at tag boundaries. Text never
// contains a raw '<', so the split cannot land inside a value.
func splitElements(s string) string {
	return strings.ReplaceAll(s, "><", ">\n<") + "\n"
}

package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	t.Parallel()

	two := 2

	tests := []struct {
		name    string
		input   string
		want    *Session
		wantErr bool
	}{
		{
			name:  "form_only",
			input: "form: form.xml\n",
			want:  &Session{Form: "form.xml"},
		},
		{
			name: "full",
			input: `form: form.xml
record: record.xml
unsubmitted: true
ordinals: true
external:
  cities: cities.xml
repeats:
  - /data/r
steps:
  - clone: /data/r
  - set: /data/r/n
    index: 2
    value: "4"
    type: int
  - remove: /data/r
    index: 0
  - count: /data/r
    value: "3"
  - relevant: /data/note
    value: "false"
queries:
  - expr: count(/data/r)
    type: number
  - expr: ../n
    context: /data/r/n
    index: 1
validations:
  - path: /data/r/n
    index: 2
    constraint: . > 3
    type: int
`,
			want: &Session{
				Form:        "form.xml",
				Record:      "record.xml",
				Unsubmitted: true,
				Ordinals:    true,
				External:    map[string]string{"cities": "cities.xml"},
				Repeats:     []string{"/data/r"},
				Steps: []Step{
					{Clone: "/data/r"},
					{Set: "/data/r/n", Index: &two, Value: "4", Type: "int"},
					{Remove: "/data/r", Index: new(int)},
					{Count: "/data/r", Value: "3"},
					{Relevant: "/data/note", Value: "false"},
				},
				Queries: []Query{
					{Expr: "count(/data/r)", Type: "number"},
					{Expr: "../n", Context: "/data/r/n", Index: 1},
				},
				Validations: []Validation{
					{Path: "/data/r/n", Index: &two, Constraint: ". > 3", Type: "int"},
				},
			},
		},
		{
			name:    "step_without_action",
			input:   "form: f.xml\nsteps:\n  - value: x\n",
			wantErr: true,
		},
		{
			name:    "step_with_two_actions",
			input:   "form: f.xml\nsteps:\n  - clone: /a\n    remove: /a\n",
			wantErr: true,
		},
		{
			name:    "query_without_expr",
			input:   "form: f.xml\nqueries:\n  - type: number\n",
			wantErr: true,
		},
		{
			name:    "validation_without_path",
			input:   "form: f.xml\nvalidations:\n  - type: int\n",
			wantErr: true,
		},
		{
			name:    "unknown_field",
			input:   "form: f.xml\nrecords: r.xml\n",
			wantErr: true,
		},
		{
			name:    "malformed",
			input:   "form: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrSession) {
					t.Fatalf("Parse() error = %v, want %v", err, ErrSession)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStepTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		step       Step
		wantAction Action
		wantPath   string
	}{
		{Step{Clone: "/a"}, ActionClone, "/a"},
		{Step{Set: "/a/b", Value: "1"}, ActionSet, "/a/b"},
		{Step{Remove: "/a"}, ActionRemove, "/a"},
		{Step{Count: "/a", Value: "2"}, ActionCount, "/a"},
		{Step{Relevant: "/a/c"}, ActionRelevant, "/a/c"},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantAction), func(t *testing.T) {
			t.Parallel()

			action, path, err := tt.step.Target()
			if err != nil {
				t.Fatalf("Target() unexpected error: %v", err)
			}
			if action != tt.wantAction || path != tt.wantPath {
				t.Errorf("Target() = %s %s, want %s %s", action, path, tt.wantAction, tt.wantPath)
			}
		})
	}
}

func TestStepIndexOr(t *testing.T) {
	t.Parallel()

	three := 3
	if got := (Step{}).IndexOr(-1); got != -1 {
		t.Errorf("IndexOr() = %d, want -1", got)
	}
	if got := (Step{Index: &three}).IndexOr(-1); got != 3 {
		t.Errorf("IndexOr() = %d, want 3", got)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	abs := filepath.Join(dir, "elsewhere", "cities.xml")
	content := "form: forms/form.xml\nrecord: record.xml\nexternal:\n  cities: " + abs + "\n  towns: towns.xml\n"
	filename := filepath.Join(dir, "session.yaml")
	if err := os.WriteFile(filename, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(filename)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	want := &Session{
		Form:   filepath.Join(dir, "forms", "form.xml"),
		Record: filepath.Join(dir, "record.xml"),
		External: map[string]string{
			"cities": abs,
			"towns":  filepath.Join(dir, "towns.xml"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrSession) {
		t.Errorf("Load() error = %v, want %v", err, ErrSession)
	}
}

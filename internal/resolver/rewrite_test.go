package resolver

import (
	"errors"
	"testing"

	"github.com/jacoelho/xformdoc/internal/xpath"
)

func TestShiftRoot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{input: "/path/to/node", want: "/model/instance[1]/path/to/node"},
		{input: "/_member_/new/*", want: "/model/instance[1]/_member_/new/*"},
		{input: "/_member-/new/*", want: "/model/instance[1]/_member-/new/*"},
		{input: "/models/to/node", want: "/model/instance[1]/models/to/node"},
		{input: "/*/meta/instanceID", want: "/model/instance[1]/*/meta/instanceID"},
		{input: "/outputs_in_repeats/rep/name", want: "/model/instance[1]/outputs_in_repeats/rep/name"},
		{input: "/path/to/node[/path/to/node]", want: "/model/instance[1]/path/to/node[/model/instance[1]/path/to/node]"},
		{input: "/path/to/node[ /path/to/node ]", want: "/model/instance[1]/path/to/node[ /model/instance[1]/path/to/node ]"},
		{input: `concat(/path/to/node, "2")`, want: `concat(/model/instance[1]/path/to/node, "2")`},
		{input: `concat( /path/to/node, "2" )`, want: `concat( /model/instance[1]/path/to/node, "2" )`},
		{
			input: "join(' ', if( /r/a > 0, 'a', '-'), if( /r/o > 0, 'b', ''))",
			want:  "join(' ', if( /model/instance[1]/r/a > 0, 'a', '-'), if( /model/instance[1]/r/o > 0, 'b', ''))",
		},
		{
			input: "join(' ', if( /r/a > 0, 'a', ''), if( /r/o > 0, 'b', ''))",
			want:  "join(' ', if( /model/instance[1]/r/a > 0, 'a', ''), if( /model/instance[1]/r/o > 0, 'b', ''))",
		},

		{input: "path/to/node", want: "path/to/node"},
		{input: `"path/to/node"`, want: `"path/to/node"`},
		{input: `'path/to/node'`, want: `'path/to/node'`},
		{input: `concat(path/to/node, "2")`, want: `concat(path/to/node, "2")`},
		{input: "../path/to/node../node", want: "../path/to/node../node"},
		{input: "/model/path/to/node", want: "/model/path/to/node"},
		{input: `concat("/", "path/to/node")`, want: `concat("/", "path/to/node")`},
		{input: `concat('/path/to/node')`, want: `concat('/path/to/node')`},
		{input: `concat("a", "[/path/to/node]")`, want: `concat("a", "[/path/to/node]")`},
		{input: `concat("'", "/path/to/node", "'")`, want: `concat("'", "/path/to/node", "'")`},
		{input: `""`, want: `""`},
		{input: `''`, want: `''`},
		{input: "", want: ""},
		{input: "/model/instance[1]/a/b", want: "/model/instance[1]/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := ShiftRoot(tt.input); got != tt.want {
				t.Fatalf("ShiftRoot(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplaceInstanceFn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: `instance("a")/path/to/node`, want: `/model/instance[@id="a"]/path/to/node`},
		{input: `instance( 'cities' )/root/item[country = 'nl']`, want: `/model/instance[@id="cities"]/root/item[country = 'nl']`},
		{input: `concat('instance("a")', 1)`, want: `concat('instance("a")', 1)`},
		{input: `my-instance("a")`, want: `my-instance("a")`},
		{input: `instance(/a/b)/x`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ReplaceInstanceFn(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReplaceInstanceFn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ReplaceInstanceFn(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplaceCurrentFn(t *testing.T) {
	t.Parallel()

	const context = "/data/node"
	tests := []struct {
		input string
		want  string
	}{
		{input: `instance("a")/path/to/node[filter = current()/data/some/node]`, want: `instance("a")/path/to/node[filter = /data/some/node]`},
		{input: `instance("a")/path/to/node[filter = current()/.]`, want: `instance("a")/path/to/node[filter = /data/node/.]`},
		{input: `instance("a")/path/to/node[filter = current()/../some/node]`, want: `instance("a")/path/to/node[filter = /data/node/../some/node]`},
		{input: `'current()'`, want: `'current()'`},
		{input: `current() = 'a'`, want: `/data/node = 'a'`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := ReplaceCurrentFn(tt.input, context); got != tt.want {
				t.Fatalf("ReplaceCurrentFn(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplaceIndexedRepeatFn(t *testing.T) {
	t.Parallel()

	positions := map[string]string{
		"position(..)":     "3",
		"position(..) - 1": "2",
	}
	evaluate := func(expr string) (string, error) {
		if value, ok := positions[expr]; ok {
			return value, nil
		}
		return "", errors.New("unexpected expression " + expr)
	}

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "indexed-repeat(/path/to/repeat/node, /path/to/repeat, 2)", want: "/path/to/repeat[position() = 2]/node"},
		{input: " indexed-repeat( /path/to/repeat/node , /path/to/repeat , 2 )", want: " /path/to/repeat[position() = 2]/node"},
		{input: "1 + indexed-repeat(/path/to/repeat/node, /path/to/repeat, 2)", want: "1 + /path/to/repeat[position() = 2]/node"},
		{input: `concat(indexed-repeat(/path/to/repeat/node, /path/to/repeat, 2), "fluff")`, want: `concat(/path/to/repeat[position() = 2]/node, "fluff")`},
		{input: "indexed-repeat(/p/t/r/ar/node, /p/t/r, 2, /p/t/r/ar, 3 )", want: "/p/t/r[position() = 2]/ar[position() = 3]/node"},
		{input: "indexed-repeat( /p/t/r/node,  /p/t/r , position(..)    )", want: "/p/t/r[position() = 3]/node"},
		{input: "indexed-repeat( /p/t/r/node,  /p/t/r , position(..) - 1)", want: "/p/t/r[position() = 2]/node"},
		{input: "indexed-repeat(/p/t/r/node, /p/t/r)", wantErr: true},
		{input: "indexed-repeat(/p/x/node, /p/t/r, 1)", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ReplaceIndexedRepeatFn(tt.input, evaluate)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ReplaceIndexedRepeatFn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ReplaceIndexedRepeatFn(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReplacePullDataFn(t *testing.T) {
	t.Parallel()

	values := map[string]string{"/data/a": "aa", "/data/b": "22"}
	evaluate := func(expr string) (string, error) {
		return values[expr], nil
	}

	tests := []struct {
		input string
		want  string
	}{
		{input: "pulldata('hhplotdata', 'plot1size', 'hhid_key', 2)", want: "instance('hhplotdata')/root/item[hhid_key = 2]/plot1size"},
		{input: "pulldata( 'hhplotdata', 'plot1size', 'hhid_key' , 2 )", want: "instance('hhplotdata')/root/item[hhid_key = 2]/plot1size"},
		{input: "pulldata('hhplotdata', 'plot1size', 'hhid_key', 'two')", want: "instance('hhplotdata')/root/item[hhid_key = 'two']/plot1size"},
		{input: "pulldata('hhplotdata', 'plot1size', 'hhid_key', /data/a)", want: "instance('hhplotdata')/root/item[hhid_key = 'aa']/plot1size"},
		{input: "pulldata('hhplotdata', 'plot1size', 'hhid_key', /data/b)", want: "instance('hhplotdata')/root/item[hhid_key = 22]/plot1size"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ReplacePullDataFn(tt.input, evaluate)
			if err != nil {
				t.Fatalf("ReplacePullDataFn() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ReplacePullDataFn(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMakeBugCompliant(t *testing.T) {
	t.Parallel()

	repeatA := func(position int) []Repeat {
		return []Repeat{{Path: "/model/instance[1]/abcabce/a", Position: position}}
	}

	tests := []struct {
		name    string
		input   string
		repeats []Repeat
		want    string
	}{
		{name: "first_instance", input: "/model/instance[1]/abcabce/a/c = 1", repeats: repeatA(1), want: "/model/instance[1]/abcabce/a[1]/c = 1"},
		{name: "second_instance", input: "/model/instance[1]/abcabce/a/c = 1", repeats: repeatA(2), want: "/model/instance[1]/abcabce/a[2]/c = 1"},
		{name: "sibling_with_shared_prefix", input: "/model/instance[1]/abcabce/ab/ynab = 1", repeats: repeatA(1), want: "/model/instance[1]/abcabce/ab/ynab = 1"},
		{name: "sibling_with_shared_prefix_second", input: "/model/instance[1]/abcabce/ab/ynab = 1", repeats: repeatA(2), want: "/model/instance[1]/abcabce/ab/ynab = 1"},
		{name: "quoted", input: "'/model/instance[1]/abcabce/a/c'", repeats: repeatA(2), want: "'/model/instance[1]/abcabce/a/c'"},
		{
			name:  "nested_innermost_first",
			input: "/a/r/nR/x + /a/r/y",
			repeats: []Repeat{
				{Path: "/a/r/nR", Position: 3},
				{Path: "/a/r", Position: 2},
			},
			want: "/a/r[2]/nR[3]/x + /a/r[2]/y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := MakeBugCompliant(tt.input, tt.repeats); got != tt.want {
				t.Fatalf("MakeBugCompliant(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPipelineErrorsWrapInvalidExpression(t *testing.T) {
	t.Parallel()

	_, err := Pipeline{Shift: true}.Rewrite("pulldata('a', 'b')")
	if !errors.Is(err, xpath.ErrInvalidExpression) {
		t.Fatalf("Rewrite() error = %v, want ErrInvalidExpression", err)
	}
}

func TestPipelineRewrite(t *testing.T) {
	t.Parallel()

	p := Pipeline{
		Shift:       true,
		ContextPath: "/model/instance[1]/data/rep[2]/q",
		Repeats:     []Repeat{{Path: "/model/instance[1]/data/rep", Position: 2}},
		Evaluate: func(expr string) (string, error) {
			return "nl", nil
		},
	}

	got, err := p.Rewrite("pulldata('countries', 'name', 'code', /data/code) = current()/../a and /data/rep/b = 1")
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}
	want := `/model/instance[@id="countries"]/root/item[code = 'nl']/name = /model/instance[1]/data/rep[2]/q/../a and /model/instance[1]/data/rep[2]/b = 1`
	if got != want {
		t.Fatalf("Rewrite() = %q, want %q", got, want)
	}
}

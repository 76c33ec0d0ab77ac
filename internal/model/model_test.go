package model

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jacoelho/xformdoc/internal/xpath"
)

const theData = `<model><instance><thedata id="thedata"><nodeA/><nodeB>b</nodeB>` +
	`<repeatGroup template=""><nodeC>cdefault</nodeC></repeatGroup><repeatGroup><nodeC/></repeatGroup>` +
	`<repeatGroup><nodeC>c2</nodeC></repeatGroup>` +
	`<repeatGroup><nodeC>c3</nodeC></repeatGroup>` +
	`<somenodes><A>one</A><B>one</B><C>one</C></somenodes>` +
	`<someweights><w1>1</w1><w2>3</w2><w.3>5</w.3></someweights><nodeF/>` +
	`<meta><instanceID/></meta></thedata></instance></model>`

func newModel(t *testing.T, definition string, opts Options) (*Model, []string) {
	t.Helper()

	m := New(definition, opts)
	return m, m.Init()
}

func TestNodeCounts(t *testing.T) {
	t.Parallel()

	m, errs := newModel(t, theData, Options{})
	if len(errs) != 0 {
		t.Fatalf("Init() errors = %v", errs)
	}

	tests := []struct {
		name   string
		path   string
		index  int
		filter Filter
		want   int
	}{
		{name: "all_elements", path: "", index: All, want: 20},
		{name: "all_non_empty_leaves", path: "", index: All, filter: Filter{NoEmpty: true}, want: 10},
		{name: "index_out_of_range", path: "/thedata/nodeA", index: 1, want: 0},
		{name: "empty_leaf_filtered", path: "/thedata/nodeA", index: All, filter: Filter{NoEmpty: true}, want: 0},
		{name: "only_leaf", path: "/thedata/nodeA", index: All, filter: Filter{OnlyLeaf: true}, want: 1},
		{name: "repeat_without_template", path: "/thedata/repeatGroup", index: All, want: 3},
		{name: "descendant", path: "//nodeC", index: All, want: 3},
		{name: "repeat_children", path: "/thedata/repeatGroup/nodeC", index: All, want: 3},
		{name: "repeat_child_index", path: "/thedata/repeatGroup/nodeC", index: 2, want: 1},
		{name: "repeat_children_non_empty", path: "/thedata/repeatGroup/nodeC", index: All, filter: Filter{NoEmpty: true}, want: 2},
		{name: "repeat_children_leaves", path: "/thedata/repeatGroup/nodeC", index: All, filter: Filter{OnlyLeaf: true}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := m.Node(tt.path, tt.index, tt.filter).Len(); got != tt.want {
				t.Fatalf("Node(%q, %d).Len() = %d, want %d", tt.path, tt.index, got, tt.want)
			}
		})
	}
}

func TestValues(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, theData, Options{})

	tests := []struct {
		path string
		want []string
	}{
		{path: "/thedata/nodeB", want: []string{"b"}},
		{path: "/thedata/repeatGroup/nodeC", want: []string{"", "c2", "c3"}},
		{path: "/thedata/nodeX", want: []string{}},
		{path: "/thedata/someweights/w.3", want: []string{"5"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			got := m.Node(tt.path, All, Filter{}).Values()
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Values() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNodeInvalidPath(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, theData, Options{})
	nodes := m.Node("/thedata/[", All, Filter{})
	if !errors.Is(nodes.Err(), xpath.ErrInvalidExpression) {
		t.Fatalf("Err() = %v, want %v", nodes.Err(), xpath.ErrInvalidExpression)
	}
	if got := nodes.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestInitLoadErrorsLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   slog.Level
		wantLog bool
	}{
		{name: "warn", level: slog.LevelWarn, wantLog: false},
		{name: "debug", level: slog.LevelDebug, wantLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: tt.level}))
			_, errs := newModel(t, `<data>`, Options{Logger: logger})
			if len(errs) == 0 {
				t.Fatal("Init() errors = none, want a parse error")
			}
			if got := strings.Contains(buf.String(), "load error"); got != tt.wantLog {
				t.Fatalf("logged load error = %v, want %v; log:\n%s", got, tt.wantLog, buf.String())
			}
		})
	}
}

func TestMutationInvalidPath(t *testing.T) {
	t.Parallel()

	const path = "/thedata/)"

	tests := []struct {
		name   string
		mutate func(m *Model) error
	}{
		{name: "remove", mutate: func(m *Model) error { return m.Node(path, All, Filter{}).Remove() }},
		{name: "relevant", mutate: func(m *Model) error { return m.Node(path, All, Filter{}).SetRelevant(false) }},
		{name: "fake_templates", mutate: func(m *Model) error { return m.ExtractFakeTemplates([]string{path}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newModel(t, theData, Options{})
			before := m.Serialize(SerializeOptions{})
			if err := tt.mutate(m); !errors.Is(err, xpath.ErrInvalidExpression) {
				t.Fatalf("error = %v, want %v", err, xpath.ErrInvalidExpression)
			}
			if diff := cmp.Diff(before, m.Serialize(SerializeOptions{})); diff != "" {
				t.Fatalf("Serialize() changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, theData, Options{})

	tests := []struct {
		expr         string
		resultType   ResultType
		contextPath  string
		contextIndex int
		want         any
	}{
		{expr: "/thedata/nodeB", resultType: String, want: "b"},
		{expr: "../nodeB", resultType: String, contextPath: "/thedata/nodeA", want: "b"},
		{expr: "/thedata/nodeB", resultType: Boolean, want: true},
		{expr: "/thedata/notexist", resultType: Boolean, want: false},
		{expr: "/thedata/repeatGroup[2]/nodeC", resultType: String, want: "c2"},
		{expr: "/thedata/repeatGroup[position()=3]/nodeC", resultType: String, want: "c3"},
		{expr: "coalesce(/thedata/nodeA, /thedata/nodeB)", resultType: String, want: "b"},
		{expr: "coalesce(/thedata/nodeB, /thedata/nodeA)", resultType: String, want: "b"},
		{expr: "weighted-checklist(3, 3, /thedata/somenodes/A, /thedata/someweights/w2)", resultType: Boolean, want: true},
		{expr: "weighted-checklist(9, 9, /thedata/somenodes/*, /thedata/someweights/*)", resultType: Boolean, want: true},
		{expr: `"2012-07-24" > "2012-07-23"`, resultType: Boolean, want: true},
		{expr: "count(/thedata/repeatGroup)", resultType: Number, want: float64(3)},
		{expr: "/thedata/repeatGroup/nodeC", resultType: String, contextPath: "/thedata/repeatGroup/nodeC", contextIndex: 2, want: "c3"},
		{expr: "/thedata/repeatGroup/nodeC", resultType: String, contextPath: "/thedata/repeatGroup/nodeC", contextIndex: 1, want: "c2"},
		{expr: "current()/../nodeC", resultType: String, contextPath: "/thedata/repeatGroup/nodeC", contextIndex: 1, want: "c2"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			got, err := m.Evaluate(tt.expr, tt.resultType, tt.contextPath, tt.contextIndex)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Evaluate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvaluateNodes(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, theData, Options{})

	got, err := m.Evaluate("/thedata/repeatGroup", Nodes, "", 0)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if nodes := got.(xpath.NodeSet); len(nodes) != 3 {
		t.Fatalf("Evaluate() selected %d nodes, want 3", len(nodes))
	}

	if _, err := m.Evaluate("1 + 1", Nodes, "", 0); !errors.Is(err, xpath.ErrInvalidExpression) {
		t.Fatalf("Evaluate() error = %v, want %v", err, xpath.ErrInvalidExpression)
	}
	if _, err := m.Evaluate("indexed-repeat(/a, /b)", String, "", 0); !errors.Is(err, xpath.ErrInvalidExpression) {
		t.Fatalf("Evaluate() error = %v, want %v", err, xpath.ErrInvalidExpression)
	}
}

func TestEvaluateIndexedRepeat(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, `<model><instance><p><t><r><node>1</node></r><r><node>2</node></r><r><node>3</node></r></t></p></instance></model>`, Options{})

	tests := []struct {
		expr         string
		contextPath  string
		contextIndex int
		want         string
	}{
		{expr: "indexed-repeat(/p/t/r/node, /p/t/r, 2)", want: "2"},
		{expr: "indexed-repeat(/p/t/r/node, /p/t/r, position(..))", contextPath: "/p/t/r/node", contextIndex: 2, want: "3"},
		{expr: "indexed-repeat(/p/t/r/node, /p/t/r, position(..) - 1)", contextPath: "/p/t/r/node", contextIndex: 2, want: "2"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			got, err := m.Evaluate(tt.expr, String, tt.contextPath, tt.contextIndex)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultNamespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		definition string
	}{
		{
			name:       "on_primary_instance_child",
			definition: `<model><instance><data xmlns="http://unknown.namespace.com/34324sdagd"><nodeA>5</nodeA></data></instance></model>`,
		},
		{
			name:       "on_model",
			definition: `<model xmlns="http://www.w3.org/2002/xforms"><instance><data><nodeA>5</nodeA></data></instance></model>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newModel(t, tt.definition, Options{})
			if diff := cmp.Diff([]string{"5"}, m.Node("/data/nodeA", All, Filter{}).Values()); diff != "" {
				t.Fatalf("Values() mismatch (-want +got):\n%s", diff)
			}
			got, err := m.Evaluate("/data/nodeA", String, "", 0)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != "5" {
				t.Fatalf("Evaluate() = %v, want 5", got)
			}
		})
	}
}

func TestXPath(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, `<root><path><to><node/><repeat><number/></repeat><repeat><number/><number/></repeat></to></path></root>`, Options{})
	node := m.Node("//node", 0, Filter{}).IDs()[0]
	numbers := m.Node("//number", All, Filter{}).IDs()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "full", got: m.XPath(node, "", false), want: "/root/path/to/node"},
		{name: "below_root", got: m.XPath(node, "root", true), want: "/path/to/node"},
		{name: "first_position_implied", got: m.XPath(numbers[0], "root", true), want: "/path/to/repeat/number"},
		{name: "positions", got: m.XPath(numbers[1], "root", true), want: "/path/to/repeat[2]/number"},
		{name: "absolute_keeps_first_position", got: m.absolutePath(numbers[1]), want: "/root/path/to/repeat[2]/number[1]"},
		{name: "positions_multiple_levels", got: m.XPath(numbers[2], "root", true), want: "/path/to/repeat[2]/number[2]"},
		{name: "no_positions", got: m.XPath(numbers[2], "root", false), want: "/path/to/repeat/number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.got != tt.want {
				t.Fatalf("XPath() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestSerialize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		definition string
		want       string
	}{
		{
			name:       "jr_template_removed",
			definition: `<model xmlns:jr="http://openrosa.org/javarosa"><instance><data><group jr:template=""><a/></group></data></instance></model>`,
			want:       `<data><group><a/></group></data>`,
		},
		{
			name:       "template_removed",
			definition: `<model><instance><data><group    template=""><a/></group></data></instance></model>`,
			want:       `<data><group><a/></group></data>`,
		},
		{
			name:       "namespaces_kept",
			definition: `<model><instance><data xmlns="https://some.namespace.com/"><a/></data></instance></model>`,
			want:       `<data xmlns="https://some.namespace.com/"><a/></data>`,
		},
		{
			name: "nested_templates_instantiated",
			definition: `<model xmlns:jr="http://openrosa.org/javarosa"><instance><data><rep1 jr:template=""><one/><rep2 jr:template=""><two/>` +
				`<rep3 jr:template=""><three/></rep3></rep2></rep1></data></instance></model>`,
			want: `<data><rep1><one/><rep2><two/><rep3><three/></rep3></rep2></rep1></data>`,
		},
		{
			name:       "template_defaults_kept",
			definition: `<model><instance><data><r template=""><b>0</b></r></data></instance></model>`,
			want:       `<data><r><b>0</b></r></data>`,
		},
		{
			name:       "unwrapped",
			definition: `<data><a>1</a><!-- note --><b/></data>`,
			want:       `<data><a>1</a><b/></data>`,
		},
		{
			name:       "whitespace_trimmed",
			definition: "<data>\n  <a> 1 </a>\n  <b/>\n</data>",
			want:       `<data><a>1</a><b/></data>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newModel(t, tt.definition, Options{})
			if diff := cmp.Diff(tt.want, m.Serialize(SerializeOptions{})); diff != "" {
				t.Fatalf("Serialize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSerializeIrrelevant(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, `<data><a>1</a><g><b>2</b></g></data>`, Options{})
	if err := m.Node("/data/g", All, Filter{}).SetRelevant(false); err != nil {
		t.Fatalf("SetRelevant() error = %v", err)
	}

	if diff := cmp.Diff(`<data><a>1</a></data>`, m.Serialize(SerializeOptions{})); diff != "" {
		t.Fatalf("Serialize() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(`<data><a>1</a><g><b>2</b></g></data>`, m.Serialize(SerializeOptions{IncludeIrrelevant: true})); diff != "" {
		t.Fatalf("Serialize(IncludeIrrelevant) mismatch (-want +got):\n%s", diff)
	}

	if err := m.Node("/data/g", All, Filter{}).SetRelevant(true); err != nil {
		t.Fatalf("SetRelevant() error = %v", err)
	}
	if diff := cmp.Diff(`<data><a>1</a><g><b>2</b></g></data>`, m.Serialize(SerializeOptions{})); diff != "" {
		t.Fatalf("Serialize() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	const definition = `<model><instance><cascade_external id="cascade_external" version=""><country/><city/><neighborhood/>` +
		`<meta><instanceID/></meta></cascade_external></instance>` +
		`<instance id="cities" src="jr://file/cities.xml" />` +
		`<instance id="neighborhoods" src="jr://file/neighbourhoods.xml" />` +
		`<instance id="countries" src="jr://file/countries.xml" /></model>`
	const cities = `<root><item><itextId>static_instance-cities-0</itextId><country>nl</country><name>ams</name></item></root>`

	tests := []struct {
		name       string
		definition string
		external   []ExternalInstance
		want       []string
	}{
		{
			name:       "external_instances_missing",
			definition: definition,
			want: []string{
				`External instance "cities" is empty.`,
				`External instance "neighborhoods" is empty.`,
				`External instance "countries" is empty.`,
			},
		},
		{
			name:       "external_instances_populated",
			definition: definition,
			external: []ExternalInstance{
				{ID: "cities", Content: cities},
				{ID: "neighborhoods", Content: "<root/>"},
				{ID: "countries", Content: "<root/>"},
			},
		},
		{
			name:       "external_instance_invalid",
			definition: definition,
			external: []ExternalInstance{
				{ID: "cities", Content: "<root>"},
				{ID: "neighborhoods", Content: "<root/>"},
				{ID: "countries", Content: "<root/>"},
			},
			want: []string{`Error trying to parse XML instance "cities". Invalid XML: <root>`},
		},
		{
			name:       "missing_instance_id",
			definition: `<model><instance><data><a/></data></instance></model>`,
			want:       []string{missingMetaMsg},
		},
		{
			name:       "no_primary_instance",
			definition: `<model><instance/></model>`,
			want:       []string{"Invalid model. No primary instance."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, errs := newModel(t, tt.definition, Options{External: tt.external})
			if diff := cmp.Diff(tt.want, errs); diff != "" {
				t.Fatalf("Init() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMalformedDefinition(t *testing.T) {
	t.Parallel()

	m, errs := newModel(t, `<model><instance>`, Options{})
	if len(errs) != 1 || !strings.HasPrefix(errs[0], "Error trying to parse XML form definition. ") {
		t.Fatalf("Init() errors = %v", errs)
	}
	if got := m.Serialize(SerializeOptions{}); got != "" {
		t.Fatalf("Serialize() = %q, want empty", got)
	}
	if got := m.Node("", All, Filter{}).Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestSecondaryInstances(t *testing.T) {
	t.Parallel()

	const definition = `<model><instance><data><country>nl</country><meta><instanceID/></meta></data></instance>` +
		`<instance id="cities" src="jr://file/cities.xml"><existing>existing</existing></instance>` +
		`<instance id="countries"><root><item><code>nl</code><name>Netherlands</name></item></root></instance></model>`
	external := []ExternalInstance{{
		ID:      "cities",
		Content: `<root><item><country>nl</country><name>ams</name></item><item><country>nl</country><name>rtm</name></item></root>`,
	}}

	t.Run("evaluated_by_id", func(t *testing.T) {
		t.Parallel()

		m, errs := newModel(t, definition, Options{External: external})
		if len(errs) != 0 {
			t.Fatalf("Init() errors = %v", errs)
		}

		tests := []struct {
			expr string
			want string
		}{
			{expr: `instance("cities")/root/item/name`, want: "ams"},
			{expr: `count(instance("cities")/root/item[country = /data/country])`, want: "2"},
			{expr: `count(instance("cities")/existing)`, want: "0"},
			{expr: `instance('countries')/root/item[code = /data/country]/name`, want: "Netherlands"},
			{expr: `pulldata('countries', 'name', 'code', /data/country)`, want: "Netherlands"},
		}
		for _, tt := range tests {
			got, err := m.Evaluate(tt.expr, String, "", 0)
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.expr, err)
			}
			if got != tt.want {
				t.Fatalf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		}
	})

	t.Run("dropped", func(t *testing.T) {
		t.Parallel()

		m, errs := newModel(t, definition, Options{DropSecondaryInstances: true})
		if len(errs) != 0 {
			t.Fatalf("Init() errors = %v", errs)
		}
		if strings.Contains(m.Document(), "cities") {
			t.Fatalf("Document() = %s, secondary instance kept", m.Document())
		}
		got, err := m.Evaluate(`count(instance("countries")/root/item)`, Number, "", 0)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if got != float64(0) {
			t.Fatalf("Evaluate() = %v, want 0", got)
		}
	})
}

func TestInstanceIDIssued(t *testing.T) {
	t.Parallel()

	m, errs := newModel(t, `<model><instance><a><meta><instanceID/></meta></a></instance></model>`, Options{})
	if len(errs) != 0 {
		t.Fatalf("Init() errors = %v", errs)
	}
	id := m.InstanceID()
	if len(id) != 41 || !strings.HasPrefix(id, "uuid:") {
		t.Fatalf("InstanceID() = %q, want uuid:<v4>", id)
	}
	if got := m.DeprecatedID(); got != "" {
		t.Fatalf("DeprecatedID() = %q, want empty", got)
	}
}

func TestValidateConstraintAndType(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, `<data><n>5</n><t>abc</t><e/><d>2012-07-24</d><r><v>1</v></r><r><v>2</v></r></data>`, Options{})

	tests := []struct {
		name       string
		path       string
		index      int
		constraint string
		xmlType    string
		want       bool
		wantErr    error
	}{
		{name: "valid_type_and_constraint", path: "/data/n", index: All, constraint: ". > 3", xmlType: "int", want: true},
		{name: "constraint_fails", path: "/data/n", index: All, constraint: ". > 10", xmlType: "int", want: false},
		{name: "type_fails", path: "/data/t", index: All, xmlType: "int", want: false},
		{name: "empty_is_valid", path: "/data/e", index: All, constraint: "false()", xmlType: "int", want: true},
		{name: "date", path: "/data/d", index: All, constraint: `. > "2012-01-01"`, xmlType: "date", want: true},
		{name: "constraint_in_repeat", path: "/data/r/v", index: 1, constraint: ". = /data/r/v", xmlType: "int", want: true},
		{name: "multiple_nodes", path: "/data/r/v", index: All, xmlType: "int", wantErr: ErrNotSingleNode},
		{name: "invalid_constraint", path: "/data/n", index: All, constraint: ". >", xmlType: "int", wantErr: xpath.ErrInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := <-m.Node(tt.path, tt.index, Filter{}).ValidateConstraintAndType(context.Background(), tt.constraint, tt.xmlType)
			if tt.wantErr != nil {
				if !errors.Is(got.Err, tt.wantErr) {
					t.Fatalf("ValidateConstraintAndType() error = %v, want %v", got.Err, tt.wantErr)
				}
				return
			}
			if got.Err != nil {
				t.Fatalf("ValidateConstraintAndType() error = %v", got.Err)
			}
			if got.Valid != tt.want {
				t.Fatalf("ValidateConstraintAndType() = %v, want %v", got.Valid, tt.want)
			}
		})
	}
}

func TestValidateSnapshotsValue(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, `<data><n>5</n></data>`, Options{})
	results := m.Node("/data/n", All, Filter{}).ValidateConstraintAndType(context.Background(), "", "int")
	if _, err := m.Node("/data/n", All, Filter{}).SetValue("x", "string"); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}

	got := <-results
	if got.Value != "5" || !got.Valid {
		t.Fatalf("ValidateConstraintAndType() = %+v, want valid snapshot of 5", got)
	}
}

func TestValidateAll(t *testing.T) {
	t.Parallel()

	m, _ := newModel(t, `<data><a>1</a><b>x</b><c>30</c></data>`, Options{})

	got, err := m.ValidateAll(context.Background(), []ValidationRequest{
		{Path: "/data/a", Index: All, Type: "int"},
		{Path: "/data/b", Index: All, Type: "int"},
		{Path: "/data/c", Index: All, Type: "int", Constraint: ". > /data/a"},
	})
	if err != nil {
		t.Fatalf("ValidateAll() error = %v", err)
	}
	if diff := cmp.Diff([]bool{true, false, true}, got); diff != "" {
		t.Fatalf("ValidateAll() mismatch (-want +got):\n%s", diff)
	}

	_, err = m.ValidateAll(context.Background(), []ValidationRequest{
		{Path: "/data/a", Index: All, Type: "int"},
		{Path: "/data/missing", Index: All, Type: "int"},
	})
	if !errors.Is(err, ErrNotSingleNode) {
		t.Fatalf("ValidateAll() error = %v, want %v", err, ErrNotSingleNode)
	}
}

func TestParseResultType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    ResultType
		wantErr bool
	}{
		{input: "", want: String},
		{input: "string", want: String},
		{input: "Boolean", want: Boolean},
		{input: "number", want: Number},
		{input: "nodes", want: Nodes},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := ParseResultType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResultType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("ParseResultType() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Package model owns the form instance tree: loading, queries, value and
// structural mutations, record merging and serialization.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/jacoelho/xformdoc/internal/notify"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

const (
	// OrdinalNamespace qualifies the ordinal attributes stamped on repeats.
	OrdinalNamespace = "http://enketo.org/xforms"
	// JavaRosaNamespace qualifies jr:template.
	JavaRosaNamespace = "http://openrosa.org/javarosa"

	ordinalPrefix  = "enk"
	ordinalAttr    = "ordinal"
	lastUsedAttr   = "last-used-ordinal"
	anchorPrefix   = "repeat:"
	missingMetaMsg = "Invalid primary instance. Missing instanceID node."
)

var (
	// ErrMutationRejected is returned by SetValue when the nodeset does not
	// match exactly one node.
	ErrMutationRejected = errors.New("mutation rejected")
	// ErrDifferentRoots is wrapped by MergeError when the record root does
	// not match the primary instance root.
	ErrDifferentRoots = errors.New("different root nodes")
	// ErrNoRepeat is returned when a clone has neither a source element nor
	// a template.
	ErrNoRepeat = errors.New("no repeat to clone")
	// ErrNotSingleNode is reported by validations that do not target
	// exactly one node.
	ErrNotSingleNode = errors.New("expected exactly one node")
)

// MergeError reports a record that could not be merged. The canonical tree
// is left untouched.
type MergeError struct {
	Cause string
	Err   error
}

func (e *MergeError) Error() string {
	return "Error trying to parse XML record. " + e.Cause
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// ExternalInstance is caller-supplied content for an <instance src=...>.
type ExternalInstance struct {
	ID      string
	Content string
}

// Options configures a Model.
type Options struct {
	// DropSecondaryInstances removes every instance but the primary one.
	DropSecondaryInstances bool
	External               []ExternalInstance
	// Record is an edit record merged into the primary instance at Init.
	Record string
	// UnsubmittedRecord keeps the record's instanceID instead of
	// deprecating it.
	UnsubmittedRecord bool
	// RepeatOrdinals stamps ordinals on repeats cloned by SetRepeatCount.
	RepeatOrdinals bool
	Logger         *slog.Logger
}

type seriesKey struct {
	parent xmltree.NodeID
	name   string
}

// Model is a form instance document. It is safe for concurrent use; events
// are published after the triggering mutation releases its lock.
type Model struct {
	mu         sync.RWMutex
	definition string
	opts       Options
	logger     *slog.Logger
	events     *notify.Notifier

	tree    *xmltree.Tree
	root    xmltree.NodeID
	wrapped bool

	// templates holds detached clone sources keyed by generic repeat path.
	templates map[string]xmltree.NodeID
	explicit  map[string]bool
	repeats   map[string]bool
	retained  map[seriesKey]int
	pending   []notify.Event
}

// New prepares a model. Nothing is parsed until Init.
func New(definition string, opts Options) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		definition: definition,
		opts:       opts,
		logger:     logger,
		events:     notify.New(),
		tree:       xmltree.New(),
		root:       xmltree.None,
		templates:  map[string]xmltree.NodeID{},
		explicit:   map[string]bool{},
		repeats:    map[string]bool{},
		retained:   map[seriesKey]int{},
	}
}

// Subscribe registers a handler for mutation events.
func (m *Model) Subscribe(handler notify.Handler) func() {
	return m.events.Subscribe(handler)
}

// Init parses the definition, loads external instances, extracts templates,
// merges the record and reconciles metadata. It returns the load errors;
// the model stays usable with whatever could be loaded.
func (m *Model) Init() []string {
	var errs []string
	_ = m.write(func() error {
		errs = m.load()
		return nil
	})
	for _, msg := range errs {
		m.logger.Debug("load error", "error", msg)
	}
	return errs
}

func (m *Model) write(fn func() error) error {
	m.mu.Lock()
	err := fn()
	events := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, event := range events {
		m.events.Publish(event)
	}
	return err
}

func (m *Model) queue(event notify.Event) {
	m.pending = append(m.pending, event)
}

func (m *Model) load() []string {
	tree, err := xmltree.ParseString(m.definition)
	if err != nil {
		return []string{"Error trying to parse XML form definition. " + err.Error()}
	}
	m.tree = tree
	m.locateInstances()

	errs := m.loadSecondaryInstances()
	if m.root == xmltree.None {
		return append(errs, "Invalid model. No primary instance.")
	}

	m.trim()
	m.extractTemplates()

	instanceID := m.metaNode("instanceID")
	if instanceID == xmltree.None {
		errs = append(errs, missingMetaMsg)
	}

	merged := false
	if m.opts.Record != "" && instanceID != xmltree.None {
		if err := m.mergeRecord(m.opts.Record); err != nil {
			errs = append(errs, err.Error())
		} else {
			merged = true
		}
	}
	if !merged {
		m.fillEmptySeries(m.root)
	}
	if instanceID != xmltree.None {
		m.reconcileMeta(merged)
	}
	return errs
}

func (m *Model) locateInstances() {
	doc := m.tree.DocumentElement()
	m.root = doc
	m.wrapped = false
	if m.tree.Local(doc) != "model" {
		return
	}
	if instances := m.instances(); len(instances) > 0 {
		m.wrapped = true
		m.root = xmltree.None
		if elements := m.tree.Elements(instances[0]); len(elements) > 0 {
			m.root = elements[0]
		}
	}
}

func (m *Model) instances() []xmltree.NodeID {
	var out []xmltree.NodeID
	for _, child := range m.tree.Elements(m.tree.DocumentElement()) {
		if m.tree.Local(child) == "instance" {
			out = append(out, child)
		}
	}
	return out
}

func (m *Model) loadSecondaryInstances() []string {
	if !m.wrapped {
		return nil
	}
	var errs []string
	for _, instance := range m.instances()[1:] {
		if m.opts.DropSecondaryInstances {
			m.tree.Detach(instance)
			continue
		}
		if _, ok := m.tree.Attr(instance, "", "src"); !ok {
			continue
		}
		id, _ := m.tree.Attr(instance, "", "id")
		if msg := m.loadExternal(instance, id); msg != "" {
			errs = append(errs, msg)
		}
	}
	return errs
}

func (m *Model) loadExternal(instance xmltree.NodeID, id string) string {
	var content string
	for _, external := range m.opts.External {
		if external.ID == id {
			content = external.Content
			break
		}
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Sprintf(`External instance "%s" is empty.`, id)
	}
	src, err := xmltree.ParseString(content)
	if err != nil {
		m.logger.Debug("external instance rejected", "id", id, "error", err)
		return fmt.Sprintf(`Error trying to parse XML instance "%s". Invalid XML: %s`, id, content)
	}
	m.tree.RemoveChildren(instance)
	m.tree.AppendChild(instance, m.tree.ImportSubtree(src, src.DocumentElement()))
	return ""
}

// trim drops whitespace-only text between elements and trims leaf values of
// the primary instance.
func (m *Model) trim() {
	m.tree.Walk(m.root, func(id xmltree.NodeID) bool {
		if !m.tree.IsElement(id) {
			return false
		}
		if m.tree.HasElementChildren(id) {
			for _, child := range m.tree.Children(id) {
				if m.tree.Kind(child) == xmltree.TextNode && strings.TrimSpace(m.tree.Text(child)) == "" {
					m.tree.Detach(child)
				}
			}
			return true
		}
		if text := m.tree.Text(id); strings.TrimSpace(text) != text {
			m.tree.SetText(id, strings.TrimSpace(text))
		}
		return false
	})
}

// extractTemplates detaches every template="" or jr:template="" element,
// innermost first, leaving an anchor where it was.
func (m *Model) extractTemplates() {
	var found []xmltree.NodeID
	m.tree.Walk(m.root, func(id xmltree.NodeID) bool {
		if !m.tree.IsElement(id) {
			return false
		}
		if id != m.root && slices.ContainsFunc(m.tree.Attrs(id), isTemplateAttr) {
			found = append(found, id)
		}
		return true
	})

	for i := len(found) - 1; i >= 0; i-- {
		id := found[i]
		path := m.genericPath(id)
		m.tree.RemoveAttrFunc(id, isTemplateAttr)
		m.ensureAnchor(id, path)
		m.tree.Detach(id)
		if _, ok := m.templates[path]; !ok {
			m.templates[path] = id
			m.explicit[path] = true
		}
		m.repeats[path] = true
	}
}

// isTemplateAttr matches template="" and jr:template="", whatever jr is
// bound to.
func isTemplateAttr(attr xmltree.Attr) bool {
	if attr.Name.Local != "template" {
		return false
	}
	return attr.Name.Space == "" || attr.Name.Space == JavaRosaNamespace || attr.Name.Prefix == "jr"
}

func isOrdinalAttr(attr xmltree.Attr) bool {
	return attr.Name.Space == OrdinalNamespace && (attr.Name.Local == ordinalAttr || attr.Name.Local == lastUsedAttr)
}

// Document serializes the whole model, secondary instances included,
// without comments.
func (m *Model) Document() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.String(xmltree.DocumentID, xmltree.WriteOptions{})
}

// Wrapped reports whether the definition nests instances in a model element.
func (m *Model) Wrapped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wrapped
}

package model

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/jacoelho/xformdoc/internal/notify"
	"github.com/jacoelho/xformdoc/internal/number"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// CloneRepeat appends a copy of the repeat instance at sourceIndex to its
// series. An out-of-range index clones the last instance; an empty series
// is instantiated from its template. The copy has empty leaves and one
// instance per nested series. With trackOrdinals the copy receives the
// next unused ordinal of its series.
func (m *Model) CloneRepeat(path string, sourceIndex int, trackOrdinals bool) error {
	return m.write(func() error {
		_, err := m.cloneRepeat(path, sourceIndex, trackOrdinals)
		return err
	})
}

func (m *Model) cloneRepeat(path string, sourceIndex int, track bool) (xmltree.NodeID, error) {
	matches, err := m.elements(path)
	if err != nil {
		return xmltree.None, err
	}

	var clone xmltree.NodeID
	var repeatPath string
	if len(matches) == 0 {
		repeatPath = genericPathOf(path)
		anchors := m.anchors(m.root, repeatPath)
		if len(anchors) == 0 {
			return xmltree.None, fmt.Errorf("%w: %s", ErrNoRepeat, path)
		}
		clone = m.instantiate(repeatPath)
		if clone == xmltree.None {
			return xmltree.None, fmt.Errorf("%w: %s has no template", ErrNoRepeat, path)
		}
		m.tree.InsertAfter(anchors[min(max(sourceIndex, 0), len(anchors)-1)], clone)
	} else {
		source := matches[len(matches)-1]
		if sourceIndex >= 0 && sourceIndex < len(matches) {
			source = matches[sourceIndex]
		}
		repeatPath = m.genericPath(source)
		series := m.series(source)
		clone = m.derive(source, false)
		m.fillEmptySeries(clone)
		m.tree.InsertAfter(series[len(series)-1], clone)
	}
	m.repeats[repeatPath] = true

	if track {
		m.stampOrdinals(clone)
	}

	position, _ := m.siblingPosition(clone)
	event := notify.NewEvent(notify.NodeAdded, repeatPath, m.leafNames(clone)...)
	event.RepeatPath, event.RepeatPosition = repeatPath, position
	m.queue(event)
	m.logger.Debug("repeat cloned", "path", repeatPath, "position", position)
	return clone, nil
}

// derive returns a detached copy of src usable as a clone pattern: ordinal
// and template flags stripped, nested series cut to their first instance
// and, unless keepValues, leaf values emptied.
func (m *Model) derive(src xmltree.NodeID, keepValues bool) xmltree.NodeID {
	clone := m.tree.CloneSubtree(src)
	m.tree.Walk(clone, func(id xmltree.NodeID) bool {
		if !m.tree.IsElement(id) {
			return false
		}
		m.tree.RemoveAttrFunc(id, func(attr xmltree.Attr) bool {
			return isOrdinalAttr(attr) || isTemplateAttr(attr)
		})
		m.tree.SetIrrelevant(id, false)

		seen := map[string]bool{}
		for _, child := range m.tree.Elements(id) {
			name := m.tree.Name(child).Qualified()
			if seen[name] {
				m.tree.Detach(child)
				continue
			}
			seen[name] = true
		}
		if !keepValues && !m.tree.HasElementChildren(id) {
			m.tree.SetText(id, "")
		}
		return true
	})
	return clone
}

// instantiate copies the template stored for path, filling nested series
// that are empty but have templates of their own.
func (m *Model) instantiate(path string) xmltree.NodeID {
	template, ok := m.templates[path]
	if !ok {
		return xmltree.None
	}
	clone := m.derive(template, m.explicit[path])
	m.fillEmptySeries(clone)
	return clone
}

type anchor struct {
	id   xmltree.NodeID
	path string
}

func anchorText(path string) string {
	return anchorPrefix + path
}

// anchorsIn lists every repeat anchor inside scope in document order.
func (m *Model) anchorsIn(scope xmltree.NodeID) []anchor {
	var out []anchor
	m.tree.Walk(scope, func(id xmltree.NodeID) bool {
		if m.tree.Kind(id) == xmltree.CommentNode {
			if path, ok := strings.CutPrefix(m.tree.Text(id), anchorPrefix); ok {
				out = append(out, anchor{id: id, path: path})
			}
			return false
		}
		return m.tree.IsElement(id)
	})
	return out
}

// anchors lists the anchors for path inside scope.
func (m *Model) anchors(scope xmltree.NodeID, path string) []xmltree.NodeID {
	var out []xmltree.NodeID
	for _, a := range m.anchorsIn(scope) {
		if a.path == path {
			out = append(out, a.id)
		}
	}
	return out
}

// ensureAnchor places an anchor for path before id unless its parent
// already has one.
func (m *Model) ensureAnchor(id xmltree.NodeID, path string) {
	parent := m.tree.Parent(id)
	for _, child := range m.tree.Children(parent) {
		if m.tree.Kind(child) == xmltree.CommentNode && m.tree.Text(child) == anchorText(path) {
			return
		}
	}
	m.tree.InsertBefore(parent, m.tree.NewComment(anchorText(path)), id)
}

// fillEmptySeries gives every empty series under scope that has a template
// one instance.
func (m *Model) fillEmptySeries(scope xmltree.NodeID) {
	for _, a := range m.anchorsIn(scope) {
		if len(m.members(m.tree.Parent(a.id), lastStep(a.path))) > 0 {
			continue
		}
		if instance := m.instantiate(a.path); instance != xmltree.None {
			m.tree.InsertAfter(a.id, instance)
		}
	}
}

// keepTemplate makes sure an emptied series can still be cloned.
func (m *Model) keepTemplate(id xmltree.NodeID, path string) {
	m.ensureAnchor(id, path)
	if _, ok := m.templates[path]; !ok {
		m.templates[path] = m.derive(id, false)
	}
}

// ExtractFakeTemplates registers paths as repeats. Series without an
// explicit template get an anchor and a template derived from their first
// instance, which stays in the data. It stops at the first path that
// fails to evaluate.
func (m *Model) ExtractFakeTemplates(paths []string) error {
	return m.write(func() error {
		for _, path := range paths {
			if err := m.extractFakeTemplate(genericPathOf(path)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Model) extractFakeTemplate(path string) error {
	if m.explicit[path] {
		m.repeats[path] = true
		return nil
	}
	ids, err := m.elements(path)
	if err != nil {
		return fmt.Errorf("fake template %s: %w", path, err)
	}
	m.repeats[path] = true
	seen := map[xmltree.NodeID]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		series := m.series(id)
		for _, member := range series {
			seen[member] = true
		}
		m.ensureAnchor(series[0], path)
		if _, ok := m.templates[path]; !ok {
			m.templates[path] = m.derive(series[0], false)
		}
	}
	return nil
}

// GetRepeatSeries groups the matches of path into series and returns the
// series at index, in document order.
func (m *Model) GetRepeatSeries(path string, index int) []xmltree.NodeID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, err := m.elements(path)
	if err != nil {
		return nil
	}
	seen := map[xmltree.NodeID]bool{}
	var all [][]xmltree.NodeID
	for _, id := range ids {
		if seen[id] {
			continue
		}
		series := m.series(id)
		for _, member := range series {
			seen[member] = true
		}
		all = append(all, series)
	}
	if index < 0 || index >= len(all) {
		return nil
	}
	return all[index]
}

// SetRepeatCount grows or shrinks the repeat at path to count instances.
// Counts that are empty, non-numeric or negative mean zero.
func (m *Model) SetRepeatCount(path, count string) error {
	want := 0
	if f := number.Parse(strings.TrimSpace(count)); !math.IsNaN(f) && f > 0 {
		want = int(math.Min(math.Trunc(f), math.MaxInt32))
	}

	return m.write(func() error {
		ids, err := m.elements(path)
		if err != nil {
			return err
		}
		for have := len(ids); have < want; have++ {
			if _, err := m.cloneRepeat(path, All, m.opts.RepeatOrdinals); err != nil {
				return err
			}
		}
		for i := len(ids) - 1; i >= want; i-- {
			m.remove(ids[i])
		}
		return nil
	})
}

func (m *Model) ordinalName(local string) xmltree.Name {
	prefix, ok := m.tree.LookupPrefix(m.root, OrdinalNamespace)
	if !ok {
		prefix = ordinalPrefix
		m.tree.DeclareNamespace(m.root, prefix, OrdinalNamespace)
	}
	return xmltree.Name{Space: OrdinalNamespace, Prefix: prefix, Local: local}
}

func (m *Model) ordinal(id xmltree.NodeID, local string) (int, bool) {
	value, ok := m.tree.Attr(id, OrdinalNamespace, local)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	return n, err == nil
}

func (m *Model) setOrdinal(id xmltree.NodeID, local string, value int) {
	m.tree.SetAttr(id, xmltree.Attr{Name: m.ordinalName(local), Value: strconv.Itoa(value)})
}

// stampOrdinals numbers a freshly inserted clone within its series and
// restarts numbering at 1 for every known nested repeat inside it.
func (m *Model) stampOrdinals(clone xmltree.NodeID) {
	series := m.series(clone)
	first := series[0]
	key := seriesKey{parent: m.tree.Parent(first), name: m.tree.Name(first).Qualified()}

	last, ok := m.ordinal(first, lastUsedAttr)
	if !ok {
		last = m.retained[key]
		m.setOrdinal(first, lastUsedAttr, last)
	}
	delete(m.retained, key)
	for _, member := range series {
		if n, ok := m.ordinal(member, ordinalAttr); ok && member != clone {
			last = max(last, n)
		}
	}

	for _, member := range series {
		if member == clone {
			continue
		}
		if _, ok := m.ordinal(member, ordinalAttr); !ok {
			last++
			m.setOrdinal(member, ordinalAttr, last)
		}
	}
	last++
	m.setOrdinal(clone, ordinalAttr, last)
	m.setOrdinal(first, lastUsedAttr, last)

	m.tree.Walk(clone, func(id xmltree.NodeID) bool {
		if !m.tree.IsElement(id) {
			return false
		}
		if id != clone && m.isRepeat(id) {
			m.setOrdinal(id, lastUsedAttr, 1)
			m.setOrdinal(id, ordinalAttr, 1)
		}
		return true
	})
}

// migrateLastUsed moves the last-used marker of a departing first element
// to its successor, or to the retained table when the series empties.
func (m *Model) migrateLastUsed(id xmltree.NodeID, series []xmltree.NodeID) {
	last, ok := m.ordinal(id, lastUsedAttr)
	if !ok {
		return
	}
	remaining := slices.DeleteFunc(slices.Clone(series), func(member xmltree.NodeID) bool { return member == id })
	if len(remaining) > 0 {
		m.setOrdinal(remaining[0], lastUsedAttr, last)
		return
	}
	m.retained[seriesKey{parent: m.tree.Parent(id), name: m.tree.Name(id).Qualified()}] = last
}

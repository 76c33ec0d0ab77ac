package model

import (
	"slices"
	"strconv"
	"strings"

	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// positionMode controls which steps of a built path carry a [n].
type positionMode int

const (
	noPositions positionMode = iota
	// laterPositions marks members after the first; [1] is implied.
	laterPositions
	// allPositions marks every member of a sibling run, [1] included, so
	// the path selects exactly one node.
	allPositions
)

// path builds a /-separated path from id up to, but excluding, the first
// ancestor for which stop returns true.
func (m *Model) path(id xmltree.NodeID, stop func(xmltree.NodeID) bool, mode positionMode) string {
	var steps []string
	for current := id; m.tree.IsElement(current) && !stop(current); current = m.tree.Parent(current) {
		step := m.tree.Name(current).Qualified()
		if mode != noPositions {
			position, count := m.siblingPosition(current)
			if count > 1 && (mode == allPositions || position > 1) {
				step += "[" + strconv.Itoa(position) + "]"
			}
		}
		steps = append(steps, step)
	}
	slices.Reverse(steps)
	return "/" + strings.Join(steps, "/")
}

// genericPath is the position-free path of id from the primary root.
func (m *Model) genericPath(id xmltree.NodeID) string {
	top := m.tree.Parent(m.root)
	return m.path(id, func(current xmltree.NodeID) bool { return current == top }, noPositions)
}

// absolutePath is the positioned path of id as it appears in rewritten
// expressions.
func (m *Model) absolutePath(id xmltree.NodeID) string {
	if !m.tree.IsElement(id) {
		return ""
	}
	if m.wrapped && (id == m.root || m.tree.IsAncestor(m.root, id)) {
		top := m.tree.Parent(m.root)
		return primaryRoot + m.path(id, func(current xmltree.NodeID) bool { return current == top }, allPositions)
	}
	return m.path(id, func(xmltree.NodeID) bool { return false }, allPositions)
}

// XPath returns the path of id. With rootName the path starts below the
// closest ancestor of that name. With positions, steps after the first of
// their same-named siblings carry a 1-based [n].
func (m *Model) XPath(id xmltree.NodeID, rootName string, positions bool) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mode := noPositions
	if positions {
		mode = laterPositions
	}
	return m.path(id, func(current xmltree.NodeID) bool {
		return rootName != "" && m.tree.Name(current).Qualified() == rootName
	}, mode)
}

// siblingPosition returns the 1-based position of id among the element
// children of its parent sharing its name, and how many there are.
func (m *Model) siblingPosition(id xmltree.NodeID) (int, int) {
	name := m.tree.Name(id).Qualified()
	position, count := 0, 0
	for _, sibling := range m.tree.Elements(m.tree.Parent(id)) {
		if m.tree.Name(sibling).Qualified() != name {
			continue
		}
		count++
		if sibling == id {
			position = count
		}
	}
	return position, count
}

// members returns the element children of parent named name.
func (m *Model) members(parent xmltree.NodeID, name string) []xmltree.NodeID {
	var out []xmltree.NodeID
	for _, child := range m.tree.Elements(parent) {
		if m.tree.Name(child).Qualified() == name {
			out = append(out, child)
		}
	}
	return out
}

// series returns the contiguous run of same-named element siblings id
// belongs to.
func (m *Model) series(id xmltree.NodeID) []xmltree.NodeID {
	name := m.tree.Name(id).Qualified()
	same := func(other xmltree.NodeID) bool {
		return other != xmltree.None && m.tree.Name(other).Qualified() == name
	}
	first := id
	for previous := m.tree.PreviousElement(first); same(previous); previous = m.tree.PreviousElement(previous) {
		first = previous
	}
	var out []xmltree.NodeID
	for current := first; same(current); current = m.tree.NextElement(current) {
		out = append(out, current)
	}
	return out
}

// isRepeat reports whether id belongs to a repeat series: a known repeat
// path, a path with a template, or a run of more than one sibling.
func (m *Model) isRepeat(id xmltree.NodeID) bool {
	if id == m.root || !m.tree.IsElement(id) {
		return false
	}
	path := m.genericPath(id)
	if m.repeats[path] {
		return true
	}
	if _, ok := m.templates[path]; ok {
		return true
	}
	return len(m.series(id)) > 1
}

// repeatContext returns the innermost repeat containing id, or id itself
// when it is a repeat, with its 1-based position.
func (m *Model) repeatContext(id xmltree.NodeID) (string, int) {
	for current := id; current != xmltree.None && current != m.root; current = m.tree.Parent(current) {
		if m.isRepeat(current) {
			position, _ := m.siblingPosition(current)
			return m.genericPath(current), position
		}
	}
	return "", 0
}

func (m *Model) leafNames(id xmltree.NodeID) []string {
	var names []string
	m.tree.Walk(id, func(current xmltree.NodeID) bool {
		if !m.tree.IsElement(current) {
			return false
		}
		if !m.tree.HasElementChildren(current) {
			names = append(names, m.tree.Name(current).Qualified())
			return false
		}
		return true
	})
	return names
}

func lastStep(path string) string {
	return path[strings.LastIndexByte(path, '/')+1:]
}

// genericPathOf strips predicates and the primary root prefix from a plain
// location path.
func genericPathOf(expr string) string {
	expr = strings.TrimPrefix(strings.TrimSpace(expr), primaryRoot)
	var b strings.Builder
	depth := 0
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c == '[':
			depth++
		case c == ']':
			depth--
		case depth == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}

package model

import (
	"slices"

	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// MergeRecord merges an edit record into the primary instance. Elements
// match by qualified name and position; record values, empty ones
// included, replace defaults; repeats grow to the record's count; the
// canonical order is kept. A root mismatch or unparsable record returns a
// *MergeError and leaves the tree untouched.
func (m *Model) MergeRecord(record string) error {
	return m.write(func() error {
		return m.mergeRecord(record)
	})
}

func (m *Model) mergeRecord(record string) error {
	src, err := xmltree.ParseString(record)
	if err != nil {
		return &MergeError{Cause: err.Error(), Err: err}
	}
	recordRoot := src.DocumentElement()
	if m.root == xmltree.None || src.Name(recordRoot).Qualified() != m.tree.Name(m.root).Qualified() {
		return &MergeError{Cause: "Different root nodes", Err: ErrDifferentRoots}
	}

	for _, decl := range src.Namespaces(recordRoot) {
		if decl.Prefix == "" {
			continue
		}
		if uri, ok := m.tree.LookupNamespace(m.root, decl.Prefix); ok && uri == decl.URI {
			continue
		}
		m.tree.DeclareNamespace(m.root, decl.Prefix, decl.URI)
	}

	m.mergeElement(src, recordRoot, m.root)
	m.logger.Debug("record merged", "root", m.tree.Name(m.root).Qualified())
	return nil
}

func (m *Model) mergeElement(src *xmltree.Tree, rec, canon xmltree.NodeID) {
	m.mergeAttributes(src, rec, canon)

	var children []xmltree.NodeID
	for _, child := range src.Elements(rec) {
		if !slices.ContainsFunc(src.Attrs(child), isTemplateAttr) {
			children = append(children, child)
		}
	}
	if len(children) == 0 {
		if !m.tree.HasElementChildren(canon) {
			m.tree.SetText(canon, src.Text(rec))
		}
		return
	}

	var names []string
	groups := map[string][]xmltree.NodeID{}
	for _, child := range children {
		name := src.Name(child).Qualified()
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], child)
	}

	parentPath := m.genericPath(canon)
	for _, name := range names {
		records := groups[name]
		path := parentPath + "/" + name
		existing := m.members(canon, name)

		if len(existing) == 0 {
			first := m.instantiateAtAnchor(canon, path)
			if first == xmltree.None {
				for _, r := range records {
					m.appendRecordOnly(src, r, canon)
				}
				continue
			}
			existing = append(existing, first)
		}

		for len(existing) < len(records) {
			var clone xmltree.NodeID
			if _, ok := m.templates[path]; ok {
				clone = m.instantiate(path)
			} else {
				clone = m.derive(existing[0], false)
				m.fillEmptySeries(clone)
			}
			m.tree.InsertAfter(existing[len(existing)-1], clone)
			existing = append(existing, clone)
			m.repeats[path] = true
		}

		for i, r := range records {
			m.mergeElement(src, r, existing[i])
		}
	}
}

func (m *Model) instantiateAtAnchor(parent xmltree.NodeID, path string) xmltree.NodeID {
	for _, child := range m.tree.Children(parent) {
		if m.tree.Kind(child) != xmltree.CommentNode || m.tree.Text(child) != anchorText(path) {
			continue
		}
		instance := m.instantiate(path)
		if instance != xmltree.None {
			m.tree.InsertAfter(child, instance)
		}
		return instance
	}
	return xmltree.None
}

// mergeAttributes copies record attributes, rebinding namespaced ones to a
// prefix in scope on the canonical side. The canonical root keeps its own
// attributes.
func (m *Model) mergeAttributes(src *xmltree.Tree, rec, canon xmltree.NodeID) {
	for _, attr := range src.Attrs(rec) {
		if isTemplateAttr(attr) {
			continue
		}
		if canon == m.root {
			if _, ok := m.tree.Attr(canon, attr.Name.Space, attr.Name.Local); ok {
				continue
			}
		}
		if attr.Name.Space != "" {
			attr.Name.Prefix = m.bindPrefix(canon, attr.Name.Prefix, attr.Name.Space)
		}
		m.tree.SetAttr(canon, attr)
	}
}

func (m *Model) bindPrefix(id xmltree.NodeID, preferred, uri string) string {
	if prefix, ok := m.tree.LookupPrefix(id, uri); ok {
		return prefix
	}
	if preferred == "" {
		preferred = "ns"
	}
	m.tree.DeclareNamespace(id, preferred, uri)
	return preferred
}

// appendRecordOnly deep-copies a record element that has no canonical
// counterpart. Comments and template-flagged descendants are dropped, and
// declarations already in scope are not repeated.
func (m *Model) appendRecordOnly(src *xmltree.Tree, rec, canon xmltree.NodeID) {
	copied := m.tree.ImportSubtree(src, rec)
	m.tree.AppendChild(canon, copied)

	var drop []xmltree.NodeID
	m.tree.Walk(copied, func(id xmltree.NodeID) bool {
		switch m.tree.Kind(id) {
		case xmltree.CommentNode:
			drop = append(drop, id)
			return false
		case xmltree.ElementNode:
			if id != copied && slices.ContainsFunc(m.tree.Attrs(id), isTemplateAttr) {
				drop = append(drop, id)
				return false
			}
			m.pruneDeclarations(id)
			return true
		}
		return false
	})
	for _, id := range drop {
		m.tree.Detach(id)
	}
}

func (m *Model) pruneDeclarations(id xmltree.NodeID) {
	parent := m.tree.Parent(id)
	decls := m.tree.Namespaces(id)
	for _, decl := range decls {
		if uri, ok := m.tree.LookupNamespace(parent, decl.Prefix); ok && uri == decl.URI {
			m.tree.RemoveNamespace(id, decl.Prefix)
		}
	}
}

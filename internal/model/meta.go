package model

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jacoelho/xformdoc/internal/xmltree"
)

var newInstanceID = func() string {
	return "uuid:" + uuid.NewString()
}

// SetInstanceIDForTest replaces the instanceID generator and returns a
// function restoring it.
func SetInstanceIDForTest(fn func() string) func() {
	previous := newInstanceID
	newInstanceID = fn
	return func() {
		newInstanceID = previous
	}
}

// metaNode finds a child of a meta element of the primary root by local
// name.
func (m *Model) metaNode(local string) xmltree.NodeID {
	for _, meta := range m.tree.Elements(m.root) {
		if m.tree.Local(meta) != "meta" {
			continue
		}
		for _, child := range m.tree.Elements(meta) {
			if m.tree.Local(child) == local {
				return child
			}
		}
	}
	return xmltree.None
}

// reconcileMeta issues instance ids. A merged, submitted record has its
// instanceID moved to deprecatedID and replaced; otherwise an empty
// instanceID is populated.
func (m *Model) reconcileMeta(merged bool) {
	instanceID := m.metaNode("instanceID")
	if instanceID == xmltree.None {
		return
	}
	current := strings.TrimSpace(m.tree.TextContent(instanceID))

	if merged && !m.opts.UnsubmittedRecord && current != "" {
		m.setValue(instanceID, newInstanceID(), "")
		deprecated := m.metaNode("deprecatedID")
		if deprecated == xmltree.None {
			name := m.tree.Name(instanceID)
			name.Local = "deprecatedID"
			deprecated = m.tree.NewElement(name)
			m.tree.InsertAfter(instanceID, deprecated)
		}
		m.setValue(deprecated, current, "")
		return
	}
	if current == "" {
		m.setValue(instanceID, newInstanceID(), "")
	}
}

// InstanceID returns the value of meta/instanceID, or "".
func (m *Model) InstanceID() string {
	return m.metaValue("instanceID")
}

// DeprecatedID returns the value of meta/deprecatedID, or "".
func (m *Model) DeprecatedID() string {
	return m.metaValue("deprecatedID")
}

func (m *Model) metaValue(local string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.root == xmltree.None {
		return ""
	}
	id := m.metaNode(local)
	if id == xmltree.None {
		return ""
	}
	return m.tree.TextContent(id)
}

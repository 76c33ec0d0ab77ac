package model

import (
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// SerializeOptions controls Serialize.
type SerializeOptions struct {
	// IncludeIrrelevant keeps elements flagged irrelevant.
	IncludeIrrelevant bool
}

// Serialize returns the primary instance as submitted: empty elements
// self-close, templates and comments are gone and namespace declarations
// are kept.
func (m *Model) Serialize(opts SerializeOptions) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.root == xmltree.None {
		return ""
	}
	return m.tree.String(m.root, xmltree.WriteOptions{
		Skip: func(id xmltree.NodeID) bool {
			return !opts.IncludeIrrelevant && m.tree.Irrelevant(id)
		},
	})
}

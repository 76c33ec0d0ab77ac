package model

import (
	"fmt"
	"strings"

	"github.com/jacoelho/xformdoc/internal/notify"
	"github.com/jacoelho/xformdoc/internal/types"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// All selects every match of a nodeset query.
const All = -1

// Filter narrows nodeset matches.
type Filter struct {
	// OnlyLeaf keeps elements without element children.
	OnlyLeaf bool
	// NoEmpty keeps leaves with non-blank text. It implies OnlyLeaf.
	NoEmpty bool
}

// Nodeset is a lazy query handle. Every call re-evaluates the query against
// the current tree.
type Nodeset struct {
	m      *Model
	path   string
	index  int
	filter Filter
}

// Node returns a handle over the elements matching path. A non-negative
// index narrows the result to that 0-based match; an out-of-range index
// yields an empty nodeset.
func (m *Model) Node(path string, index int, filter Filter) *Nodeset {
	return &Nodeset{m: m, path: path, index: index, filter: filter}
}

func (n *Nodeset) get() ([]xmltree.NodeID, error) {
	ids, err := n.m.elements(n.path)
	if err != nil {
		return nil, err
	}
	tree := n.m.tree
	if n.filter.OnlyLeaf || n.filter.NoEmpty {
		kept := ids[:0]
		for _, id := range ids {
			if tree.HasElementChildren(id) {
				continue
			}
			if n.filter.NoEmpty && strings.TrimSpace(tree.TextContent(id)) == "" {
				continue
			}
			kept = append(kept, id)
		}
		ids = kept
	}
	if n.index < 0 {
		return ids, nil
	}
	if n.index >= len(ids) {
		return nil, nil
	}
	return ids[n.index : n.index+1], nil
}

// IDs returns the matched elements in document order. Query errors yield no
// matches; use Err to inspect them.
func (n *Nodeset) IDs() []xmltree.NodeID {
	n.m.mu.RLock()
	defer n.m.mu.RUnlock()
	ids, err := n.get()
	if err != nil {
		n.m.logger.Debug("nodeset query failed", "path", n.path, "error", err)
	}
	return ids
}

// Len returns the number of matched elements.
func (n *Nodeset) Len() int {
	return len(n.IDs())
}

// Err returns the query error, if any.
func (n *Nodeset) Err() error {
	n.m.mu.RLock()
	defer n.m.mu.RUnlock()
	_, err := n.get()
	return err
}

// Values returns the text of every match, in document order.
func (n *Nodeset) Values() []string {
	n.m.mu.RLock()
	defer n.m.mu.RUnlock()
	ids, _ := n.get()
	values := make([]string, 0, len(ids))
	for _, id := range ids {
		values = append(values, n.m.tree.TextContent(id))
	}
	return values
}

// SetValue converts value for xmlType and writes it to the single matched
// node. It returns ErrMutationRejected unless exactly one node matches, and
// a nil event when the stored value is unchanged.
func (n *Nodeset) SetValue(value any, xmlType string) (*notify.Event, error) {
	var event *notify.Event
	err := n.m.write(func() error {
		ids, err := n.get()
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			return fmt.Errorf("%w: %d nodes match %s", ErrMutationRejected, len(ids), n.path)
		}
		event = n.m.setValue(ids[0], types.Convert(value, xmlType), xmlType)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (m *Model) setValue(id xmltree.NodeID, value, xmlType string) *notify.Event {
	if m.tree.TextContent(id) == value {
		return nil
	}
	m.tree.SetText(id, value)
	if types.Normalize(xmlType) == types.Binary {
		if value != "" {
			m.tree.SetAttr(id, xmltree.Attr{Name: xmltree.Name{Local: "type"}, Value: "file"})
		} else {
			m.tree.RemoveAttr(id, "", "type")
		}
	}

	event := notify.NewEvent(notify.ValueChanged, m.genericPath(id), m.tree.Name(id).Qualified())
	event.RepeatPath, event.RepeatPosition = m.repeatContext(id)
	m.queue(event)
	return &event
}

// Remove deletes every matched element. Series left empty keep an anchor
// and a template so they can be cloned again.
func (n *Nodeset) Remove() error {
	return n.m.write(func() error {
		ids, err := n.get()
		if err != nil {
			return err
		}
		for _, id := range ids {
			n.m.remove(id)
		}
		return nil
	})
}

func (m *Model) remove(id xmltree.NodeID) {
	if id == m.root || !m.tree.Attached(id) {
		return
	}
	path := m.genericPath(id)
	series := m.series(id)
	repeat := m.isRepeat(id)
	position, _ := m.siblingPosition(id)
	leaves := m.leafNames(id)

	m.migrateLastUsed(id, series)
	if len(series) == 1 {
		m.keepTemplate(id, path)
	}
	parent := m.tree.Parent(id)
	m.tree.Detach(id)

	event := notify.NewEvent(notify.NodeRemoved, path, leaves...)
	if repeat {
		event.RepeatPath, event.RepeatPosition = path, position
	} else {
		event.RepeatPath, event.RepeatPosition = m.repeatContext(parent)
	}
	m.queue(event)
	m.logger.Debug("node removed", "path", path, "position", position)
}

// SetRelevant sets the relevance flag on every match. Irrelevant elements
// are left out of Serialize unless IncludeIrrelevant is set.
func (n *Nodeset) SetRelevant(relevant bool) error {
	return n.m.write(func() error {
		ids, err := n.get()
		if err != nil {
			return err
		}
		for _, id := range ids {
			n.m.tree.SetIrrelevant(id, !relevant)
		}
		return nil
	})
}

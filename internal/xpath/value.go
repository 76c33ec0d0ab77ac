package xpath

import (
	"math"
	"slices"

	"github.com/jacoelho/xformdoc/internal/number"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// Node is a nodeset member: a tree node, or one attribute of an element
// when Attr is not negative.
type Node struct {
	ID   xmltree.NodeID
	Attr int
}

// NodeOf wraps a tree node.
func NodeOf(id xmltree.NodeID) Node {
	return Node{ID: id, Attr: -1}
}

func (n Node) IsAttr() bool {
	return n.Attr >= 0
}

// NodeSet is an ordered, duplicate-free list of nodes.
type NodeSet []Node

// IDs returns the tree nodes of the set, leaving out attributes.
func (s NodeSet) IDs() []xmltree.NodeID {
	out := make([]xmltree.NodeID, 0, len(s))
	for _, n := range s {
		if !n.IsAttr() {
			out = append(out, n.ID)
		}
	}
	return out
}

func sortNodes(tree *xmltree.Tree, nodes NodeSet) NodeSet {
	slices.SortStableFunc(nodes, func(a, b Node) int {
		if a.ID != b.ID {
			return tree.Order(a.ID) - tree.Order(b.ID)
		}
		return a.Attr - b.Attr
	})
	return slices.Compact(nodes)
}

// NodeString returns the string-value of a node.
func NodeString(tree *xmltree.Tree, n Node) string {
	if n.IsAttr() {
		attrs := tree.Attrs(n.ID)
		if n.Attr < len(attrs) {
			return attrs[n.Attr].Value
		}
		return ""
	}
	if n.ID == xmltree.DocumentID {
		return tree.TextContent(tree.DocumentElement())
	}
	return tree.TextContent(n.ID)
}

// StringValue converts a result to a string. tree may be nil when value is
// not a NodeSet.
func StringValue(tree *xmltree.Tree, value any) string {
	switch current := value.(type) {
	case string:
		return current
	case float64:
		return number.Format(current)
	case bool:
		if current {
			return "true"
		}
		return "false"
	case NodeSet:
		if len(current) == 0 || tree == nil {
			return ""
		}
		return NodeString(tree, current[0])
	}
	return ""
}

// NumberValue converts a result to a number.
func NumberValue(tree *xmltree.Tree, value any) float64 {
	switch current := value.(type) {
	case float64:
		return current
	case bool:
		if current {
			return 1
		}
		return 0
	case string:
		return number.Parse(current)
	case NodeSet:
		return number.Parse(StringValue(tree, current))
	}
	return math.NaN()
}

// BooleanValue converts a result to a boolean.
func BooleanValue(value any) bool {
	switch current := value.(type) {
	case bool:
		return current
	case float64:
		return current != 0 && !math.IsNaN(current)
	case string:
		return current != ""
	case NodeSet:
		return len(current) > 0
	}
	return false
}

func typeName(value any) string {
	switch value.(type) {
	case NodeSet:
		return "node-set"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	}
	return "unknown"
}

// axisNodes lists the nodes on the axis from n that pass test, in axis
// order.
func (c evalContext) axisNodes(n Node, a axis, test nodeTest) NodeSet {
	tree := c.tree
	var out NodeSet
	add := func(id xmltree.NodeID) {
		if c.matches(NodeOf(id), a, test) {
			out = append(out, NodeOf(id))
		}
	}

	if n.IsAttr() {
		switch a {
		case axisSelf, axisDescendantOrSelf:
			if c.matches(n, a, test) {
				out = append(out, n)
			}
		case axisParent:
			add(n.ID)
		case axisAncestorOrSelf:
			if c.matches(n, a, test) {
				out = append(out, n)
			}
			fallthrough
		case axisAncestor:
			for current := n.ID; current != xmltree.None; current = tree.Parent(current) {
				add(current)
			}
		}
		return out
	}

	switch a {
	case axisChild:
		for _, child := range tree.Children(n.ID) {
			add(child)
		}
	case axisDescendant, axisDescendantOrSelf:
		tree.Walk(n.ID, func(current xmltree.NodeID) bool {
			if current != n.ID || a == axisDescendantOrSelf {
				add(current)
			}
			return true
		})
	case axisSelf:
		add(n.ID)
	case axisParent:
		if parent := tree.Parent(n.ID); parent != xmltree.None {
			add(parent)
		}
	case axisAncestor, axisAncestorOrSelf:
		current := n.ID
		if a == axisAncestor {
			current = tree.Parent(current)
		}
		for ; current != xmltree.None; current = tree.Parent(current) {
			add(current)
		}
	case axisFollowingSibling, axisPrecedingSibling:
		parent := tree.Parent(n.ID)
		if parent == xmltree.None {
			break
		}
		siblings := tree.Children(parent)
		at := slices.Index(siblings, n.ID)
		if a == axisFollowingSibling {
			for _, sibling := range siblings[at+1:] {
				add(sibling)
			}
			break
		}
		for i := at - 1; i >= 0; i-- {
			add(siblings[i])
		}
	case axisFollowing:
		for current := n.ID; current != xmltree.None; current = tree.Parent(current) {
			parent := tree.Parent(current)
			if parent == xmltree.None {
				break
			}
			siblings := tree.Children(parent)
			for _, sibling := range siblings[slices.Index(siblings, current)+1:] {
				tree.Walk(sibling, func(id xmltree.NodeID) bool {
					add(id)
					return true
				})
			}
		}
		out = sortNodes(tree, out)
	case axisPreceding:
		for current := n.ID; current != xmltree.None; current = tree.Parent(current) {
			parent := tree.Parent(current)
			if parent == xmltree.None {
				break
			}
			siblings := tree.Children(parent)
			for _, sibling := range siblings[:slices.Index(siblings, current)] {
				tree.Walk(sibling, func(id xmltree.NodeID) bool {
					add(id)
					return true
				})
			}
		}
		out = sortNodes(tree, out)
		slices.Reverse(out)
	case axisAttribute:
		if !tree.IsElement(n.ID) {
			break
		}
		for i := range tree.Attrs(n.ID) {
			candidate := Node{ID: n.ID, Attr: i}
			if c.matches(candidate, a, test) {
				out = append(out, candidate)
			}
		}
	}
	return out
}

func (c evalContext) matches(n Node, a axis, test nodeTest) bool {
	tree := c.tree
	var name xmltree.Name
	var principal bool

	if n.IsAttr() {
		attrs := tree.Attrs(n.ID)
		if n.Attr >= len(attrs) {
			return false
		}
		name = attrs[n.Attr].Name
		principal = a == axisAttribute || a == axisSelf || a == axisDescendantOrSelf || a == axisAncestorOrSelf
	} else {
		kind := tree.Kind(n.ID)
		switch test.kind {
		case testNode:
			return true
		case testText:
			return kind == xmltree.TextNode
		case testComment:
			return kind == xmltree.CommentNode
		case testProcessingInstruction:
			return false
		}
		name = tree.Name(n.ID)
		principal = kind == xmltree.ElementNode && a != axisAttribute
	}

	if !principal {
		return false
	}

	switch test.kind {
	case testNode, testAny:
		return true
	case testPrefixAny:
		return c.prefixMatches(test.prefix, name)
	case testName:
		if name.Local != test.local {
			return false
		}
		if test.prefix == "" {
			// Unprefixed attribute tests only see unprefixed attributes.
			return !n.IsAttr() || name.Prefix == ""
		}
		return c.prefixMatches(test.prefix, name)
	}
	return false
}

func (c evalContext) prefixMatches(prefix string, name xmltree.Name) bool {
	if uri, ok := c.opts.Namespaces[prefix]; ok {
		return name.Space == uri
	}
	return name.Prefix == prefix
}

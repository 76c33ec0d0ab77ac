package model

import (
	"fmt"
	"strings"

	"github.com/jacoelho/xformdoc/internal/resolver"
	"github.com/jacoelho/xformdoc/internal/xmltree"
	"github.com/jacoelho/xformdoc/internal/xpath"
)

const primaryRoot = resolver.PrimaryRoot

// ResultType selects the conversion applied to an evaluation result.
type ResultType int

const (
	String ResultType = iota
	Boolean
	Number
	Nodes
)

// ParseResultType maps a result type name to its ResultType.
func ParseResultType(name string) (ResultType, error) {
	switch strings.ToLower(name) {
	case "", "string":
		return String, nil
	case "boolean", "bool":
		return Boolean, nil
	case "number":
		return Number, nil
	case "nodes", "nodeset":
		return Nodes, nil
	default:
		return 0, fmt.Errorf("unknown result type %q", name)
	}
}

func (r ResultType) String() string {
	switch r {
	case String:
		return "string"
	case Boolean:
		return "boolean"
	case Number:
		return "number"
	case Nodes:
		return "nodes"
	default:
		return "unknown"
	}
}

// Evaluate rewrites and evaluates expr. The context is the node selected by
// contextPath and contextIndex, or the primary root when contextPath is
// empty or matches nothing. The result is a string, bool, float64 or
// xpath.NodeSet according to resultType.
func (m *Model) Evaluate(expr string, resultType ResultType, contextPath string, contextIndex int) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evaluate(expr, resultType, m.contextNode(contextPath, contextIndex))
}

func (m *Model) contextNode(path string, index int) xmltree.NodeID {
	fallback := m.root
	if fallback == xmltree.None {
		fallback = xmltree.DocumentID
	}
	if strings.TrimSpace(path) == "" {
		return fallback
	}
	ids, err := m.elements(path)
	if err != nil || len(ids) == 0 {
		return fallback
	}
	if index < 0 || index >= len(ids) {
		index = 0
	}
	return ids[index]
}

func (m *Model) evaluate(expr string, resultType ResultType, context xmltree.NodeID) (any, error) {
	rewritten, err := m.rewrite(expr, context)
	if err != nil {
		return nil, err
	}
	result, err := xpath.Evaluate(m.tree, context, rewritten, xpath.Options{})
	if err != nil {
		return nil, err
	}

	switch resultType {
	case Boolean:
		return xpath.BooleanValue(result), nil
	case Number:
		return xpath.NumberValue(m.tree, result), nil
	case Nodes:
		nodes, ok := result.(xpath.NodeSet)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not select nodes", xpath.ErrInvalidExpression, expr)
		}
		return nodes, nil
	default:
		return xpath.StringValue(m.tree, result), nil
	}
}

func (m *Model) rewrite(expr string, context xmltree.NodeID) (string, error) {
	var repeats []resolver.Repeat
	for current := context; current != xmltree.None && current != m.root; current = m.tree.Parent(current) {
		if !m.isRepeat(current) {
			continue
		}
		position, _ := m.siblingPosition(current)
		path := m.genericPath(current)
		if m.wrapped {
			path = primaryRoot + path
		}
		repeats = append(repeats, resolver.Repeat{Path: path, Position: position})
	}

	pipeline := resolver.Pipeline{
		Shift:       m.wrapped,
		ContextPath: m.absolutePath(context),
		Repeats:     repeats,
		Evaluate: func(sub string) (string, error) {
			value, err := xpath.Evaluate(m.tree, context, sub, xpath.Options{})
			if err != nil {
				return "", err
			}
			return xpath.StringValue(m.tree, value), nil
		},
	}
	return pipeline.Rewrite(expr)
}

// elements returns the element matches of path in document order. An empty
// path selects every element of the primary instance.
func (m *Model) elements(path string) ([]xmltree.NodeID, error) {
	if m.root == xmltree.None {
		return nil, nil
	}
	if strings.TrimSpace(path) == "" {
		var out []xmltree.NodeID
		m.tree.Walk(m.root, func(id xmltree.NodeID) bool {
			if !m.tree.IsElement(id) {
				return false
			}
			out = append(out, id)
			return true
		})
		return out, nil
	}

	result, err := m.evaluate(path, Nodes, m.root)
	if err != nil {
		return nil, err
	}
	var out []xmltree.NodeID
	for _, id := range result.(xpath.NodeSet).IDs() {
		if m.tree.IsElement(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

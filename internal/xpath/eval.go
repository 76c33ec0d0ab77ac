package xpath

import (
	"math"
	"slices"

	"github.com/jacoelho/xformdoc/internal/number"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

// Options configures an evaluation.
type Options struct {
	// Namespaces resolves prefixes used in name tests. A prefix missing from
	// the map is compared with the prefix written in the document.
	Namespaces map[string]string
	Variables  map[string]any
}

// Expr is a compiled expression, safe for concurrent evaluation.
type Expr struct {
	source string
	root   node
}

// Compile parses input into a reusable expression.
func Compile(input string) (*Expr, error) {
	root, err := parse(input)
	if err != nil {
		return nil, err
	}
	return &Expr{source: input, root: root}, nil
}

func (e *Expr) String() string {
	return e.source
}

// Evaluate runs the expression with contextNode as the context. The result
// is a NodeSet, string, float64 or bool.
func (e *Expr) Evaluate(tree *xmltree.Tree, contextNode xmltree.NodeID, opts Options) (any, error) {
	start := NodeOf(contextNode)
	c := evalContext{tree: tree, node: start, origin: start, position: 1, size: 1, opts: &opts}
	return evaluate(c, e.root)
}

// Evaluate compiles and runs input in one step.
func Evaluate(tree *xmltree.Tree, contextNode xmltree.NodeID, input string, opts Options) (any, error) {
	expr, err := Compile(input)
	if err != nil {
		return nil, err
	}
	return expr.Evaluate(tree, contextNode, opts)
}

type evalContext struct {
	tree     *xmltree.Tree
	node     Node
	origin   Node
	position int
	size     int
	opts     *Options
}

func (c evalContext) with(n Node, position, size int) evalContext {
	c.node = n
	c.position = position
	c.size = size
	return c
}

func evaluate(c evalContext, root node) (any, error) {
	switch current := root.(type) {
	case literalNode:
		return current.value, nil
	case variableNode:
		value, ok := c.opts.Variables[current.name]
		if !ok {
			return nil, expressionError("unknown variable $%s", current.name)
		}
		return value, nil
	case negateNode:
		value, err := evaluate(c, current.operand)
		if err != nil {
			return nil, err
		}
		return -NumberValue(c.tree, value), nil
	case binaryNode:
		return evaluateBinary(c, current)
	case functionNode:
		return callFunction(c, current)
	case filterNode:
		value, err := evaluate(c, current.primary)
		if err != nil {
			return nil, err
		}
		nodes, ok := value.(NodeSet)
		if !ok {
			return nil, expressionError("predicate applied to %s", typeName(value))
		}
		for _, predicate := range current.predicates {
			if nodes, err = c.filter(nodes, predicate); err != nil {
				return nil, err
			}
		}
		return nodes, nil
	case pathNode:
		return c.evaluatePath(current)
	default:
		return nil, expressionError("unsupported expression node")
	}
}

func evaluateBinary(c evalContext, current binaryNode) (any, error) {
	left, err := evaluate(c, current.left)
	if err != nil {
		return nil, err
	}

	switch current.op {
	case tokenAnd:
		if !BooleanValue(left) {
			return false, nil
		}
		right, err := evaluate(c, current.right)
		if err != nil {
			return nil, err
		}
		return BooleanValue(right), nil
	case tokenOr:
		if BooleanValue(left) {
			return true, nil
		}
		right, err := evaluate(c, current.right)
		if err != nil {
			return nil, err
		}
		return BooleanValue(right), nil
	}

	right, err := evaluate(c, current.right)
	if err != nil {
		return nil, err
	}

	switch current.op {
	case tokenEqual, tokenNotEqual, tokenLess, tokenLessEqual, tokenGreater, tokenGreaterEqual:
		return compare(c.tree, current.op, left, right), nil
	case tokenPlus:
		return NumberValue(c.tree, left) + NumberValue(c.tree, right), nil
	case tokenMinus:
		return NumberValue(c.tree, left) - NumberValue(c.tree, right), nil
	case tokenMultiply:
		return NumberValue(c.tree, left) * NumberValue(c.tree, right), nil
	case tokenDiv:
		return NumberValue(c.tree, left) / NumberValue(c.tree, right), nil
	case tokenMod:
		return math.Mod(NumberValue(c.tree, left), NumberValue(c.tree, right)), nil
	case tokenPipe:
		leftNodes, leftOK := left.(NodeSet)
		rightNodes, rightOK := right.(NodeSet)
		if !leftOK || !rightOK {
			return nil, expressionError("union of %s and %s", typeName(left), typeName(right))
		}
		return sortNodes(c.tree, append(slices.Clone(leftNodes), rightNodes...)), nil
	default:
		return nil, expressionError("unsupported binary operator")
	}
}

func (c evalContext) evaluatePath(path pathNode) (any, error) {
	var current NodeSet
	switch {
	case path.start != nil:
		value, err := evaluate(c, path.start)
		if err != nil {
			return nil, err
		}
		nodes, ok := value.(NodeSet)
		if !ok {
			return nil, expressionError("path applied to %s", typeName(value))
		}
		current = nodes
	case path.absolute:
		current = NodeSet{NodeOf(xmltree.DocumentID)}
	default:
		current = NodeSet{c.node}
	}

	for _, s := range path.steps {
		next, err := c.evaluateStep(current, s)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func (c evalContext) evaluateStep(input NodeSet, s step) (NodeSet, error) {
	var out NodeSet
	seen := make(map[Node]struct{})
	for _, origin := range input {
		candidates := c.axisNodes(origin, s.axis, s.test)
		for _, predicate := range s.predicates {
			filtered, err := c.filter(candidates, predicate)
			if err != nil {
				return nil, err
			}
			candidates = filtered
		}
		for _, candidate := range candidates {
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	if len(input) > 1 || s.axis.reverse() {
		out = sortNodes(c.tree, out)
	}
	return out, nil
}

// filter keeps the nodes for which predicate holds. A numeric predicate
// selects by proximity position.
func (c evalContext) filter(nodes NodeSet, predicate node) (NodeSet, error) {
	var out NodeSet
	for i, n := range nodes {
		value, err := evaluate(c.with(n, i+1, len(nodes)), predicate)
		if err != nil {
			return nil, err
		}
		keep := false
		if f, ok := value.(float64); ok {
			keep = f == float64(i+1)
		} else {
			keep = BooleanValue(value)
		}
		if keep {
			out = append(out, n)
		}
	}
	return out, nil
}

// compare applies XPath 1.0 comparison rules. Two strings that are not both
// numeric compare lexically under relational operators.
func compare(tree *xmltree.Tree, op tokenType, left, right any) bool {
	leftNodes, leftIsNodes := left.(NodeSet)
	rightNodes, rightIsNodes := right.(NodeSet)

	switch {
	case leftIsNodes && rightIsNodes:
		for _, l := range leftNodes {
			leftText := NodeString(tree, l)
			for _, r := range rightNodes {
				if compareAtoms(op, leftText, NodeString(tree, r)) {
					return true
				}
			}
		}
		return false
	case leftIsNodes:
		if b, ok := right.(bool); ok {
			return compareAtoms(op, len(leftNodes) > 0, b)
		}
		for _, l := range leftNodes {
			if compareAtoms(op, NodeString(tree, l), right) {
				return true
			}
		}
		return false
	case rightIsNodes:
		if b, ok := left.(bool); ok {
			return compareAtoms(op, b, len(rightNodes) > 0)
		}
		for _, r := range rightNodes {
			if compareAtoms(op, left, NodeString(tree, r)) {
				return true
			}
		}
		return false
	}
	return compareAtoms(op, left, right)
}

func compareAtoms(op tokenType, left, right any) bool {
	if op == tokenEqual || op == tokenNotEqual {
		var equal bool
		_, leftBool := left.(bool)
		_, rightBool := right.(bool)
		_, leftNumber := left.(float64)
		_, rightNumber := right.(float64)
		switch {
		case leftBool || rightBool:
			equal = BooleanValue(left) == BooleanValue(right)
		case leftNumber || rightNumber:
			equal = NumberValue(nil, left) == NumberValue(nil, right)
		default:
			equal = StringValue(nil, left) == StringValue(nil, right)
		}
		return equal == (op == tokenEqual)
	}

	leftText, leftIsText := left.(string)
	rightText, rightIsText := right.(string)
	if leftIsText && rightIsText {
		x, y := number.Parse(leftText), number.Parse(rightText)
		if math.IsNaN(x) || math.IsNaN(y) {
			switch {
			case leftText < rightText:
				return op == tokenLess || op == tokenLessEqual
			case leftText > rightText:
				return op == tokenGreater || op == tokenGreaterEqual
			default:
				return op == tokenLessEqual || op == tokenGreaterEqual
			}
		}
	}

	x, y := NumberValue(nil, left), NumberValue(nil, right)
	switch op {
	case tokenLess:
		return x < y
	case tokenLessEqual:
		return x <= y
	case tokenGreater:
		return x > y
	default:
		return x >= y
	}
}

package xpath

import (
	"strconv"
	"strings"
)

type node interface{}

type literalNode struct {
	value any
}

type variableNode struct {
	name string
}

type negateNode struct {
	operand node
}

type binaryNode struct {
	op    tokenType
	left  node
	right node
}

type functionNode struct {
	name string
	args []node
}

type filterNode struct {
	primary    node
	predicates []node
}

// pathNode is a location path, or a filter expression continued by steps
// when start is set.
type pathNode struct {
	start    node
	absolute bool
	steps    []step
}

type axis int

const (
	axisChild axis = iota
	axisDescendant
	axisDescendantOrSelf
	axisSelf
	axisParent
	axisAncestor
	axisAncestorOrSelf
	axisFollowingSibling
	axisPrecedingSibling
	axisFollowing
	axisPreceding
	axisAttribute
)

var axisNames = map[string]axis{
	"child":              axisChild,
	"descendant":         axisDescendant,
	"descendant-or-self": axisDescendantOrSelf,
	"self":               axisSelf,
	"parent":             axisParent,
	"ancestor":           axisAncestor,
	"ancestor-or-self":   axisAncestorOrSelf,
	"following-sibling":  axisFollowingSibling,
	"preceding-sibling":  axisPrecedingSibling,
	"following":          axisFollowing,
	"preceding":          axisPreceding,
	"attribute":          axisAttribute,
}

func (a axis) reverse() bool {
	switch a {
	case axisParent, axisAncestor, axisAncestorOrSelf, axisPrecedingSibling, axisPreceding:
		return true
	}
	return false
}

type testKind int

const (
	testName testKind = iota
	testAny
	testPrefixAny
	testNode
	testText
	testComment
	testProcessingInstruction
)

type nodeTest struct {
	kind   testKind
	prefix string
	local  string
}

type step struct {
	axis       axis
	test       nodeTest
	predicates []node
}

var anyNodeStep = step{axis: axisDescendantOrSelf, test: nodeTest{kind: testNode}}

type parserState struct {
	tokens []token
	pos    int
}

func parse(input string) (node, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}

	state := parserState{tokens: tokens}
	if state.current().typ == tokenEOF {
		return nil, expressionError("expression is empty")
	}

	root, err := state.parseExpression()
	if err != nil {
		return nil, err
	}

	if token := state.current(); token.typ != tokenEOF {
		return nil, expressionError("unexpected token at position %d", token.pos)
	}

	return root, nil
}

func (p *parserState) parseExpression() (node, error) {
	return p.parseOr()
}

// parseBinary parses a left-associative chain of operators drawn from ops.
func (p *parserState) parseBinary(next func() (node, error), ops ...tokenType) (node, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for p.matches(ops...) {
		op := p.advance().typ
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}

	return left, nil
}

func (p *parserState) parseOr() (node, error) {
	return p.parseBinary(p.parseAnd, tokenOr)
}

func (p *parserState) parseAnd() (node, error) {
	return p.parseBinary(p.parseEquality, tokenAnd)
}

func (p *parserState) parseEquality() (node, error) {
	return p.parseBinary(p.parseRelational, tokenEqual, tokenNotEqual)
}

func (p *parserState) parseRelational() (node, error) {
	return p.parseBinary(p.parseAdditive, tokenLess, tokenLessEqual, tokenGreater, tokenGreaterEqual)
}

func (p *parserState) parseAdditive() (node, error) {
	return p.parseBinary(p.parseMultiplicative, tokenPlus, tokenMinus)
}

func (p *parserState) parseMultiplicative() (node, error) {
	return p.parseBinary(p.parseUnary, tokenMultiply, tokenDiv, tokenMod)
}

func (p *parserState) parseUnary() (node, error) {
	if p.current().typ == tokenMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negateNode{operand: operand}, nil
	}

	return p.parseBinary(p.parsePath, tokenPipe)
}

func (p *parserState) parsePath() (node, error) {
	switch p.current().typ {
	case tokenSlash, tokenDoubleSlash, tokenName, tokenStar, tokenAt, tokenDot, tokenDoubleDot, tokenAxis, tokenNodeType:
		return p.parseLocationPath()
	}

	filter, err := p.parseFilter()
	if err != nil {
		return nil, err
	}

	if !p.matches(tokenSlash, tokenDoubleSlash) {
		return filter, nil
	}

	path := pathNode{start: filter}
	if p.advance().typ == tokenDoubleSlash {
		path.steps = append(path.steps, anyNodeStep)
	}
	return p.parseRelativePath(path)
}

func (p *parserState) parseLocationPath() (node, error) {
	var path pathNode

	switch p.current().typ {
	case tokenSlash:
		p.advance()
		path.absolute = true
		if !p.startsStep() {
			return path, nil
		}
	case tokenDoubleSlash:
		p.advance()
		path.absolute = true
		path.steps = append(path.steps, anyNodeStep)
	}

	return p.parseRelativePath(path)
}

func (p *parserState) parseRelativePath(path pathNode) (node, error) {
	for {
		current, err := p.parseStep()
		if err != nil {
			return nil, err
		}
		path.steps = append(path.steps, current)

		switch p.current().typ {
		case tokenSlash:
			p.advance()
		case tokenDoubleSlash:
			p.advance()
			path.steps = append(path.steps, anyNodeStep)
		default:
			return path, nil
		}
	}
}

func (p *parserState) startsStep() bool {
	return p.matches(tokenName, tokenStar, tokenAt, tokenDot, tokenDoubleDot, tokenAxis, tokenNodeType)
}

func (p *parserState) parseStep() (step, error) {
	switch p.current().typ {
	case tokenDot:
		p.advance()
		return step{axis: axisSelf, test: nodeTest{kind: testNode}}, nil
	case tokenDoubleDot:
		p.advance()
		return step{axis: axisParent, test: nodeTest{kind: testNode}}, nil
	}

	current := step{axis: axisChild}
	switch tok := p.current(); tok.typ {
	case tokenAt:
		p.advance()
		current.axis = axisAttribute
	case tokenAxis:
		p.advance()
		a, ok := axisNames[tok.literal]
		if !ok {
			return step{}, expressionError("unknown axis %q at position %d", tok.literal, tok.pos)
		}
		current.axis = a
	}

	test, err := p.parseNodeTest()
	if err != nil {
		return step{}, err
	}
	current.test = test

	predicates, err := p.parsePredicates()
	if err != nil {
		return step{}, err
	}
	current.predicates = predicates
	return current, nil
}

func (p *parserState) parseNodeTest() (nodeTest, error) {
	tok := p.current()
	switch tok.typ {
	case tokenStar:
		p.advance()
		return nodeTest{kind: testAny}, nil
	case tokenName:
		p.advance()
		prefix, local, found := strings.Cut(tok.literal, ":")
		if !found {
			return nodeTest{kind: testName, local: tok.literal}, nil
		}
		if local == "*" {
			return nodeTest{kind: testPrefixAny, prefix: prefix}, nil
		}
		return nodeTest{kind: testName, prefix: prefix, local: local}, nil
	case tokenNodeType:
		p.advance()
		if err := p.expect(tokenLParen, "'('"); err != nil {
			return nodeTest{}, err
		}
		test := nodeTest{}
		switch tok.literal {
		case "node":
			test.kind = testNode
		case "text":
			test.kind = testText
		case "comment":
			test.kind = testComment
		default:
			test.kind = testProcessingInstruction
			if p.current().typ == tokenString {
				test.local = p.advance().literal
			}
		}
		if err := p.expect(tokenRParen, "')'"); err != nil {
			return nodeTest{}, err
		}
		return test, nil
	default:
		return nodeTest{}, expressionError("expected node test at position %d", tok.pos)
	}
}

func (p *parserState) parsePredicates() ([]node, error) {
	var predicates []node
	for p.current().typ == tokenLBracket {
		p.advance()
		predicate, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRBracket, "']'"); err != nil {
			return nil, err
		}
		predicates = append(predicates, predicate)
	}
	return predicates, nil
}

func (p *parserState) parseFilter() (node, error) {
	primary, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	predicates, err := p.parsePredicates()
	if err != nil {
		return nil, err
	}
	if len(predicates) == 0 {
		return primary, nil
	}
	return filterNode{primary: primary, predicates: predicates}, nil
}

func (p *parserState) parsePrimary() (node, error) {
	tok := p.current()
	switch tok.typ {
	case tokenNumber:
		p.advance()
		value, err := strconv.ParseFloat(tok.literal, 64)
		if err != nil {
			return nil, expressionError("invalid number literal %q at position %d", tok.literal, tok.pos)
		}
		return literalNode{value: value}, nil
	case tokenString:
		p.advance()
		return literalNode{value: tok.literal}, nil
	case tokenVariable:
		p.advance()
		return variableNode{name: tok.literal}, nil
	case tokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokenRParen, "closing ')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case tokenFunction:
		p.advance()
		return p.parseFunctionCall(tok)
	default:
		return nil, expressionError("unexpected token at position %d", tok.pos)
	}
}

func (p *parserState) parseFunctionCall(name token) (node, error) {
	if err := p.expect(tokenLParen, "'('"); err != nil {
		return nil, err
	}

	call := functionNode{name: name.literal}
	if p.current().typ == tokenRParen {
		p.advance()
		return call, nil
	}

	for {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, arg)

		if p.current().typ == tokenComma {
			p.advance()
			continue
		}
		if err := p.expect(tokenRParen, "')' closing "+name.literal+"()"); err != nil {
			return nil, err
		}
		return call, nil
	}
}

func (p *parserState) matches(types ...tokenType) bool {
	typ := p.current().typ
	for _, candidate := range types {
		if typ == candidate {
			return true
		}
	}
	return false
}

func (p *parserState) expect(typ tokenType, what string) error {
	if p.current().typ != typ {
		return expressionError("missing %s at position %d", what, p.current().pos)
	}
	p.advance()
	return nil
}

func (p *parserState) current() token {
	if p.pos >= len(p.tokens) {
		return token{typ: tokenEOF, pos: len(p.tokens)}
	}
	return p.tokens[p.pos]
}

func (p *parserState) advance() token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

package xpath

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenName
	tokenNodeType
	tokenFunction
	tokenAxis
	tokenNumber
	tokenString
	tokenSlash
	tokenDoubleSlash
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenDot
	tokenDoubleDot
	tokenAt
	tokenComma
	tokenPipe
	tokenPlus
	tokenMinus
	tokenEqual
	tokenNotEqual
	tokenLess
	tokenLessEqual
	tokenGreater
	tokenGreaterEqual
	tokenStar
	tokenMultiply
	tokenAnd
	tokenOr
	tokenDiv
	tokenMod
	tokenVariable
)

type token struct {
	typ     tokenType
	literal string
	pos     int
}

var nodeTypes = map[string]bool{
	"node":                   true,
	"text":                   true,
	"comment":                true,
	"processing-instruction": true,
}

var operatorNames = map[string]tokenType{
	"and": tokenAnd,
	"or":  tokenOr,
	"div": tokenDiv,
	"mod": tokenMod,
}

func lex(input string) ([]token, error) {
	tokens := make([]token, 0, len(input)/2)
	pos := 0

	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		if unicode.IsSpace(r) {
			pos += size
			continue
		}

		// A preceding token that is not an operator or an opening delimiter
		// turns * and operator names into binary operators.
		operatorContext := len(tokens) > 0 && !opensOperand(tokens[len(tokens)-1].typ)

		if isNameStart(r) {
			start := pos
			pos = scanQName(input, pos)
			literal := input[start:pos]

			if op, ok := operatorNames[literal]; ok && operatorContext {
				tokens = append(tokens, token{typ: op, literal: literal, pos: start})
				continue
			}

			next := skipSpace(input, pos)
			switch {
			case strings.HasPrefix(input[next:], "::"):
				tokens = append(tokens, token{typ: tokenAxis, literal: literal, pos: start})
				pos = next + 2
			case next < len(input) && input[next] == '(' && nodeTypes[literal]:
				tokens = append(tokens, token{typ: tokenNodeType, literal: literal, pos: start})
			case next < len(input) && input[next] == '(' && !strings.HasSuffix(literal, ":*"):
				tokens = append(tokens, token{typ: tokenFunction, literal: literal, pos: start})
			default:
				tokens = append(tokens, token{typ: tokenName, literal: literal, pos: start})
			}
			continue
		}

		if isDigit(input[pos]) || (input[pos] == '.' && pos+1 < len(input) && isDigit(input[pos+1])) {
			start := pos
			for pos < len(input) && isDigit(input[pos]) {
				pos++
			}
			if pos < len(input) && input[pos] == '.' {
				pos++
				for pos < len(input) && isDigit(input[pos]) {
					pos++
				}
			}
			tokens = append(tokens, token{typ: tokenNumber, literal: input[start:pos], pos: start})
			continue
		}

		if input[pos] == '\'' || input[pos] == '"' {
			end := strings.IndexByte(input[pos+1:], input[pos])
			if end < 0 {
				return nil, expressionError("unterminated string at position %d", pos)
			}
			tokens = append(tokens, token{typ: tokenString, literal: input[pos+1 : pos+1+end], pos: pos})
			pos += end + 2
			continue
		}

		start := pos
		switch input[pos] {
		case '/':
			if pos+1 < len(input) && input[pos+1] == '/' {
				tokens = append(tokens, token{typ: tokenDoubleSlash, pos: start})
				pos += 2
				continue
			}
			tokens = append(tokens, token{typ: tokenSlash, pos: start})
		case '.':
			if pos+1 < len(input) && input[pos+1] == '.' {
				tokens = append(tokens, token{typ: tokenDoubleDot, pos: start})
				pos += 2
				continue
			}
			tokens = append(tokens, token{typ: tokenDot, pos: start})
		case '(':
			tokens = append(tokens, token{typ: tokenLParen, pos: start})
		case ')':
			tokens = append(tokens, token{typ: tokenRParen, pos: start})
		case '[':
			tokens = append(tokens, token{typ: tokenLBracket, pos: start})
		case ']':
			tokens = append(tokens, token{typ: tokenRBracket, pos: start})
		case '@':
			tokens = append(tokens, token{typ: tokenAt, pos: start})
		case ',':
			tokens = append(tokens, token{typ: tokenComma, pos: start})
		case '|':
			tokens = append(tokens, token{typ: tokenPipe, pos: start})
		case '+':
			tokens = append(tokens, token{typ: tokenPlus, pos: start})
		case '-':
			tokens = append(tokens, token{typ: tokenMinus, pos: start})
		case '=':
			tokens = append(tokens, token{typ: tokenEqual, pos: start})
		case '*':
			if operatorContext {
				tokens = append(tokens, token{typ: tokenMultiply, pos: start})
			} else {
				tokens = append(tokens, token{typ: tokenStar, literal: "*", pos: start})
			}
		case '!':
			if pos+1 < len(input) && input[pos+1] == '=' {
				tokens = append(tokens, token{typ: tokenNotEqual, pos: start})
				pos += 2
				continue
			}
			return nil, expressionError("unexpected '!' at position %d", pos)
		case '<':
			if pos+1 < len(input) && input[pos+1] == '=' {
				tokens = append(tokens, token{typ: tokenLessEqual, pos: start})
				pos += 2
				continue
			}
			tokens = append(tokens, token{typ: tokenLess, pos: start})
		case '>':
			if pos+1 < len(input) && input[pos+1] == '=' {
				tokens = append(tokens, token{typ: tokenGreaterEqual, pos: start})
				pos += 2
				continue
			}
			tokens = append(tokens, token{typ: tokenGreater, pos: start})
		case '$':
			pos++
			nameStart := pos
			pos = scanQName(input, pos)
			if pos == nameStart {
				return nil, expressionError("missing variable name at position %d", start)
			}
			tokens = append(tokens, token{typ: tokenVariable, literal: input[nameStart:pos], pos: start})
			continue
		default:
			return nil, expressionError("unexpected character %q at position %d", r, pos)
		}
		pos++
	}

	tokens = append(tokens, token{typ: tokenEOF, pos: len(input)})
	return tokens, nil
}

// opensOperand reports whether the token leaves the lexer expecting an
// operand rather than an operator.
func opensOperand(typ tokenType) bool {
	switch typ {
	case tokenAt, tokenAxis, tokenLParen, tokenLBracket, tokenComma,
		tokenSlash, tokenDoubleSlash, tokenPipe, tokenPlus, tokenMinus,
		tokenEqual, tokenNotEqual, tokenLess, tokenLessEqual, tokenGreater,
		tokenGreaterEqual, tokenMultiply, tokenAnd, tokenOr, tokenDiv, tokenMod:
		return true
	}
	return false
}

// scanQName consumes an NCName, optionally followed by :NCName or :*.
func scanQName(input string, pos int) int {
	pos = scanNCName(input, pos)
	if pos+1 < len(input) && input[pos] == ':' && input[pos+1] != ':' {
		if input[pos+1] == '*' {
			return pos + 2
		}
		if r, _ := utf8.DecodeRuneInString(input[pos+1:]); isNameStart(r) {
			return scanNCName(input, pos+1)
		}
	}
	return pos
}

func scanNCName(input string, pos int) int {
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		if !isNamePart(r) {
			break
		}
		pos += size
	}
	return pos
}

func skipSpace(input string, pos int) int {
	for pos < len(input) {
		r, size := utf8.DecodeRuneInString(input[pos:])
		if !unicode.IsSpace(r) {
			break
		}
		pos += size
	}
	return pos
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNamePart(r rune) bool {
	return r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

package resolver

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// quoted marks which bytes of expr sit inside a string literal, quotes
// included.
func quoted(expr string) []bool {
	inside := make([]bool, len(expr))
	var quote byte
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			inside[i] = true
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
			inside[i] = true
		}
	}
	return inside
}

// call is one occurrence of a function call in an expression.
type call struct {
	start int
	end   int
	args  []string
}

// findCalls locates unquoted calls to name. Arguments are split on
// top-level commas and trimmed.
func findCalls(expr, name string) []call {
	inside := quoted(expr)
	var calls []call

	for offset := 0; offset < len(expr); {
		at := strings.Index(expr[offset:], name)
		if at < 0 {
			break
		}
		start := offset + at
		offset = start + len(name)

		if inside[start] || (start > 0 && isNameByte(expr, start-1)) {
			continue
		}
		open := offset
		for open < len(expr) && expr[open] == ' ' {
			open++
		}
		if open >= len(expr) || expr[open] != '(' {
			continue
		}

		args, end, ok := splitArgs(expr, inside, open)
		if !ok {
			continue
		}
		calls = append(calls, call{start: start, end: end, args: args})
		offset = end
	}
	return calls
}

// splitArgs reads the argument list opening at expr[open] and returns the
// index just past the closing parenthesis.
func splitArgs(expr string, inside []bool, open int) ([]string, int, bool) {
	var args []string
	depth := 0
	argStart := open + 1
	for i := open; i < len(expr); i++ {
		if inside[i] {
			continue
		}
		switch expr[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth == 0 {
				if arg := strings.TrimSpace(expr[argStart:i]); arg != "" || len(args) > 0 {
					args = append(args, arg)
				}
				return args, i + 1, true
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(expr[argStart:i]))
				argStart = i + 1
			}
		}
	}
	return nil, 0, false
}

// replaceCalls rewrites every call to name using fn, right to left so
// earlier offsets stay valid.
func replaceCalls(expr, name string, fn func(args []string) (string, error)) (string, error) {
	calls := findCalls(expr, name)
	for i := len(calls) - 1; i >= 0; i-- {
		replacement, err := fn(calls[i].args)
		if err != nil {
			return "", err
		}
		expr = expr[:calls[i].start] + replacement + expr[calls[i].end:]
	}
	return expr, nil
}

func isNameByte(expr string, i int) bool {
	r, _ := utf8.DecodeLastRuneInString(expr[:i+1])
	return r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func unquote(literal string) string {
	if len(literal) >= 2 && (literal[0] == '\'' || literal[0] == '"') && literal[len(literal)-1] == literal[0] {
		return literal[1 : len(literal)-1]
	}
	return literal
}

func isQuoted(literal string) bool {
	return unquote(literal) != literal
}

// quote wraps text in whichever quote character it does not contain.
func quote(text string) string {
	if strings.ContainsRune(text, '\'') {
		return `"` + text + `"`
	}
	return "'" + text + "'"
}

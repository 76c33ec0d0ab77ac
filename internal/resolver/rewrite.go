// Package resolver rewrites form expressions into plain XPath that can be
// evaluated against the model document. Every stage leaves string literals
// untouched.
package resolver

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jacoelho/xformdoc/internal/number"
	"github.com/jacoelho/xformdoc/internal/xpath"
)

// PrimaryRoot is where the primary instance lives inside the model.
const PrimaryRoot = "/model/instance[1]"

func rewriteError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", xpath.ErrInvalidExpression, fmt.Sprintf(format, args...))
}

// Repeat is one repeat ancestor of the context node: its generic absolute
// path as written in expressions and its 1-based position.
type Repeat struct {
	Path     string
	Position int
}

// Pipeline runs every rewriting stage in order.
type Pipeline struct {
	// Shift enables absolute path qualification.
	Shift bool
	// ContextPath is the absolute, positioned path substituted for current().
	ContextPath string
	// Repeats lists repeat ancestors of the context, innermost first.
	Repeats []Repeat
	// Evaluate computes the string value of a sub-expression in the calling
	// context. It resolves non-literal indexed-repeat positions and pulldata
	// values.
	Evaluate func(expr string) (string, error)
}

// Rewrite applies the stages in order.
func (p Pipeline) Rewrite(expr string) (string, error) {
	if p.Shift {
		expr = ShiftRoot(expr)
	}
	expr, err := ReplaceInstanceFn(expr)
	if err != nil {
		return "", err
	}
	if p.ContextPath != "" {
		expr = ReplaceCurrentFn(expr, p.ContextPath)
	}
	if expr, err = ReplaceIndexedRepeatFn(expr, p.Evaluate); err != nil {
		return "", err
	}
	if expr, err = ReplacePullDataFn(expr, p.Evaluate); err != nil {
		return "", err
	}
	if expr, err = ReplaceInstanceFn(expr); err != nil {
		return "", err
	}
	return MakeBugCompliant(expr, p.Repeats), nil
}

// ShiftRoot roots every absolute path at the primary instance unless it
// already starts at /model/.
func ShiftRoot(expr string) string {
	inside := quoted(expr)
	var b strings.Builder
	for i := 0; i < len(expr); i++ {
		if !inside[i] && startsAbsolutePath(expr, i) && !strings.HasPrefix(expr[i:], "/model/") {
			b.WriteString(PrimaryRoot)
		}
		b.WriteByte(expr[i])
	}
	return b.String()
}

func startsAbsolutePath(expr string, i int) bool {
	if expr[i] != '/' || i+1 >= len(expr) {
		return false
	}
	next := expr[i+1]
	if next != '*' && next != '_' && !isNameByte(expr, i+1) {
		return false
	}
	if i == 0 {
		return true
	}
	switch prev := expr[i-1]; prev {
	case ')', ']', '.', '*', '/', '@', ':':
		return false
	default:
		return !isNameByte(expr, i-1)
	}
}

// ReplaceInstanceFn turns instance('id') into the instance's location in
// the model.
func ReplaceInstanceFn(expr string) (string, error) {
	return replaceCalls(expr, "instance", func(args []string) (string, error) {
		if len(args) != 1 || !isQuoted(args[0]) {
			return "", rewriteError("instance() expects a single quoted id")
		}
		return `/model/instance[@id="` + unquote(args[0]) + `"]`, nil
	})
}

// ReplaceCurrentFn substitutes contextPath for current(). When current() is
// followed by an absolute step, as in current()/data/a, the call is dropped
// and the path stays absolute.
func ReplaceCurrentFn(expr, contextPath string) string {
	calls := findCalls(expr, "current")
	for i := len(calls) - 1; i >= 0; i-- {
		c := calls[i]
		rest := expr[c.end:]
		replacement := contextPath
		if strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, "/.") {
			replacement = ""
		}
		expr = expr[:c.start] + replacement + rest
	}
	return expr
}

// ReplaceIndexedRepeatFn expands indexed-repeat(node, repeat1, pos1,
// repeat2, pos2, ...) into a positioned path.
func ReplaceIndexedRepeatFn(expr string, evaluate func(string) (string, error)) (string, error) {
	return replaceCalls(expr, "indexed-repeat", func(args []string) (string, error) {
		if len(args) < 3 || len(args)%2 == 0 {
			return "", rewriteError("indexed-repeat() expects a node and repeat/position pairs")
		}
		path := args[0]
		for i := len(args) - 2; i >= 1; i -= 2 {
			repeatPath := args[i]
			if !strings.HasPrefix(path, repeatPath+"/") {
				return "", rewriteError("indexed-repeat(): %s is not inside %s", args[0], repeatPath)
			}
			position, err := resolvePosition(args[i+1], evaluate)
			if err != nil {
				return "", err
			}
			path = repeatPath + "[position() = " + strconv.Itoa(position) + "]" + path[len(repeatPath):]
		}
		return path, nil
	})
}

func resolvePosition(arg string, evaluate func(string) (string, error)) (int, error) {
	value := number.Parse(arg)
	if math.IsNaN(value) {
		if evaluate == nil {
			return 0, rewriteError("indexed-repeat(): cannot resolve position %q", arg)
		}
		result, err := evaluate(arg)
		if err != nil {
			return 0, err
		}
		value = number.Parse(result)
	}
	if !number.IsInteger(value) {
		return 0, rewriteError("indexed-repeat(): position %q is not an integer", arg)
	}
	return int(value), nil
}

// ReplacePullDataFn turns pulldata(id, column, key, value) into a lookup in
// the secondary instance. A value that is not a literal is evaluated first.
func ReplacePullDataFn(expr string, evaluate func(string) (string, error)) (string, error) {
	return replaceCalls(expr, "pulldata", func(args []string) (string, error) {
		if len(args) != 4 {
			return "", rewriteError("pulldata() expects 4 arguments, got %d", len(args))
		}
		value := args[3]
		if !isQuoted(value) && math.IsNaN(number.Parse(value)) {
			if evaluate == nil {
				return "", rewriteError("pulldata(): cannot resolve value %q", value)
			}
			result, err := evaluate(value)
			if err != nil {
				return "", err
			}
			value = result
			if math.IsNaN(number.Parse(result)) {
				value = quote(result)
			}
		}
		return "instance(" + args[0] + ")/root/item[" + unquote(args[2]) + " = " + strings.TrimSpace(value) + "]/" + unquote(args[1]), nil
	})
}

// MakeBugCompliant injects the context's repeat positions into absolute
// references to the same repeats. A match must be followed by "/" so that
// a repeat named a never matches a sibling named ab.
func MakeBugCompliant(expr string, repeats []Repeat) string {
	for _, repeat := range repeats {
		target := repeat.Path + "/"
		inside := quoted(expr)
		var b strings.Builder
		for i := 0; i < len(expr); {
			if !inside[i] && strings.HasPrefix(expr[i:], target) && (i == 0 || !isNameByte(expr, i-1)) {
				b.WriteString(repeat.Path)
				b.WriteString("[" + strconv.Itoa(repeat.Position) + "]/")
				i += len(target)
				continue
			}
			b.WriteByte(expr[i])
			i++
		}
		expr = b.String()
	}
	return expr
}

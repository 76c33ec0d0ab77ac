package xpath

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jacoelho/xformdoc/internal/clock"
	"github.com/jacoelho/xformdoc/internal/random"
	"github.com/jacoelho/xformdoc/internal/xmltree"
)

type function struct {
	min, max int // max < 0 means variadic
	call     func(c evalContext, args []any) (any, error)
}

var functions map[string]function

func init() {
	functions = map[string]function{
		// node-set
		"last":          {0, 0, fnLast},
		"position":      {0, 1, fnPosition},
		"count":         {1, 1, fnCount},
		"local-name":    {0, 1, fnLocalName},
		"name":          {0, 1, fnName},
		"namespace-uri": {0, 1, fnNamespaceURI},
		"current":       {0, 0, fnCurrent},

		// string
		"string":           {0, 1, fnString},
		"concat":           {1, -1, fnConcat},
		"starts-with":      {2, 2, fnStartsWith},
		"ends-with":        {2, 2, fnEndsWith},
		"contains":         {2, 2, fnContains},
		"substring-before": {2, 2, fnSubstringBefore},
		"substring-after":  {2, 2, fnSubstringAfter},
		"substring":        {2, 3, fnSubstring},
		"string-length":    {0, 1, fnStringLength},
		"normalize-space":  {0, 1, fnNormalizeSpace},
		"translate":        {3, 3, fnTranslate},
		"coalesce":         {2, 2, fnCoalesce},
		"join":             {1, -1, fnJoin},
		"regex":            {2, 2, fnRegex},
		"uuid":             {0, 0, fnUUID},

		// boolean
		"boolean":             {1, 1, fnBoolean},
		"not":                 {1, 1, fnNot},
		"true":                {0, 0, fnTrue},
		"false":               {0, 0, fnFalse},
		"boolean-from-string": {1, 1, fnBooleanFromString},
		"if":                  {3, 3, fnIf},
		"selected":            {2, 2, fnSelected},
		"checklist":           {2, -1, fnChecklist},
		"weighted-checklist":  {2, -1, fnWeightedChecklist},

		// number
		"number":          {0, 1, fnNumber},
		"sum":             {1, 1, fnSum},
		"floor":           {1, 1, fnFloor},
		"ceiling":         {1, 1, fnCeiling},
		"round":           {1, 1, fnRound},
		"int":             {1, 1, fnInt},
		"abs":             {1, 1, fnAbs},
		"pow":             {2, 2, fnPow},
		"min":             {1, -1, fnMin},
		"max":             {1, -1, fnMax},
		"count-selected":  {1, 1, fnCountSelected},
		"selected-at":     {2, 2, fnSelectedAt},
		"count-non-empty": {1, 1, fnCountNonEmpty},
		"random":          {0, 0, fnRandom},

		// date
		"today": {0, 0, fnToday},
		"now":   {0, 0, fnNow},
	}
}

func callFunction(c evalContext, call functionNode) (any, error) {
	fn, ok := functions[call.name]
	if !ok {
		return nil, expressionError("unknown function %s()", call.name)
	}
	if len(call.args) < fn.min || (fn.max >= 0 && len(call.args) > fn.max) {
		return nil, expressionError("wrong number of arguments for %s(): %d", call.name, len(call.args))
	}

	args := make([]any, len(call.args))
	for i, arg := range call.args {
		value, err := evaluate(c, arg)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	return fn.call(c, args)
}

func nodeSetArg(name string, args []any, i int) (NodeSet, error) {
	nodes, ok := args[i].(NodeSet)
	if !ok {
		return nil, expressionError("%s() expects a node-set, got %s", name, typeName(args[i]))
	}
	return nodes, nil
}

// optionalNode returns the first node of the argument, or the context node
// when the argument is omitted.
func optionalNode(c evalContext, name string, args []any) (Node, bool, error) {
	if len(args) == 0 {
		return c.node, true, nil
	}
	nodes, err := nodeSetArg(name, args, 0)
	if err != nil || len(nodes) == 0 {
		return Node{}, false, err
	}
	return nodes[0], true, nil
}

func (c evalContext) stringArg(args []any, i int) string {
	if i >= len(args) {
		return NodeString(c.tree, c.node)
	}
	return StringValue(c.tree, args[i])
}

func (c evalContext) numberArg(args []any, i int) float64 {
	return NumberValue(c.tree, args[i])
}

// flatten expands node-sets into the string values of their members.
func (c evalContext) flatten(args []any) []string {
	var out []string
	for _, arg := range args {
		if nodes, ok := arg.(NodeSet); ok {
			for _, n := range nodes {
				out = append(out, NodeString(c.tree, n))
			}
			continue
		}
		out = append(out, StringValue(c.tree, arg))
	}
	return out
}

func nodeName(tree *xmltree.Tree, n Node) xmltree.Name {
	if n.IsAttr() {
		attrs := tree.Attrs(n.ID)
		if n.Attr < len(attrs) {
			return attrs[n.Attr].Name
		}
		return xmltree.Name{}
	}
	if tree.Kind(n.ID) != xmltree.ElementNode {
		return xmltree.Name{}
	}
	return tree.Name(n.ID)
}

func fnLast(c evalContext, _ []any) (any, error) {
	return float64(c.size), nil
}

// fnPosition without arguments is the context position. With a node-set it
// is the 1-based position of its first node among same-named siblings.
func fnPosition(c evalContext, args []any) (any, error) {
	if len(args) == 0 {
		return float64(c.position), nil
	}
	nodes, err := nodeSetArg("position", args, 0)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return math.NaN(), nil
	}
	target := nodes[0].ID
	position := 1
	for sibling := c.tree.PreviousElement(target); sibling != xmltree.None; sibling = c.tree.PreviousElement(sibling) {
		if c.tree.Name(sibling).Qualified() == c.tree.Name(target).Qualified() {
			position++
		}
	}
	return float64(position), nil
}

func fnCount(_ evalContext, args []any) (any, error) {
	nodes, err := nodeSetArg("count", args, 0)
	if err != nil {
		return nil, err
	}
	return float64(len(nodes)), nil
}

func fnLocalName(c evalContext, args []any) (any, error) {
	n, ok, err := optionalNode(c, "local-name", args)
	if err != nil || !ok {
		return "", err
	}
	return nodeName(c.tree, n).Local, nil
}

func fnName(c evalContext, args []any) (any, error) {
	n, ok, err := optionalNode(c, "name", args)
	if err != nil || !ok {
		return "", err
	}
	return nodeName(c.tree, n).Qualified(), nil
}

func fnNamespaceURI(c evalContext, args []any) (any, error) {
	n, ok, err := optionalNode(c, "namespace-uri", args)
	if err != nil || !ok {
		return "", err
	}
	return nodeName(c.tree, n).Space, nil
}

func fnCurrent(c evalContext, _ []any) (any, error) {
	return NodeSet{c.origin}, nil
}

func fnString(c evalContext, args []any) (any, error) {
	return c.stringArg(args, 0), nil
}

func fnConcat(c evalContext, args []any) (any, error) {
	var b strings.Builder
	for i := range args {
		b.WriteString(c.stringArg(args, i))
	}
	return b.String(), nil
}

func fnStartsWith(c evalContext, args []any) (any, error) {
	return strings.HasPrefix(c.stringArg(args, 0), c.stringArg(args, 1)), nil
}

func fnEndsWith(c evalContext, args []any) (any, error) {
	return strings.HasSuffix(c.stringArg(args, 0), c.stringArg(args, 1)), nil
}

func fnContains(c evalContext, args []any) (any, error) {
	return strings.Contains(c.stringArg(args, 0), c.stringArg(args, 1)), nil
}

func fnSubstringBefore(c evalContext, args []any) (any, error) {
	before, _, found := strings.Cut(c.stringArg(args, 0), c.stringArg(args, 1))
	if !found {
		return "", nil
	}
	return before, nil
}

func fnSubstringAfter(c evalContext, args []any) (any, error) {
	_, after, found := strings.Cut(c.stringArg(args, 0), c.stringArg(args, 1))
	if !found {
		return "", nil
	}
	return after, nil
}

func fnSubstring(c evalContext, args []any) (any, error) {
	runes := []rune(c.stringArg(args, 0))
	first := xpathRound(c.numberArg(args, 1))
	last := math.Inf(1)
	if len(args) == 3 {
		last = first + xpathRound(c.numberArg(args, 2))
	}
	var b strings.Builder
	for i, r := range runes {
		position := float64(i + 1)
		if position >= first && position < last {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func fnStringLength(c evalContext, args []any) (any, error) {
	return float64(len([]rune(c.stringArg(args, 0)))), nil
}

func fnNormalizeSpace(c evalContext, args []any) (any, error) {
	return strings.Join(strings.Fields(c.stringArg(args, 0)), " "), nil
}

func fnTranslate(c evalContext, args []any) (any, error) {
	from := []rune(c.stringArg(args, 1))
	to := []rune(c.stringArg(args, 2))
	mapping := make(map[rune]int, len(from))
	for i, r := range from {
		if _, ok := mapping[r]; !ok {
			mapping[r] = i
		}
	}
	var b strings.Builder
	for _, r := range c.stringArg(args, 0) {
		i, ok := mapping[r]
		switch {
		case !ok:
			b.WriteRune(r)
		case i < len(to):
			b.WriteRune(to[i])
		}
	}
	return b.String(), nil
}

func fnCoalesce(c evalContext, args []any) (any, error) {
	if first := c.stringArg(args, 0); first != "" {
		return first, nil
	}
	return c.stringArg(args, 1), nil
}

func fnJoin(c evalContext, args []any) (any, error) {
	return strings.Join(c.flatten(args[1:]), c.stringArg(args, 0)), nil
}

func fnRegex(c evalContext, args []any) (any, error) {
	pattern, err := regexp.Compile(c.stringArg(args, 1))
	if err != nil {
		return nil, expressionError("regex(): %v", err)
	}
	return pattern.MatchString(c.stringArg(args, 0)), nil
}

func fnUUID(evalContext, []any) (any, error) {
	return uuid.New().String(), nil
}

func fnBoolean(_ evalContext, args []any) (any, error) {
	return BooleanValue(args[0]), nil
}

func fnNot(_ evalContext, args []any) (any, error) {
	return !BooleanValue(args[0]), nil
}

func fnTrue(evalContext, []any) (any, error) {
	return true, nil
}

func fnFalse(evalContext, []any) (any, error) {
	return false, nil
}

func fnBooleanFromString(c evalContext, args []any) (any, error) {
	value := strings.TrimSpace(c.stringArg(args, 0))
	return value == "true" || value == "1", nil
}

func fnIf(_ evalContext, args []any) (any, error) {
	if BooleanValue(args[0]) {
		return args[1], nil
	}
	return args[2], nil
}

func fnSelected(c evalContext, args []any) (any, error) {
	want := strings.TrimSpace(c.stringArg(args, 1))
	for _, item := range strings.Fields(c.stringArg(args, 0)) {
		if item == want {
			return true, nil
		}
	}
	return false, nil
}

// withinBounds treats a negative bound as absent.
func withinBounds(value, lower, upper float64) bool {
	return (lower < 0 || value >= lower) && (upper < 0 || value <= upper)
}

func fnChecklist(c evalContext, args []any) (any, error) {
	count := 0.0
	for _, value := range c.flatten(args[2:]) {
		if isTruthy(value) {
			count++
		}
	}
	return withinBounds(count, c.numberArg(args, 0), c.numberArg(args, 1)), nil
}

// fnWeightedChecklist sums the weights paired with truthy values. Pairs of
// node-sets are matched member by member.
func fnWeightedChecklist(c evalContext, args []any) (any, error) {
	rest := args[2:]
	if len(rest)%2 != 0 {
		return nil, expressionError("weighted-checklist() expects value/weight pairs")
	}
	total := 0.0
	for i := 0; i < len(rest); i += 2 {
		values := c.flatten(rest[i : i+1])
		weights := c.flatten(rest[i+1 : i+2])
		for j := 0; j < len(values) && j < len(weights); j++ {
			if isTruthy(values[j]) {
				total += NumberValue(nil, weights[j])
			}
		}
	}
	return withinBounds(total, c.numberArg(args, 0), c.numberArg(args, 1)), nil
}

func isTruthy(value string) bool {
	value = strings.TrimSpace(value)
	return value != "" && value != "false" && value != "0"
}

func fnNumber(c evalContext, args []any) (any, error) {
	if len(args) == 0 {
		return NumberValue(c.tree, NodeSet{c.node}), nil
	}
	return c.numberArg(args, 0), nil
}

func fnSum(c evalContext, args []any) (any, error) {
	nodes, err := nodeSetArg("sum", args, 0)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range nodes {
		total += NumberValue(nil, NodeString(c.tree, n))
	}
	return total, nil
}

func fnFloor(c evalContext, args []any) (any, error) {
	return math.Floor(c.numberArg(args, 0)), nil
}

func fnCeiling(c evalContext, args []any) (any, error) {
	return math.Ceil(c.numberArg(args, 0)), nil
}

func fnRound(c evalContext, args []any) (any, error) {
	return xpathRound(c.numberArg(args, 0)), nil
}

func xpathRound(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return math.Floor(f + 0.5)
}

func fnInt(c evalContext, args []any) (any, error) {
	return math.Trunc(c.numberArg(args, 0)), nil
}

func fnAbs(c evalContext, args []any) (any, error) {
	return math.Abs(c.numberArg(args, 0)), nil
}

func fnPow(c evalContext, args []any) (any, error) {
	return math.Pow(c.numberArg(args, 0), c.numberArg(args, 1)), nil
}

func fnMin(c evalContext, args []any) (any, error) {
	return extreme(c.flatten(args), math.Min), nil
}

func fnMax(c evalContext, args []any) (any, error) {
	return extreme(c.flatten(args), math.Max), nil
}

func extreme(values []string, pick func(float64, float64) float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	result := NumberValue(nil, values[0])
	for _, value := range values[1:] {
		result = pick(result, NumberValue(nil, value))
	}
	return result
}

func fnCountSelected(c evalContext, args []any) (any, error) {
	return float64(len(strings.Fields(c.stringArg(args, 0)))), nil
}

func fnSelectedAt(c evalContext, args []any) (any, error) {
	items := strings.Fields(c.stringArg(args, 0))
	index := c.numberArg(args, 1)
	if math.IsNaN(index) || index < 0 || int(index) >= len(items) {
		return "", nil
	}
	return items[int(index)], nil
}

func fnCountNonEmpty(c evalContext, args []any) (any, error) {
	nodes, err := nodeSetArg("count-non-empty", args, 0)
	if err != nil {
		return nil, err
	}
	count := 0.0
	for _, n := range nodes {
		if NodeString(c.tree, n) != "" {
			count++
		}
	}
	return count, nil
}

func fnRandom(evalContext, []any) (any, error) {
	return random.Float64(), nil
}

func fnToday(evalContext, []any) (any, error) {
	return clock.Today().Format("2006-01-02"), nil
}

func fnNow(evalContext, []any) (any, error) {
	return clock.Now().Format("2006-01-02T15:04:05.000-07:00"), nil
}

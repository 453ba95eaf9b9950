package filter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// evalFunc implements one built-in. Functions whose first argument is a
// per-item expression (filter, map, sort keys, groupBy, ...) evaluate that
// argument against each element rather than against the input as a whole.
type evalFunc func(ev *evaluator, args []Node, data any) (any, error)

var functions map[string]evalFunc

func init() {
	functions = map[string]evalFunc{
		"get":        fnGet,
		"pipe":       fnPipe,
		"object":     fnObject,
		"array":      fnArray,
		"filter":     fnFilter,
		"map":        fnMap,
		"mapObject":  fnMapObject,
		"mapKeys":    fnMapKeys,
		"mapValues":  fnMapValues,
		"sort":       fnSort,
		"reverse":    fnReverse,
		"pick":       fnPick,
		"groupBy":    fnGroupBy,
		"keyBy":      fnKeyBy,
		"keys":       fnKeys,
		"values":     fnValues,
		"flatten":    fnFlatten,
		"join":       fnJoin,
		"split":      fnSplit,
		"substring":  fnSubstring,
		"uniq":       fnUniq,
		"uniqBy":     fnUniqBy,
		"limit":      fnLimit,
		"size":       fnSize,
		"count":      fnSize,
		"sum":        fnSum,
		"min":        fnMin,
		"max":        fnMax,
		"prod":       fnProd,
		"average":    fnAverage,
		"first":      fnFirst,
		"last":       fnLast,
		"exists":     fnExists,
		"if":         fnIf,
		"eq":         binaryFn("eq", "=="),
		"ne":         binaryFn("ne", "!="),
		"gt":         binaryFn("gt", ">"),
		"gte":        binaryFn("gte", ">="),
		"lt":         binaryFn("lt", "<"),
		"lte":        binaryFn("lte", "<="),
		"and":        fnAnd,
		"or":         fnOr,
		"not":        fnNot,
		"in":         binaryFn("in", "in"),
		"number":     fnNumber,
		"string":     fnString,
		"round":      fnRound,
		"abs":        fnAbs,
		"ceil":       fnCeil,
		"floor":      fnFloor,
		"sqrt":       fnSqrt,
		"add":        binaryFn("add", "+"),
		"sub":        binaryFn("sub", "-"),
		"mul":        binaryFn("mul", "*"),
		"div":        binaryFn("div", "/"),
		"pow":        fnPow,
		"mod":        fnMod,
		"exp":        fnExp,
		"log":        fnLog,
		"log10":      fnLog10,
		"lower":      fnLower,
		"upper":      fnUpper,
		"trim":       fnTrim,
		"startsWith": fnStartsWith,
		"endsWith":   fnEndsWith,
		"contains":   fnContains,
		"replace":    fnReplace,
		"regex":      fnRegex,
	}
}

// FunctionNames returns the names of all built-in functions, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(functions))
	for n := range functions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func argCount(name string, args []Node, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		if min == max {
			return fmt.Errorf("%s expects %d argument(s), got %d", name, min, len(args))
		}
		return fmt.Errorf("%s expects %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func wantArray(name string, data any) ([]any, error) {
	arr, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("%s expects an array input, got %s", name, typeName(data))
	}
	return arr, nil
}

// fnGet is the function spelling of a property path: get(.a.b) reads the
// path, get() returns the input itself.
func fnGet(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("get", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return data, nil
	}
	return ev.eval(args[0], data)
}

// fnPipe is the function spelling of |: each argument is evaluated against
// the previous one's output.
func fnPipe(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("pipe", args, 1, -1); err != nil {
		return nil, err
	}
	cur := data
	for _, a := range args {
		v, err := ev.eval(a, cur)
		if err != nil {
			return nil, err
		}
		cur = v
	}
	return cur, nil
}

// fnObject is the function spelling of the {...} constructor.
func fnObject(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("object", args, 1, 1); err != nil {
		return nil, err
	}
	if _, ok := args[0].(*Object); !ok {
		return nil, fmt.Errorf("object expects an object constructor argument")
	}
	return ev.eval(args[0], data)
}

// fnArray builds an array from its evaluated arguments.
func fnArray(ev *evaluator, args []Node, data any) (any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := ev.eval(a, data)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// binaryFn exposes an infix operator as a two-argument function with
// identical semantics.
func binaryFn(name, op string) evalFunc {
	return func(ev *evaluator, args []Node, data any) (any, error) {
		if err := argCount(name, args, 2, 2); err != nil {
			return nil, err
		}
		return ev.evalBinary(&Binary{Op: op, L: args[0], R: args[1]}, data)
	}
}

func fnAnd(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("and", args, 2, -1); err != nil {
		return nil, err
	}
	for _, a := range args {
		v, err := ev.eval(a, data)
		if err != nil {
			return nil, err
		}
		if !truthy(v) {
			return false, nil
		}
	}
	return true, nil
}

func fnOr(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("or", args, 2, -1); err != nil {
		return nil, err
	}
	for _, a := range args {
		v, err := ev.eval(a, data)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			return true, nil
		}
	}
	return false, nil
}

func fnFilter(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("filter", args, 1, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("filter", data)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		v, err := ev.eval(args[0], item)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, item)
		}
	}
	return out, nil
}

func fnMap(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("map", args, 1, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("map", data)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(arr))
	for i, item := range arr {
		v, err := ev.eval(args[0], item)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func wantObject(name string, data any) (map[string]any, []string, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%s expects an object input, got %s", name, typeName(data))
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return obj, keys, nil
}

// fnMapObject rewrites each entry of an object. The callback sees
// {key, value} and must return an object carrying a string "key" and a
// "value".
func fnMapObject(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("mapObject", args, 1, 1); err != nil {
		return nil, err
	}
	obj, keys, err := wantObject("mapObject", data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(obj))
	for _, k := range keys {
		v, err := ev.eval(args[0], map[string]any{"key": k, "value": obj[k]})
		if err != nil {
			return nil, err
		}
		entry, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mapObject callback must return an object, got %s", typeName(v))
		}
		newKey, ok := entry["key"].(string)
		if !ok {
			return nil, fmt.Errorf("mapObject callback must return a string key")
		}
		out[newKey] = entry["value"]
	}
	return out, nil
}

// fnMapKeys renames every key of an object; the callback is evaluated
// against each key.
func fnMapKeys(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("mapKeys", args, 1, 1); err != nil {
		return nil, err
	}
	obj, keys, err := wantObject("mapKeys", data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(obj))
	for _, k := range keys {
		v, err := ev.eval(args[0], k)
		if err != nil {
			return nil, err
		}
		newKey, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("mapKeys callback must return a string, got %s", typeName(v))
		}
		out[newKey] = obj[k]
	}
	return out, nil
}

// fnMapValues transforms every value of an object in place.
func fnMapValues(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("mapValues", args, 1, 1); err != nil {
		return nil, err
	}
	obj, keys, err := wantObject("mapValues", data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(obj))
	for _, k := range keys {
		v, err := ev.eval(args[0], obj[k])
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// fnSort sorts an array. With no arguments values sort directly; with a key
// expression each element sorts by its key. An optional trailing "desc"
// reverses the order. The order over mixed types is total: booleans, then
// numbers, then strings, then everything else.
func fnSort(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("sort", args, 0, 2); err != nil {
		return nil, err
	}
	arr, err := wantArray("sort", data)
	if err != nil {
		return nil, err
	}

	keyArg := Node(nil)
	desc := false
	for _, a := range args {
		if lit, ok := a.(*Literal); ok {
			if s, ok := lit.Value.(string); ok && (s == "asc" || s == "desc") {
				desc = s == "desc"
				continue
			}
		}
		keyArg = a
	}

	keys := make([]any, len(arr))
	for i, item := range arr {
		if keyArg == nil {
			keys[i] = item
			continue
		}
		k, err := ev.eval(keyArg, item)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}

	idx := make([]int, len(arr))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		c := compareValues(keys[idx[a]], keys[idx[b]])
		if desc {
			return c > 0
		}
		return c < 0
	})
	out := make([]any, len(arr))
	for i, j := range idx {
		out[i] = arr[j]
	}
	return out, nil
}

func fnReverse(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("reverse", args, 0, 0); err != nil {
		return nil, err
	}
	arr, err := wantArray("reverse", data)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(arr))
	for i, v := range arr {
		out[len(arr)-1-i] = v
	}
	return out, nil
}

// fnPick projects each object in an array (or a single object) down to the
// named paths; the result key is the final path segment.
func fnPick(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("pick", args, 1, -1); err != nil {
		return nil, err
	}
	paths := make([]*Path, len(args))
	for i, a := range args {
		p, ok := a.(*Path)
		if !ok || len(p.Segs) == 0 || p.Segs[len(p.Segs)-1].IsIdx {
			return nil, fmt.Errorf("pick expects property paths as arguments")
		}
		paths[i] = p
	}
	pickOne := func(item any) any {
		out := make(map[string]any, len(paths))
		for _, p := range paths {
			out[p.Segs[len(p.Segs)-1].Field] = walkPath(p, item)
		}
		return out
	}
	if arr, ok := data.([]any); ok {
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = pickOne(item)
		}
		return out, nil
	}
	return pickOne(data), nil
}

func fnGroupBy(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("groupBy", args, 1, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("groupBy", data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, item := range arr {
		k, err := ev.eval(args[0], item)
		if err != nil {
			return nil, err
		}
		key := stringify(k)
		group, _ := out[key].([]any)
		out[key] = append(group, item)
	}
	return out, nil
}

func fnKeyBy(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("keyBy", args, 1, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("keyBy", data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, item := range arr {
		k, err := ev.eval(args[0], item)
		if err != nil {
			return nil, err
		}
		key := stringify(k)
		if _, exists := out[key]; !exists {
			out[key] = item
		}
	}
	return out, nil
}

func fnKeys(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("keys", args, 0, 0); err != nil {
		return nil, err
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("keys expects an object input, got %s", typeName(data))
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

func fnValues(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("values", args, 0, 0); err != nil {
		return nil, err
	}
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("values expects an object input, got %s", typeName(data))
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = obj[k]
	}
	return out, nil
}

func fnFlatten(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("flatten", args, 0, 0); err != nil {
		return nil, err
	}
	arr, err := wantArray("flatten", data)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, v := range arr {
		if inner, ok := v.([]any); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, v)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func fnJoin(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("join", args, 0, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("join", data)
	if err != nil {
		return nil, err
	}
	sep := ","
	if len(args) == 1 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("join separator must be a string")
		}
		sep = s
	}
	parts := make([]string, len(arr))
	for i, v := range arr {
		parts[i] = stringify(v)
	}
	return strings.Join(parts, sep), nil
}

func fnSplit(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("split", args, 1, 2); err != nil {
		return nil, err
	}
	src := data
	sepArg := args[len(args)-1]
	if len(args) == 2 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		src = v
	}
	s, ok := src.(string)
	if !ok {
		return nil, fmt.Errorf("split expects a string input, got %s", typeName(src))
	}
	sv, err := ev.eval(sepArg, data)
	if err != nil {
		return nil, err
	}
	sep, ok := sv.(string)
	if !ok {
		return nil, fmt.Errorf("split separator must be a string")
	}
	parts := strings.Split(s, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func fnSubstring(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("substring", args, 1, 3); err != nil {
		return nil, err
	}
	// substring(start[, end]) slices the input string;
	// substring(expr, start[, end]) slices the expression's value.
	var s string
	var bounds []Node
	first, err := ev.eval(args[0], data)
	if err != nil {
		return nil, err
	}
	if str, ok := first.(string); ok {
		s = str
		bounds = args[1:]
	} else {
		str, ok := data.(string)
		if !ok {
			return nil, fmt.Errorf("substring expects a string input, got %s", typeName(data))
		}
		s = str
		bounds = args
	}
	start, end := 0, len(s)
	if len(bounds) >= 1 {
		v, err := ev.eval(bounds[0], data)
		if err != nil {
			return nil, err
		}
		n, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("substring start must be a number")
		}
		start = int(n)
	}
	if len(bounds) >= 2 {
		v, err := ev.eval(bounds[1], data)
		if err != nil {
			return nil, err
		}
		n, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("substring end must be a number")
		}
		end = int(n)
	}
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		return "", nil
	}
	return s[start:end], nil
}

func fnUniq(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("uniq", args, 0, 0); err != nil {
		return nil, err
	}
	arr, err := wantArray("uniq", data)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(arr))
	for _, v := range arr {
		dup := false
		for _, seen := range out {
			if equalValues(v, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

func fnUniqBy(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("uniqBy", args, 1, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("uniqBy", data)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]any, 0, len(arr))
	for _, item := range arr {
		k, err := ev.eval(args[0], item)
		if err != nil {
			return nil, err
		}
		key := stringify(k)
		if !seen[key] {
			seen[key] = true
			out = append(out, item)
		}
	}
	return out, nil
}

func fnLimit(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("limit", args, 1, 1); err != nil {
		return nil, err
	}
	arr, err := wantArray("limit", data)
	if err != nil {
		return nil, err
	}
	v, err := ev.eval(args[0], data)
	if err != nil {
		return nil, err
	}
	n, ok := toNumber(v)
	if !ok || n < 0 {
		return nil, fmt.Errorf("limit expects a non-negative number")
	}
	if int(n) >= len(arr) {
		return arr, nil
	}
	return arr[:int(n)], nil
}

func fnSize(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("size", args, 0, 0); err != nil {
		return nil, err
	}
	switch t := data.(type) {
	case []any:
		return float64(len(t)), nil
	case map[string]any:
		return float64(len(t)), nil
	case string:
		return float64(len(t)), nil
	}
	return nil, fmt.Errorf("size expects an array, object, or string, got %s", typeName(data))
}

func numericFold(name string, data any, init float64, f func(acc, v float64) float64) (any, error) {
	arr, err := wantArray(name, data)
	if err != nil {
		return nil, err
	}
	acc := init
	for i, v := range arr {
		n, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("%s expects numbers, element %d is %s", name, i, typeName(v))
		}
		if i == 0 && math.IsNaN(init) {
			acc = n
			continue
		}
		acc = f(acc, n)
	}
	if len(arr) == 0 && math.IsNaN(init) {
		return nil, nil
	}
	return acc, nil
}

func fnSum(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("sum", args, 0, 0); err != nil {
		return nil, err
	}
	return numericFold("sum", data, 0, func(a, v float64) float64 { return a + v })
}

func fnProd(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("prod", args, 0, 0); err != nil {
		return nil, err
	}
	return numericFold("prod", data, 1, func(a, v float64) float64 { return a * v })
}

func fnMin(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("min", args, 0, 0); err != nil {
		return nil, err
	}
	return numericFold("min", data, math.NaN(), math.Min)
}

func fnMax(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("max", args, 0, 0); err != nil {
		return nil, err
	}
	return numericFold("max", data, math.NaN(), math.Max)
}

func fnAverage(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("average", args, 0, 0); err != nil {
		return nil, err
	}
	arr, err := wantArray("average", data)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, nil
	}
	sum, err := numericFold("average", data, 0, func(a, v float64) float64 { return a + v })
	if err != nil {
		return nil, err
	}
	return sum.(float64) / float64(len(arr)), nil
}

func fnFirst(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("first", args, 0, 0); err != nil {
		return nil, err
	}
	arr, err := wantArray("first", data)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, nil
	}
	return arr[0], nil
}

func fnLast(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("last", args, 0, 0); err != nil {
		return nil, err
	}
	arr, err := wantArray("last", data)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, nil
	}
	return arr[len(arr)-1], nil
}

func fnExists(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("exists", args, 1, 1); err != nil {
		return nil, err
	}
	p, ok := args[0].(*Path)
	if !ok {
		return nil, fmt.Errorf("exists expects a property path")
	}
	// walk manually so a present null still counts as existing
	cur := data
	for _, seg := range p.Segs {
		if seg.IsIdx {
			arr, ok := cur.([]any)
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return false, nil
			}
			cur = arr[seg.Index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return false, nil
		}
		v, present := obj[seg.Field]
		if !present {
			return false, nil
		}
		cur = v
	}
	return true, nil
}

func fnIf(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("if", args, 3, 3); err != nil {
		return nil, err
	}
	cond, err := ev.eval(args[0], data)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return ev.eval(args[1], data)
	}
	return ev.eval(args[2], data)
}

func fnNot(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("not", args, 1, 1); err != nil {
		return nil, err
	}
	v, err := ev.eval(args[0], data)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

func fnNumber(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("number", args, 0, 1); err != nil {
		return nil, err
	}
	src := data
	if len(args) == 1 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		src = v
	}
	if src == nil {
		return nil, nil
	}
	n, ok := toNumber(src)
	if !ok {
		return nil, fmt.Errorf("cannot convert %s to number", typeName(src))
	}
	return n, nil
}

func fnString(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("string", args, 0, 1); err != nil {
		return nil, err
	}
	src := data
	if len(args) == 1 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		src = v
	}
	return stringify(src), nil
}

func numericFn(name string, f func(float64) float64) evalFunc {
	return func(ev *evaluator, args []Node, data any) (any, error) {
		if err := argCount(name, args, 0, 1); err != nil {
			return nil, err
		}
		src := data
		if len(args) == 1 {
			v, err := ev.eval(args[0], data)
			if err != nil {
				return nil, err
			}
			src = v
		}
		n, ok := toNumber(src)
		if !ok {
			return nil, fmt.Errorf("%s expects a number, got %s", name, typeName(src))
		}
		return f(n), nil
	}
}

var (
	fnAbs   = numericFn("abs", math.Abs)
	fnCeil  = numericFn("ceil", math.Ceil)
	fnFloor = numericFn("floor", math.Floor)
	fnSqrt  = numericFn("sqrt", math.Sqrt)
	fnExp   = numericFn("exp", math.Exp)
	fnLog   = numericFn("log", math.Log)
	fnLog10 = numericFn("log10", math.Log10)
)

func fnRound(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("round", args, 0, 2); err != nil {
		return nil, err
	}
	src := data
	digits := 0.0
	rest := args
	if len(args) >= 1 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		src = v
		rest = args[1:]
	}
	if len(rest) == 1 {
		v, err := ev.eval(rest[0], data)
		if err != nil {
			return nil, err
		}
		d, ok := toNumber(v)
		if !ok {
			return nil, fmt.Errorf("round digits must be a number")
		}
		digits = d
	}
	n, ok := toNumber(src)
	if !ok {
		return nil, fmt.Errorf("round expects a number, got %s", typeName(src))
	}
	scale := math.Pow(10, digits)
	return math.Round(n*scale) / scale, nil
}

func fnPow(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("pow", args, 2, 2); err != nil {
		return nil, err
	}
	a, err := evalNumberArg(ev, "pow", args[0], data)
	if err != nil {
		return nil, err
	}
	b, err := evalNumberArg(ev, "pow", args[1], data)
	if err != nil {
		return nil, err
	}
	return math.Pow(a, b), nil
}

func fnMod(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("mod", args, 2, 2); err != nil {
		return nil, err
	}
	a, err := evalNumberArg(ev, "mod", args[0], data)
	if err != nil {
		return nil, err
	}
	b, err := evalNumberArg(ev, "mod", args[1], data)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return math.Mod(a, b), nil
}

func evalNumberArg(ev *evaluator, name string, arg Node, data any) (float64, error) {
	v, err := ev.eval(arg, data)
	if err != nil {
		return 0, err
	}
	n, ok := toNumber(v)
	if !ok {
		return 0, fmt.Errorf("%s expects numbers, got %s", name, typeName(v))
	}
	return n, nil
}

func stringFn(name string, f func(string) string) evalFunc {
	return func(ev *evaluator, args []Node, data any) (any, error) {
		if err := argCount(name, args, 0, 1); err != nil {
			return nil, err
		}
		src := data
		if len(args) == 1 {
			v, err := ev.eval(args[0], data)
			if err != nil {
				return nil, err
			}
			src = v
		}
		s, ok := src.(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string, got %s", name, typeName(src))
		}
		return f(s), nil
	}
}

var (
	fnLower = stringFn("lower", strings.ToLower)
	fnUpper = stringFn("upper", strings.ToUpper)
	fnTrim  = stringFn("trim", strings.TrimSpace)
)

func stringPredicate(name string, f func(s, arg string) bool) evalFunc {
	return func(ev *evaluator, args []Node, data any) (any, error) {
		if err := argCount(name, args, 1, 2); err != nil {
			return nil, err
		}
		src := data
		predArg := args[0]
		if len(args) == 2 {
			v, err := ev.eval(args[0], data)
			if err != nil {
				return nil, err
			}
			src = v
			predArg = args[1]
		}
		s, ok := src.(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string, got %s", name, typeName(src))
		}
		v, err := ev.eval(predArg, data)
		if err != nil {
			return nil, err
		}
		arg, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s expects a string argument", name)
		}
		return f(s, arg), nil
	}
}

var (
	fnStartsWith = stringPredicate("startsWith", strings.HasPrefix)
	fnEndsWith   = stringPredicate("endsWith", strings.HasSuffix)
)

// fnContains tests substring membership on strings and value membership on
// arrays.
func fnContains(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("contains", args, 1, 2); err != nil {
		return nil, err
	}
	src := data
	needleArg := args[0]
	if len(args) == 2 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		src = v
		needleArg = args[1]
	}
	needle, err := ev.eval(needleArg, data)
	if err != nil {
		return nil, err
	}
	switch t := src.(type) {
	case string:
		n, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("contains needs a string argument for string input")
		}
		return strings.Contains(t, n), nil
	case []any:
		return memberOf(needle, t), nil
	}
	return nil, fmt.Errorf("contains expects a string or array, got %s", typeName(src))
}

// fnRegex tests a string against a regular expression: regex(pattern),
// regex(text, pattern), or regex(text, pattern, flags) with flags drawn
// from "ims". A non-string text yields false rather than an error so the
// predicate composes with filter over mixed data.
func fnRegex(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("regex", args, 1, 3); err != nil {
		return nil, err
	}
	text := data
	patternArg := args[0]
	var flagsArg Node
	if len(args) >= 2 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		text = v
		patternArg = args[1]
	}
	if len(args) == 3 {
		flagsArg = args[2]
	}

	pv, err := ev.eval(patternArg, data)
	if err != nil {
		return nil, err
	}
	pattern, ok := pv.(string)
	if !ok {
		return nil, fmt.Errorf("regex pattern must be a string, got %s", typeName(pv))
	}
	if flagsArg != nil {
		fv, err := ev.eval(flagsArg, data)
		if err != nil {
			return nil, err
		}
		flags, ok := fv.(string)
		if !ok {
			return nil, fmt.Errorf("regex flags must be a string")
		}
		for _, f := range flags {
			if !strings.ContainsRune("ims", f) {
				return nil, fmt.Errorf("unknown regex flag %q", f)
			}
		}
		if flags != "" {
			pattern = "(?" + flags + ")" + pattern
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad regex: %v", err)
	}
	s, ok := text.(string)
	if !ok {
		return false, nil
	}
	return re.MatchString(s), nil
}

func fnReplace(ev *evaluator, args []Node, data any) (any, error) {
	if err := argCount("replace", args, 2, 3); err != nil {
		return nil, err
	}
	src := data
	rest := args
	if len(args) == 3 {
		v, err := ev.eval(args[0], data)
		if err != nil {
			return nil, err
		}
		src = v
		rest = args[1:]
	}
	s, ok := src.(string)
	if !ok {
		return nil, fmt.Errorf("replace expects a string, got %s", typeName(src))
	}
	ov, err := ev.eval(rest[0], data)
	if err != nil {
		return nil, err
	}
	nv, err := ev.eval(rest[1], data)
	if err != nil {
		return nil, err
	}
	old, ok1 := ov.(string)
	new_, ok2 := nv.(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("replace expects string arguments")
	}
	return strings.ReplaceAll(s, old, new_), nil
}
